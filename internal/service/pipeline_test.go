package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// collectStream runs the pipeline and returns the concatenated stream body.
func collectStream(p *Pipeline, query, id string) string {
	var b strings.Builder
	p.Run(context.Background(), query, id, func(chunk string) {
		b.WriteString(chunk)
	})
	return b.String()
}

// orchestrationHandler scripts a full happy-path backend: decomposition into
// coding + explanation, tool-call routing, specialized execution, synthesis.
func orchestrationHandler(t *testing.T, synthCalls *int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := decodeChat(t, r)

		if len(req.Tools) > 0 {
			// Routing call: echo the task type from the system message.
			system := req.Messages[0].Content
			taskType := strings.TrimSuffix(strings.TrimPrefix(system, "Route this "), " task")
			writeReply(t, w, "", routeCall(fmt.Sprintf(
				`{"task_type":%q,"query":%q}`, taskType, req.Messages[1].Content)))
			return
		}

		system := ""
		if req.Messages[0].Role == "system" {
			system = req.Messages[0].Content
		}

		switch {
		case strings.Contains(system, "AI task router"):
			writeReply(t, w, `{"subtasks":[`+
				`{"task_type":"coding","query":"Implement bubble sort in Python","recommended_model":"qwen2.5-coder:7b"},`+
				`{"task_type":"explanation","query":"Explain how bubble sort works","recommended_model":"deepseek-r1:7b"}`+
				`]}`)
		case strings.Contains(system, "Synthesize"):
			if synthCalls != nil {
				*synthCalls++
			}
			writeReply(t, w, "Bubble sort implementation with an explanation of how it works.")
		default:
			// Specialized subtask execution.
			writeReply(t, w, "output from "+req.Model)
		}
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	var synthCalls int
	srv := httptest.NewServer(orchestrationHandler(t, &synthCalls))
	defer srv.Close()

	store := NewSessionStore()
	p := NewPipeline(testClient(srv.URL), testModels, store, nil)

	out := collectStream(p, "Implement bubble sort in Python and explain how it works", "e2e")

	if !strings.Contains(out, "==== FINAL OUTPUT ====") {
		t.Fatalf("missing final output section:\n%s", out)
	}
	if !strings.Contains(out, "Bubble sort implementation with an explanation") {
		t.Errorf("final output not synthesized:\n%s", out)
	}
	if synthCalls != 1 {
		t.Errorf("expected exactly 1 synthesis call, got %d", synthCalls)
	}

	// Statistics list the distinct specialized models used.
	if !strings.Contains(out, "==== STATISTICS ====") {
		t.Fatalf("missing statistics section:\n%s", out)
	}
	stats := out[strings.Index(out, "==== STATISTICS ===="):]
	for _, model := range []string{"qwen2.5-coder:7b", "deepseek-r1:7b", "llama3.1:8b"} {
		if !strings.Contains(stats, model) {
			t.Errorf("statistics missing model %s:\n%s", model, stats)
		}
	}

	if store.Len() != 0 {
		t.Errorf("session must be destroyed after DONE, %d still live", store.Len())
	}
}

func TestPipelineDirectAnswer(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		req := decodeChat(t, r)
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("direct answer must send the raw query only, got %+v", req.Messages)
		}
		writeReply(t, w, "hi!")
	}))
	defer srv.Close()

	store := NewSessionStore()
	p := NewPipeline(testClient(srv.URL), testModels, store, nil)

	out := collectStream(p, "hello there", "direct")

	if calls != 1 {
		t.Errorf("direct path must make exactly 1 model call, got %d", calls)
	}
	if !strings.Contains(out, "==== FINAL OUTPUT ====\nhi!") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if strings.Contains(out, "==== STATISTICS ====") {
		t.Errorf("direct path emits no statistics section:\n%s", out)
	}
	if store.Len() != 0 {
		t.Errorf("session leaked: %d live", store.Len())
	}
}

func TestPipelineNoResultsIsTerminalError(t *testing.T) {
	var synthCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeChat(t, r)

		system := ""
		if len(req.Messages) > 0 && req.Messages[0].Role == "system" {
			system = req.Messages[0].Content
		}

		switch {
		case strings.Contains(system, "AI task router"):
			writeReply(t, w, `{"subtasks":[{"task_type":"math","query":"solve it","recommended_model":"mistral:7b"}]}`)
		case strings.Contains(system, "Synthesize"):
			synthCalls++
			writeReply(t, w, "should never happen")
		default:
			// Routing and execution are both down.
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	store := NewSessionStore()
	p := NewPipeline(testClient(srv.URL), testModels, store, nil)

	out := collectStream(p, "solve this hard equation now", "nores")

	if !strings.Contains(out, "==== ERROR ====\nNo results from subtasks") {
		t.Fatalf("expected no-results error section:\n%s", out)
	}
	if synthCalls != 0 {
		t.Errorf("aggregator must not run with zero results, got %d calls", synthCalls)
	}
	if store.Len() != 0 {
		t.Errorf("session leaked: %d live", store.Len())
	}
}

func TestPipelineOrchestratorDownIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store := NewSessionStore()
	p := NewPipeline(testClient(srv.URL), testModels, store, nil)

	out := collectStream(p, "a long query that needs decomposition", "down")

	if !strings.Contains(out, "==== ERROR ====") {
		t.Fatalf("expected error section:\n%s", out)
	}
	if !strings.Contains(out, "orchestration failed") {
		t.Errorf("expected orchestration failure message:\n%s", out)
	}
	if store.Len() != 0 {
		t.Errorf("session leaked: %d live", store.Len())
	}
}

func TestPipelineSynthesisFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeChat(t, r)

		if len(req.Tools) > 0 {
			writeReply(t, w, "", routeCall(`{"task_type":"coding","query":"write it"}`))
			return
		}

		system := ""
		if req.Messages[0].Role == "system" {
			system = req.Messages[0].Content
		}

		switch {
		case strings.Contains(system, "AI task router"):
			writeReply(t, w, `{"subtasks":[{"task_type":"coding","query":"write it","recommended_model":"qwen2.5-coder:7b"}]}`)
		case strings.Contains(system, "Synthesize"):
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			writeReply(t, w, "the code")
		}
	}))
	defer srv.Close()

	store := NewSessionStore()
	p := NewPipeline(testClient(srv.URL), testModels, store, nil)

	out := collectStream(p, "write me some code please", "fallback")

	// The final output is the deterministic labeled concatenation.
	if !strings.Contains(out, "==== FINAL OUTPUT ====\n## coding\nthe code") {
		t.Fatalf("expected concatenation fallback:\n%s", out)
	}
}

func TestPipelineLogsReachSessionStore(t *testing.T) {
	srv := httptest.NewServer(orchestrationHandler(t, nil))
	defer srv.Close()

	store := NewSessionStore()
	p := NewPipeline(testClient(srv.URL), testModels, store, nil)

	var sawLogs bool
	p.Run(context.Background(), "Implement bubble sort in Python and explain how it works", "logs",
		func(string) {
			// While the pipeline is mid-flight its entries are drainable.
			if logs, ok := store.Drain("logs"); ok && len(logs) > 0 {
				sawLogs = true
			}
		})

	if !sawLogs {
		t.Error("expected session store to receive progress entries during the run")
	}
}
