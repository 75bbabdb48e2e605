package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/modelmux/modelmux/internal/adapter/backend"
	"github.com/modelmux/modelmux/internal/adapter/ws"
	"github.com/modelmux/modelmux/internal/config"
	"github.com/modelmux/modelmux/internal/domain/session"
	"github.com/modelmux/modelmux/internal/domain/task"
	"github.com/modelmux/modelmux/internal/port/broadcast"
)

// Stream section markers emitted to the caller.
const (
	sectionFinal = "\n==== FINAL OUTPUT ====\n"
	sectionStats = "\n==== STATISTICS ====\n"
	sectionError = "\n==== ERROR ====\n"
)

// Pipeline drives one query through decomposition, subtask execution and
// synthesis, streaming progress as it goes:
//
//	START → DECOMPOSING → {DIRECT_ANSWER | EXECUTING → AGGREGATING} → DONE
//
// with ERROR terminal reachable from any state.
type Pipeline struct {
	router     *Router
	executor   *Executor
	aggregator *Aggregator
	sessions   *SessionStore
	models     config.Models
	hub        broadcast.Broadcaster // may be nil
}

// NewPipeline wires a Pipeline from its dependencies. hub may be nil when no
// observer feed is mounted.
func NewPipeline(gw *backend.Client, models config.Models, sessions *SessionStore, hub broadcast.Broadcaster) *Pipeline {
	return &Pipeline{
		router:     NewRouter(gw, models),
		executor:   NewExecutor(gw, models),
		aggregator: NewAggregator(gw, models),
		sessions:   sessions,
		models:     models,
		hub:        hub,
	}
}

// Sessions exposes the live-session store for the streaming endpoints.
func (p *Pipeline) Sessions() *SessionStore {
	return p.sessions
}

// Run executes the pipeline for one query, writing stream chunks through
// emit. The session is registered before any work starts and destroyed on
// every exit path, including panics. Subtasks run strictly sequentially in
// router order.
func (p *Pipeline) Run(ctx context.Context, query, sessionID string, emit func(string)) {
	start := time.Now()

	p.sessions.Create(sessionID)
	defer p.sessions.Destroy(sessionID)

	sink := &pipelineSink{ctx: ctx, pipeline: p, id: sessionID}

	status := session.StatusFailed
	defer func() {
		p.sessions.SetStatus(sessionID, status)
		p.broadcastStatus(ctx, sessionID, status)

		if r := recover(); r != nil {
			slog.Error("pipeline panic", "session_id", sessionID, "panic", r)
			sink.Log("Processing error", fmt.Sprint(r), session.LevelError)
			emit(sink.flush())
			emit(sectionError + fmt.Sprint(r))
		}
	}()

	usedModels := map[string]struct{}{}

	sink.Log("==== PROCESSING STARTED ====", "Query: "+query, session.LevelInfo)
	slog.Info("pipeline started", "session_id", sessionID)

	dec := p.router.Decompose(ctx, query, sink)
	usedModels[p.models.Orchestrator] = struct{}{}

	if dec.Direct {
		p.answerDirect(ctx, query, sink, emit)
		status = session.StatusDone
		return
	}

	if dec.Err != nil {
		emit(sink.flush())
		emit(sectionError + dec.Err.Error())
		return
	}

	if len(dec.Subtasks) == 0 {
		emit(sink.flush())
		emit(sectionError + "Failed to generate subtasks")
		return
	}

	var results []task.Result
	for _, st := range dec.Subtasks {
		res, models := p.executor.Route(ctx, st, sink)
		results = append(results, res...)
		for _, m := range models {
			usedModels[m] = struct{}{}
		}
	}

	if len(results) == 0 {
		emit(sink.flush())
		emit(sectionError + "No results from subtasks")
		return
	}

	final := p.aggregator.Synthesize(ctx, results, sink)
	usedModels[p.models.Orchestrator] = struct{}{}

	emit(sink.flush())
	emit(sectionFinal + final)
	emit(sectionStats + statistics(time.Since(start), usedModels))

	slog.Info("pipeline done",
		"session_id", sessionID,
		"subtasks", len(dec.Subtasks),
		"results", len(results),
		"elapsed", time.Since(start),
	)
	status = session.StatusDone
}

// answerDirect handles queries too short to decompose: one orchestrator
// call on the raw query.
func (p *Pipeline) answerDirect(ctx context.Context, query string, sink *pipelineSink, emit func(string)) {
	msg := p.router.gw.Chat(ctx, backend.ChatRequest{
		Model:       p.models.Orchestrator,
		Messages:    []backend.ChatMessage{{Role: "user", Content: query}},
		Temperature: 0.2,
	}, sink)

	answer := "Failed to generate response"
	if msg != nil {
		answer = msg.Content
	}

	emit(sink.flush())
	emit(sectionFinal + answer)
}

func (p *Pipeline) broadcastStatus(ctx context.Context, sessionID string, st session.Status) {
	if p.hub == nil {
		return
	}
	p.hub.BroadcastEvent(ctx, ws.EventSessionStatus, ws.SessionStatusEvent{
		SessionID: sessionID,
		Status:    string(st),
	})
}

// statistics renders the elapsed time and the sorted set of models invoked.
func statistics(elapsed time.Duration, used map[string]struct{}) string {
	models := make([]string, 0, len(used))
	for m := range used {
		models = append(models, m)
	}
	sort.Strings(models)

	return fmt.Sprintf("Processing time: %.2f seconds\nModels used: %s",
		elapsed.Seconds(), strings.Join(models, ", "))
}

// pipelineSink fans each progress entry out to the pipeline's own stream
// buffer, the live-session store, and the observer feed.
type pipelineSink struct {
	ctx      context.Context
	pipeline *Pipeline
	id       string

	mu  sync.Mutex
	buf []session.Entry
}

// Log implements session.Sink.
func (s *pipelineSink) Log(step string, payload any, level session.Level) {
	e := session.NewEntry(step, payload, level)

	s.mu.Lock()
	s.buf = append(s.buf, e)
	s.mu.Unlock()

	s.pipeline.sessions.Append(s.id, e)

	if s.pipeline.hub != nil {
		s.pipeline.hub.BroadcastEvent(s.ctx, ws.EventSessionLog, ws.SessionLogEvent{
			SessionID: s.id,
			Step:      e.Step,
			Level:     string(e.Level),
			Payload:   e.Payload,
		})
	}
}

// flush renders and clears the buffered entries for the response stream.
func (s *pipelineSink) flush() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts := make([]string, len(s.buf))
	for i, e := range s.buf {
		parts[i] = e.Render()
	}
	s.buf = nil
	return strings.Join(parts, "\n")
}
