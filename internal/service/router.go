package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/modelmux/modelmux/internal/adapter/backend"
	"github.com/modelmux/modelmux/internal/config"
	"github.com/modelmux/modelmux/internal/domain/session"
	"github.com/modelmux/modelmux/internal/domain/task"
	"github.com/modelmux/modelmux/internal/extract"
)

// ErrOrchestratorUnavailable is returned when the orchestrator model itself
// cannot be reached. It is distinct from a malformed decomposition, which
// falls back to the keyword classifier instead.
var ErrOrchestratorUnavailable = errors.New("orchestration failed: orchestrator model unavailable")

// routerSystemPrompt instructs the orchestrator model to decompose a query
// into typed subtasks.
const routerSystemPrompt = `You are an AI task router. Analyze the user query and return JSON specifying which specialized models to use. The JSON should have this structure:
{
  "subtasks": [
    {
      "task_type": "task_category",
      "query": "specific_question",
      "recommended_model": "model_name"
    }
  ]
}

Available task categories: coding, math, explanation, critique, optimization, creative

IMPORTANT:
1. Return ONLY valid JSON
2. Use double quotes
3. Break down complex queries into separate subtasks
4. Match each subtask to the most specialized model`

// Decomposition is the outcome of routing a query: a direct-answer
// short-circuit, a subtask list, or an orchestrator failure.
type Decomposition struct {
	Direct   bool
	Subtasks []task.Subtask
	Err      error
}

// Router decomposes queries into subtasks via the orchestrator model, with
// a deterministic keyword-classifier fallback.
type Router struct {
	gw     *backend.Client
	models config.Models
}

// NewRouter creates a Router.
func NewRouter(gw *backend.Client, models config.Models) *Router {
	return &Router{gw: gw, models: models}
}

// Decompose routes a query. Queries under three tokens short-circuit to a
// direct answer. A reply the extractor cannot parse degrades to a single
// classifier-derived subtask; an unreachable orchestrator is an error.
func (r *Router) Decompose(ctx context.Context, query string, sink session.Sink) Decomposition {
	if len(strings.Fields(query)) < 3 {
		return Decomposition{Direct: true}
	}

	sink.Log("Starting orchestration", map[string]any{"query": query}, session.LevelInfo)

	msg := r.gw.Chat(ctx, backend.ChatRequest{
		Model: r.models.Orchestrator,
		Messages: []backend.ChatMessage{
			{Role: "system", Content: routerSystemPrompt},
			{Role: "user", Content: query},
		},
		Temperature: 0.2,
	}, sink)
	if msg == nil {
		return Decomposition{Err: ErrOrchestratorUnavailable}
	}

	if obj, ok := extract.Object(msg.Content); ok {
		sink.Log("Parsed subtasks", obj, session.LevelInfo)
		return Decomposition{Subtasks: subtasksFrom(obj)}
	}

	sink.Log("JSON extraction failed, using task detection", "", session.LevelWarning)
	detected := task.Classify(query)

	return Decomposition{Subtasks: []task.Subtask{{
		TaskType:         string(detected),
		Query:            query,
		RecommendedModel: r.models.Resolve(string(detected)),
	}}}
}

// subtasksFrom re-decodes the extracted object into the subtask list.
// Subtask task types are deliberately not validated here; unknown types
// resolve to the default model at execution time.
func subtasksFrom(obj map[string]any) []task.Subtask {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil
	}
	var parsed struct {
		Subtasks []task.Subtask `json:"subtasks"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil
	}
	return parsed.Subtasks
}
