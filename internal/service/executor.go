package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelmux/modelmux/internal/adapter/backend"
	"github.com/modelmux/modelmux/internal/config"
	"github.com/modelmux/modelmux/internal/domain/session"
	"github.com/modelmux/modelmux/internal/domain/task"
)

// routeToolName is the function the orchestrator model calls to route a
// subtask to a specialized model.
const routeToolName = "route_to_model"

// routeTool builds the tool schema offered to the orchestrator model. The
// task_type enum excludes the reserved orchestrator and default entries.
func routeTool() backend.Tool {
	types := task.RoutableTypes()
	enum := make([]string, len(types))
	for i, t := range types {
		enum[i] = string(t)
	}

	return backend.Tool{
		Type: "function",
		Function: backend.ToolFunction{
			Name:        routeToolName,
			Description: "Route a subtask to the appropriate specialized model",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"task_type": map[string]any{
						"type":        "string",
						"enum":        enum,
						"description": "Type of subtask",
					},
					"query": map[string]any{
						"type":        "string",
						"description": "The specific subtask query",
					},
				},
				"required": []string{"task_type", "query"},
			},
		},
	}
}

// Executor runs subtasks against their specialized backend models.
type Executor struct {
	gw     *backend.Client
	models config.Models
}

// NewExecutor creates an Executor.
func NewExecutor(gw *backend.Client, models config.Models) *Executor {
	return &Executor{gw: gw, models: models}
}

// Execute runs one subtask against the model mapped to its task type
// (defaulting for unknown types). Returns the produced text, the model
// used, and false when the gateway exhausted its attempts.
func (e *Executor) Execute(ctx context.Context, taskType, query string, sink session.Sink) (string, string, bool) {
	model := e.models.Resolve(taskType)

	msg := e.gw.Chat(ctx, backend.ChatRequest{
		Model:       model,
		Messages:    []backend.ChatMessage{{Role: "user", Content: query}},
		Temperature: 0.2,
	}, sink)
	if msg == nil {
		return "", model, false
	}
	return msg.Content, model, true
}

// Route runs one subtask through the tool-call routing mode: the
// orchestrator model is asked to emit route_to_model calls, and each call is
// executed independently. A malformed tool-call argument payload is logged
// and skipped without aborting the rest. When the orchestrator produces no
// usable tool call at all, the subtask is executed directly by its own task
// type so a degraded orchestrator cannot strand it.
// Returns the results and the distinct models invoked.
func (e *Executor) Route(ctx context.Context, st task.Subtask, sink session.Sink) ([]task.Result, []string) {
	sink.Log(fmt.Sprintf("EXECUTING %s", strings.ToUpper(st.TaskType)),
		map[string]any{"query": st.Query}, session.LevelInfo)

	msg := e.gw.Chat(ctx, backend.ChatRequest{
		Model: e.models.Orchestrator,
		Messages: []backend.ChatMessage{
			{Role: "system", Content: fmt.Sprintf("Route this %s task", st.TaskType)},
			{Role: "user", Content: st.Query},
		},
		Temperature: 0.2,
		Tools:       []backend.Tool{routeTool()},
	}, sink)

	var (
		results []task.Result
		models  = []string{e.models.Orchestrator}
		routed  bool
	)

	if msg != nil {
		for _, tc := range msg.ToolCalls {
			if tc.Function.Name != routeToolName {
				continue
			}

			var args struct {
				TaskType string `json:"task_type"`
				Query    string `json:"query"`
			}
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				sink.Log("Failed to parse tool arguments", "", session.LevelError)
				continue
			}
			routed = true

			text, model, ok := e.Execute(ctx, args.TaskType, args.Query, sink)
			models = append(models, model)
			if ok {
				results = append(results, task.Result{
					TaskType: args.TaskType,
					Query:    args.Query,
					Text:     text,
				})
			}
		}
	}

	if !routed {
		sink.Log("No routing decision from orchestrator, executing directly",
			st.TaskType, session.LevelWarning)

		text, model, ok := e.Execute(ctx, st.TaskType, st.Query, sink)
		models = append(models, model)
		if ok {
			results = append(results, task.Result{
				TaskType: st.TaskType,
				Query:    st.Query,
				Text:     text,
			})
		}
	}

	return results, models
}
