package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelmux/modelmux/internal/adapter/backend"
	"github.com/modelmux/modelmux/internal/config"
	"github.com/modelmux/modelmux/internal/domain/session"
	"github.com/modelmux/modelmux/internal/domain/task"
)

// Aggregator synthesizes subtask results into one final answer via the
// orchestrator model, with a deterministic concatenation fallback.
type Aggregator struct {
	gw     *backend.Client
	models config.Models
}

// NewAggregator creates an Aggregator.
func NewAggregator(gw *backend.Client, models config.Models) *Aggregator {
	return &Aggregator{gw: gw, models: models}
}

// Synthesize combines the results into a single polished answer. When the
// orchestrator model is unavailable it falls back to Concatenate, so
// synthesis never hard-fails once at least one subtask succeeded. The
// caller must not invoke it with an empty result set.
func (a *Aggregator) Synthesize(ctx context.Context, results []task.Result, sink session.Sink) string {
	var b strings.Builder
	b.WriteString("Combine these results into one coherent response:\n")
	for i, res := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "### %s\n%s", res.TaskType, res.Text)
	}

	msg := a.gw.Chat(ctx, backend.ChatRequest{
		Model: a.models.Orchestrator,
		Messages: []backend.ChatMessage{
			{Role: "system", Content: "Synthesize these inputs into one polished response"},
			{Role: "user", Content: b.String()},
		},
		Temperature: 0.2,
	}, sink)
	if msg == nil {
		sink.Log("Synthesis failed, falling back to concatenation", "", session.LevelWarning)
		return Concatenate(results)
	}

	return msg.Content
}

// Concatenate deterministically joins the results, labeled by task type.
// It is byte-for-byte reconstructible from its inputs.
func Concatenate(results []task.Result) string {
	parts := make([]string, len(results))
	for i, res := range results {
		parts[i] = fmt.Sprintf("## %s\n%s", res.TaskType, res.Text)
	}
	return strings.Join(parts, "\n")
}
