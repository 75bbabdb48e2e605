// Package task defines the closed set of task categories, the keyword
// classifier, and the subtask types flowing through the pipeline.
package task

import "strings"

// Type is a task category used to select a specialized backend model.
type Type string

// The closed set of task types. Orchestrator and Default are reserved:
// Orchestrator never receives routed subtasks and Default is the fallback
// for unknown categories.
const (
	TypeCoding       Type = "coding"
	TypeMath         Type = "math"
	TypeExplanation  Type = "explanation"
	TypeCritique     Type = "critique"
	TypeOptimization Type = "optimization"
	TypeCreative     Type = "creative"
	TypeOrchestrator Type = "orchestrator"
	TypeDefault      Type = "default"
)

// RoutableTypes returns the task types a subtask may be routed to,
// excluding the reserved orchestrator and default entries.
func RoutableTypes() []Type {
	return []Type{
		TypeCoding,
		TypeMath,
		TypeExplanation,
		TypeCritique,
		TypeOptimization,
		TypeCreative,
	}
}

// Subtask is one decomposed unit of work produced by the router.
type Subtask struct {
	TaskType         string `json:"task_type"`
	Query            string `json:"query"`
	RecommendedModel string `json:"recommended_model"`
}

// Result is the output of one executed subtask.
type Result struct {
	TaskType string `json:"task_type"`
	Query    string `json:"query"`
	Text     string `json:"result"`
}

// KeywordGroup couples a task type with the substrings that select it.
type KeywordGroup struct {
	Type     Type
	Keywords []string
}

// ClassifierTable is the priority-ordered keyword table used by Classify.
// The first group whose keyword appears in the query wins, so the order is
// part of the contract: a query matching both "poem" and "code" is creative,
// and "math" outranks "optimize".
var ClassifierTable = []KeywordGroup{
	{TypeCreative, []string{"story", "narrative", "poem", "creative"}},
	{TypeCoding, []string{"code", "implement"}},
	{TypeMath, []string{"math", "equation", "formula"}},
	{TypeExplanation, []string{"explain", "how to"}},
	{TypeCritique, []string{"critique", "analyze", "issues"}},
	{TypeOptimization, []string{"optimize", "improve"}},
	{TypeMath, []string{"calculate", "solve"}},
	{TypeCritique, []string{"wrong", "problem"}},
}

// Classify assigns a task type to a query by case-insensitive substring
// matching against ClassifierTable. Queries matching no group are TypeDefault.
func Classify(query string) Type {
	q := strings.ToLower(query)
	for _, g := range ClassifierTable {
		for _, kw := range g.Keywords {
			if strings.Contains(q, kw) {
				return g.Type
			}
		}
	}
	return TypeDefault
}
