package task

import "testing"

func TestClassifyPriorityOrder(t *testing.T) {
	tests := []struct {
		query string
		want  Type
	}{
		// Creative outranks coding even though "code" also matches.
		{"write me a poem about code", TypeCreative},
		// Math (group 3) outranks optimization (group 6).
		{"optimize this math formula", TypeMath},
		{"implement a linked list", TypeCoding},
		{"explain quicksort", TypeExplanation},
		{"analyze the issues here", TypeCritique},
		{"improve the throughput", TypeOptimization},
		{"solve for x", TypeMath},
		{"what is wrong with this", TypeCritique},
		{"hello there", TypeDefault},
		{"EXPLAIN LOUDLY", TypeExplanation}, // case-insensitive
	}

	for _, tt := range tests {
		if got := Classify(tt.query); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.query, got, tt.want)
		}
	}
}

func TestClassifierTableOrder(t *testing.T) {
	// The table order is a behavioral contract; pin it.
	want := []Type{
		TypeCreative,
		TypeCoding,
		TypeMath,
		TypeExplanation,
		TypeCritique,
		TypeOptimization,
		TypeMath,
		TypeCritique,
	}

	if len(ClassifierTable) != len(want) {
		t.Fatalf("table has %d groups, want %d", len(ClassifierTable), len(want))
	}
	for i, g := range ClassifierTable {
		if g.Type != want[i] {
			t.Errorf("group %d is %s, want %s", i, g.Type, want[i])
		}
	}
}

func TestRoutableTypesExcludeReserved(t *testing.T) {
	for _, typ := range RoutableTypes() {
		if typ == TypeOrchestrator || typ == TypeDefault {
			t.Errorf("reserved type %s must not be routable", typ)
		}
	}
	if len(RoutableTypes()) != 6 {
		t.Errorf("expected 6 routable types, got %d", len(RoutableTypes()))
	}
}
