package health

import (
	"context"
	"testing"
)

func TestOverall(t *testing.T) {
	tests := []struct {
		name       string
		components []Component
		expected   string
	}{
		{name: "no components", components: nil, expected: StatusUp},
		{name: "all up", components: []Component{{Status: StatusUp}, {Status: StatusUp}}, expected: StatusUp},
		{name: "one down", components: []Component{{Status: StatusUp}, {Status: StatusDown}}, expected: StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overall(tt.components); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestCheckerFunc(t *testing.T) {
	var checker Checker = CheckerFunc(func(context.Context) Component {
		return Component{Name: "db", Status: StatusUp}
	})

	if got := checker.Check(context.Background()); got.Name != "db" {
		t.Errorf("expected db component, got %+v", got)
	}
}
