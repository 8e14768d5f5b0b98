package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecideBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   Decision
	}{
		{name: "exactly seventy passes", result: Result{Score: 70}, want: DecisionPassed},
		{name: "sixty nine needs review", result: Result{Score: 69}, want: DecisionNeedsReview},
		{
			name: "critical at full score needs review",
			result: Result{Score: 100, Issues: []Issue{
				{ID: "missing_content", Severity: SeverityCritical},
			}},
			want: DecisionNeedsReview,
		},
		{
			name: "warnings above the mark pass",
			result: Result{Score: 85, Issues: []Issue{
				{ID: "file_too_small", Severity: SeverityWarning},
			}},
			want: DecisionPassed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.result))
		})
	}
}

func TestGateCustomPassMark(t *testing.T) {
	g := Gate{MinPassScore: 80}
	assert.Equal(t, DecisionNeedsReview, g.Decide(Result{Score: 79}))
	assert.Equal(t, DecisionPassed, g.Decide(Result{Score: 80}))
}
