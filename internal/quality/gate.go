package quality

// Decision is the gate outcome.
type Decision string

const (
	DecisionPassed      Decision = "passed"
	DecisionNeedsReview Decision = "needs_review"
)

// DefaultMinPassScore is the lowest score that passes without review.
const DefaultMinPassScore = 70

// Gate turns a Result into a Decision. It never blocks ingestion.
type Gate struct {
	MinPassScore int
}

// Decide returns needs_review when any issue is critical or the score is
// below the pass mark.
func (g Gate) Decide(r Result) Decision {
	passMark := g.MinPassScore
	if passMark <= 0 {
		passMark = DefaultMinPassScore
	}
	if r.HasCritical() || r.Score < passMark {
		return DecisionNeedsReview
	}
	return DecisionPassed
}

// Decide applies the default gate.
func Decide(r Result) Decision {
	return Gate{}.Decide(r)
}
