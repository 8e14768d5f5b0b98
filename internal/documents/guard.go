package documents

import (
	"fmt"
	"strings"
)

var statusRank = map[Status]int{
	StatusUploaded:   0,
	StatusProcessing: 1,
	StatusExtracted:  2,
	StatusClassified: 3,
	StatusPosted:     4,
}

// RetryTriggerPrefix marks triggers allowed to move status backwards.
const RetryTriggerPrefix = "retry_"

// CheckTransition enforces forward-only movement. POSTED accepts nothing,
// ERROR is reachable from any other state, and an ERROR document only leaves
// through a retry trigger.
func CheckTransition(from Status, t Transition) error {
	if from == StatusPosted {
		return fmt.Errorf("%w: document is already %s", ErrInvalidTransition, StatusPosted)
	}
	if t.StageOnly || t.ToStatus == StatusError {
		return nil
	}
	if strings.HasPrefix(t.Trigger, RetryTriggerPrefix) {
		return nil
	}
	if from == StatusError {
		return fmt.Errorf("%w: %s requires a retry to reach %s", ErrInvalidTransition, from, t.ToStatus)
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return nil
	}
	if statusRank[t.ToStatus] < fromRank {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, t.ToStatus)
	}
	return nil
}
