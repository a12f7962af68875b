package queue

import (
	cerrors "github.com/waitline/queuecoord/internal/errors"
)

// allowedTransitions is the permitted-transition table of §4.H. Anything
// not listed here is InvalidStatusTransition.
var allowedTransitions = map[Status][]Status{
	StatusWaiting:             {StatusNotified, StatusNoShow},
	StatusNotified:            {StatusPendingVerification, StatusNearby, StatusNoShow},
	StatusPendingVerification: {StatusNearby, StatusNotified, StatusNoShow},
	StatusNearby:              {StatusInProgress, StatusNoShow},
	StatusInProgress:          {StatusCompleted, StatusNoShow},
	StatusCompleted:           {},
	StatusNoShow:              {},
}

// ValidStatuses returns the statuses reachable from current, for error
// details on an InvalidStatusTransition (see spec.md §8 scenario 4).
func ValidStatuses(current Status) []Status {
	return allowedTransitions[current]
}

// validateTransition reports whether from -> to is permitted.
func validateTransition(from, to Status) error {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return cerrors.New(cerrors.KindInvalidStatusTransition, "transition not permitted").
		WithDetails(map[string]interface{}{
			"from":          string(from),
			"to":            string(to),
			"validStatuses": ValidStatuses(from),
		})
}
