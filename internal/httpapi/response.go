package httpapi

import (
	"encoding/json"
	"net/http"

	cerrors "github.com/waitline/queuecoord/internal/errors"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind       string                 `json:"kind"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	RetryAfter int                    `json:"retryAfter,omitempty"`
}

// statusForKind maps the coordinator's error taxonomy onto HTTP status
// codes per §7.
func statusForKind(kind cerrors.Kind) int {
	switch kind {
	case cerrors.KindInvalidInput, cerrors.KindMissingRequiredField, cerrors.KindInvalidQueueId,
		cerrors.KindInvalidUserId, cerrors.KindInvalidVenueId, cerrors.KindInvalidCoordinates,
		cerrors.KindLocationAccuracyLow:
		return http.StatusBadRequest
	case cerrors.KindUnauthorized:
		return http.StatusUnauthorized
	case cerrors.KindForbidden, cerrors.KindNotQueueOwner, cerrors.KindNotVenueOwner, cerrors.KindUserBanned:
		return http.StatusForbidden
	case cerrors.KindQueueNotFound, cerrors.KindVenueNotFound:
		return http.StatusNotFound
	case cerrors.KindAlreadyInQueue, cerrors.KindMultipleActiveQueues, cerrors.KindInvalidStatusTransition,
		cerrors.KindQueueAlreadyCompleted, cerrors.KindQueueCancelled:
		return http.StatusConflict
	case cerrors.KindRateLimitExceeded, cerrors.KindNotificationRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a JSON error body with the matching status.
// Any error not already a *cerrors.Error is folded into KindInternalError
// so callers never leak an unmapped type.
func writeError(w http.ResponseWriter, err error) {
	internal := cerrors.AsInternal(err)
	status := statusForKind(internal.Kind)

	body := errorBody{Kind: string(internal.Kind), Message: internal.UserMessage, Details: internal.Details}
	if v, ok := internal.Details["retryAfter"]; ok {
		if seconds, ok := v.(int); ok {
			body.RetryAfter = seconds
		}
	}
	writeJSON(w, status, errorResponse{Error: body})
}
