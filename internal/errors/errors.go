// Package errors implements the flat error taxonomy of the coordinator:
// every error surfaced past a component boundary carries a Kind, whether
// it is safe to retry, and a message fit for display to an end user.
package errors

import (
	"errors"
	"fmt"
)

// Kind enumerates the coordinator's error taxonomy.
type Kind string

const (
	// Location
	KindLocationPermissionDenied Kind = "LocationPermissionDenied"
	KindLocationUnavailable      Kind = "LocationUnavailable"
	KindLocationTimeout          Kind = "LocationTimeout"
	KindLocationAccuracyLow      Kind = "LocationAccuracyLow"
	KindLocationTooFar           Kind = "LocationTooFar"
	KindInvalidCoordinates       Kind = "InvalidCoordinates"

	// Verification
	KindSuspiciousPattern  Kind = "SuspiciousPattern"
	KindVerificationPending Kind = "VerificationPending"
	KindVerificationFailed Kind = "VerificationFailed"
	KindVerificationTimeout Kind = "VerificationTimeout"

	// Rate limiting
	KindRateLimitExceeded     Kind = "RateLimitExceeded"
	KindNotificationRateLimit Kind = "NotificationRateLimit"

	// User status
	KindUserBanned         Kind = "UserBanned"
	KindUserSuspicious     Kind = "UserSuspicious"
	KindProfileIncomplete  Kind = "ProfileIncomplete"

	// Queue state
	KindQueueNotFound            Kind = "QueueNotFound"
	KindInvalidStatusTransition  Kind = "InvalidStatusTransition"
	KindQueueAlreadyCompleted    Kind = "QueueAlreadyCompleted"
	KindQueueCancelled           Kind = "QueueCancelled"
	KindAlreadyInQueue           Kind = "AlreadyInQueue"
	KindMultipleActiveQueues     Kind = "MultipleActiveQueues"

	// Authorization
	KindUnauthorized   Kind = "Unauthorized"
	KindForbidden      Kind = "Forbidden"
	KindNotQueueOwner  Kind = "NotQueueOwner"
	KindNotVenueOwner  Kind = "NotVenueOwner"

	// Venue
	KindVenueNotFound        Kind = "VenueNotFound"
	KindVenueClosed          Kind = "VenueClosed"
	KindVenueLocationMissing Kind = "VenueLocationMissing"

	// Notification
	KindNotificationFailed   Kind = "NotificationFailed"
	KindExternalMessageFailed Kind = "ExternalMessageFailed"
	KindRealtimeFailed       Kind = "RealtimeFailed"
	KindPushFailed           Kind = "PushFailed"

	// Validation
	KindInvalidInput        Kind = "InvalidInput"
	KindMissingRequiredField Kind = "MissingRequiredField"
	KindInvalidQueueId      Kind = "InvalidQueueId"
	KindInvalidUserId       Kind = "InvalidUserId"
	KindInvalidVenueId      Kind = "InvalidVenueId"

	// Server
	KindDatabaseError   Kind = "DatabaseError"
	KindInternalError   Kind = "InternalError"
	KindServiceUnavailable Kind = "ServiceUnavailable"
)

// Error is the coordinator's single error type. Every error that crosses
// a component boundary (queue service, verification engine, request
// boundary) should be, or wrap, one of these.
type Error struct {
	Kind        Kind
	Retryable   bool
	UserMessage string
	Details     map[string]interface{}
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.UserMessage, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.UserMessage)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is(err, Kind) style matching work via a sentinel compare
// on Kind rather than identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an Error of the given kind.
func New(kind Kind, userMessage string) *Error {
	return &Error{Kind: kind, UserMessage: userMessage, Retryable: retryableByDefault(kind)}
}

// Wrap attaches cause to a new Error of the given kind, preserving the
// chain for %w-style inspection.
func Wrap(kind Kind, userMessage string, cause error) *Error {
	return &Error{Kind: kind, UserMessage: userMessage, Retryable: retryableByDefault(kind), cause: cause}
}

// WithDetails attaches structured detail fields and returns the receiver
// for chaining at the call site.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

func retryableByDefault(kind Kind) bool {
	switch kind {
	case KindDatabaseError, KindServiceUnavailable, KindExternalMessageFailed,
		KindRealtimeFailed, KindPushFailed, KindNotificationFailed, KindLocationTimeout,
		KindVerificationTimeout:
		return true
	default:
		return false
	}
}

// KindOf extracts the Kind of err if it is, or wraps, an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// AsInternal maps any unrecognized error to InternalError, never leaking
// the underlying message verbatim to the caller (per §7 propagation
// policy), while keeping the original error wrapped for logs.
func AsInternal(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(KindInternalError, "an internal error occurred", err)
}
