// internal/common/errors/errors.go

// Package errors provides standardized error handling for the recommendation
// pipeline and the event lifecycle state machine.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Configuration errors are fatal at startup, never per run.
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	// Transient external errors are absorbed at the component boundary,
	// reflected in progress flags and never surfaced as a run failure.
	ErrCodeGeoSearchTimeout   ErrorCode = "GEO_SEARCH_TIMEOUT"
	ErrCodeGeoSearchFailed    ErrorCode = "GEO_SEARCH_FAILED"
	ErrCodeDistanceMatrixFail ErrorCode = "DISTANCE_MATRIX_FAILED"
	ErrCodeGeminiTimeout      ErrorCode = "GEMINI_TIMEOUT"
	ErrCodeGeminiFailed       ErrorCode = "GEMINI_ANALYSIS_FAILED"

	// Data-quality errors are terminal for the run and propagate to the
	// state machine, which returns the event to GatheringPreferences.
	ErrCodeNoPreferences     ErrorCode = "NO_PREFERENCES_SUBMITTED"
	ErrCodeNoCandidatesFound ErrorCode = "NO_CANDIDATES_FOUND"

	// Invariant violations are rejected at the aggregation boundary.
	ErrCodeInvalidPreferencePayload ErrorCode = "INVALID_PREFERENCE_PAYLOAD"
	ErrCodeNegativeRadius           ErrorCode = "NEGATIVE_RADIUS"

	// Lifecycle errors.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeRunAlreadyActive  ErrorCode = "RUN_ALREADY_ACTIVE"
	ErrCodeGuardRejected     ErrorCode = "TRANSITION_GUARD_REJECTED"

	// Persistence / infrastructure.
	ErrCodeEventNotFound       ErrorCode = "EVENT_NOT_FOUND"
	ErrCodeDatabaseQueryFailed ErrorCode = "DATABASE_QUERY_FAILED"
	ErrCodeStateConflict       ErrorCode = "STATE_CONFLICT"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
)

// Class buckets error codes by propagation policy.
type Class string

const (
	ClassConfiguration Class = "configuration"
	ClassTransient     Class = "transient_external"
	ClassDataQuality   Class = "data_quality"
	ClassInvariant     Class = "invariant_violation"
	ClassInternal      Class = "internal"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Class     Class                  `json:"class"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewGeoTimeoutError marks the external place search as timed out. Recoverable:
// the sourcing stage continues with catalog candidates only.
func NewGeoTimeoutError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeGeoSearchTimeout,
		Class:     ClassTransient,
		Message:   "External venue search timed out",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewGeoFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeGeoSearchFailed,
		Class:     ClassTransient,
		Message:   "External venue search failed",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewGeminiTimeoutError marks the AI re-ranking call as timed out. The
// deterministic ranking is published unchanged.
func NewGeminiTimeoutError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeGeminiTimeout,
		Class:     ClassTransient,
		Message:   "AI reasoning service timed out",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewGeminiFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeGeminiFailed,
		Class:     ClassTransient,
		Message:   "AI reasoning service returned an unusable response",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNoPreferencesError is terminal for the run: the event has participants
// but none submitted preferences.
func NewNoPreferencesError(eventID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoPreferences,
		Class:     ClassDataQuality,
		Message:   "No participant preferences submitted",
		Retryable: false,
		Metadata:  map[string]interface{}{"eventId": eventID},
		Timestamp: time.Now().UTC(),
	}
}

// NewNoCandidatesError is terminal for the run: both sourcing channels came
// back empty.
func NewNoCandidatesError(eventID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoCandidatesFound,
		Class:     ClassDataQuality,
		Message:   "Could not generate recommendations, please retry",
		Retryable: false,
		Metadata:  map[string]interface{}{"eventId": eventID},
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidPayloadError rejects a malformed preference record. Never coerced.
func NewInvalidPayloadError(participantID, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidPreferencePayload,
		Class:     ClassInvariant,
		Message:   "Malformed preference payload",
		Details:   details,
		Retryable: false,
		Metadata:  map[string]interface{}{"participantId": participantID},
		Timestamp: time.Now().UTC(),
	}
}

func NewNegativeRadiusError(participantID string, radius int) *StandardError {
	return &StandardError{
		Code:      ErrCodeNegativeRadius,
		Class:     ClassInvariant,
		Message:   "Preference radius must not be negative",
		Retryable: false,
		Metadata: map[string]interface{}{
			"participantId": participantID,
			"radius":        radius,
		},
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidTransitionError(from, trigger string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTransition,
		Class:     ClassInvariant,
		Message:   fmt.Sprintf("No transition from state %q on trigger %q", from, trigger),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewGuardRejectedError(from, trigger, reason string) *StandardError {
	return &StandardError{
		Code:      ErrCodeGuardRejected,
		Class:     ClassInvariant,
		Message:   fmt.Sprintf("Transition from %q on %q rejected: %s", from, trigger, reason),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRunAlreadyActiveError signals an idempotent no-op: a pipeline run is
// already in flight for this event.
func NewRunAlreadyActiveError(eventID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRunAlreadyActive,
		Class:     ClassInvariant,
		Message:   "A recommendation run is already active for this event",
		Retryable: false,
		Metadata:  map[string]interface{}{"eventId": eventID},
		Timestamp: time.Now().UTC(),
	}
}

func NewEventNotFoundError(eventID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEventNotFound,
		Class:     ClassInternal,
		Message:   "Event not found",
		Retryable: false,
		Metadata:  map[string]interface{}{"eventId": eventID},
		Timestamp: time.Now().UTC(),
	}
}

func NewDatabaseError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseQueryFailed,
		Class:     ClassInternal,
		Message:   "Database query failed",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStateConflictError reports a lost check-and-set race on the event state.
func NewStateConflictError(eventID, expected string) *StandardError {
	return &StandardError{
		Code:      ErrCodeStateConflict,
		Class:     ClassInternal,
		Message:   "Event state changed concurrently",
		Retryable: false,
		Metadata: map[string]interface{}{
			"eventId":       eventID,
			"expectedState": expected,
		},
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Classification Helpers
// ==========================

// CodeOf extracts the ErrorCode from err, unwrapping as needed.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ""
}

// ClassOf extracts the taxonomy class from err; unknown errors are internal.
func ClassOf(err error) Class {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Class
	}
	return ClassInternal
}

// IsTransient reports whether the error is absorbed locally via fallback
// instead of failing the run.
func IsTransient(err error) bool {
	return ClassOf(err) == ClassTransient
}

// IsTerminalForRun reports whether the error ends the pipeline run and
// propagates to the state machine.
func IsTerminalForRun(err error) bool {
	c := ClassOf(err)
	return c == ClassDataQuality || c == ClassInvariant
}
