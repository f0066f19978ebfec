package engine

import (
	"fmt"
	"time"
)

// Denial and failure reasons surfaced to clients.
const (
	ReasonRateLimited            = "rate_limited"
	ReasonVoiceBudgetExceeded    = "voice_budget_exceeded"
	ReasonPremiumFeatureRequired = "premium_feature_required"
	ReasonAuthenticationRequired = "authentication_required"
	ReasonValidationFailed       = "validation_failed"
	ReasonUpstreamFailure        = "upstream_failure"
	ReasonVoiceUnavailable       = "voice_unavailable"
)

// AdmissionError is a terminal denial made before any work happened: nothing
// was generated and nothing was consumed.
type AdmissionError struct {
	Reason     string
	RetryAfter time.Duration
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("admission denied: %s", e.Reason)
}

// ValidationError marks a malformed or unauthorized request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// UpstreamError marks a failure of a required dependency mid-turn. Step names
// the stage that failed.
type UpstreamError struct {
	Step string
	Err  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
