package authprofiles

import (
	"fmt"
	"net/http"
	"time"
)

// FailureReason is the cooldown bucket a profile failure is accounted under.
type FailureReason string

const (
	FailureAuth      FailureReason = "auth"
	FailureBilling   FailureReason = "billing"
	FailureRateLimit FailureReason = "rate_limit"
	FailureTimeout   FailureReason = "timeout"
	FailureFormat    FailureReason = "format"
	FailureUnknown   FailureReason = "unknown"
)

var failureReasons = []FailureReason{
	FailureAuth, FailureBilling, FailureRateLimit, FailureTimeout, FailureFormat, FailureUnknown,
}

// Valid reports whether r is one of the known failure reasons.
func (r FailureReason) Valid() bool {
	for _, known := range failureReasons {
		if r == known {
			return true
		}
	}
	return false
}

// ParseFailureReason parses a failure reason name.
func ParseFailureReason(s string) (FailureReason, error) {
	r := FailureReason(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown failure reason %q", s)
	}
	return r, nil
}

// DefaultCooldowns returns a fresh copy of the default cooldown table.
func DefaultCooldowns() map[FailureReason]time.Duration {
	return map[FailureReason]time.Duration{
		FailureAuth:      5 * time.Minute,
		FailureBilling:   60 * time.Minute,
		FailureRateLimit: 15 * time.Minute,
		FailureTimeout:   2 * time.Minute,
		FailureFormat:    30 * time.Second,
		FailureUnknown:   time.Minute,
	}
}

// FailoverReason is the classified cause of an upstream failure. It is a
// superset of FailureReason.
type FailoverReason string

const (
	ReasonAuth            FailoverReason = "auth"
	ReasonBilling         FailoverReason = "billing"
	ReasonRateLimit       FailoverReason = "rate_limit"
	ReasonTimeout         FailoverReason = "timeout"
	ReasonContextOverflow FailoverReason = "context_overflow"
	ReasonFormat          FailoverReason = "format"
	ReasonUnknown         FailoverReason = "unknown"
)

// FailureReason maps r onto its cooldown bucket. context_overflow and
// anything unrecognized land in unknown.
func (r FailoverReason) FailureReason() FailureReason {
	switch r {
	case ReasonAuth, ReasonBilling, ReasonRateLimit, ReasonTimeout, ReasonFormat:
		return FailureReason(r)
	default:
		return FailureUnknown
	}
}

// HTTPStatus is the status reported to callers for r.
func (r FailoverReason) HTTPStatus() int {
	switch r {
	case ReasonAuth:
		return http.StatusUnauthorized
	case ReasonBilling:
		return http.StatusPaymentRequired
	case ReasonRateLimit:
		return http.StatusTooManyRequests
	case ReasonTimeout:
		return http.StatusRequestTimeout
	case ReasonContextOverflow:
		return http.StatusRequestEntityTooLarge
	case ReasonFormat:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ShouldRotateProfile is true for credential-specific failures.
func (r FailoverReason) ShouldRotateProfile() bool {
	return r == ReasonAuth || r == ReasonBilling || r == ReasonRateLimit
}

// ShouldFallbackModel is true for payload-specific failures.
func (r FailoverReason) ShouldFallbackModel() bool {
	return r == ReasonContextOverflow || r == ReasonFormat
}

// FailoverReasonFromStatus maps an upstream HTTP status to a reason.
func FailoverReasonFromStatus(status int) FailoverReason {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ReasonAuth
	case http.StatusPaymentRequired:
		return ReasonBilling
	case http.StatusTooManyRequests:
		return ReasonRateLimit
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ReasonTimeout
	case http.StatusRequestEntityTooLarge:
		return ReasonContextOverflow
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ReasonFormat
	default:
		return ReasonUnknown
	}
}
