package authprofiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Code is the stable discriminator of an *Error.
type Code string

const (
	CodeAuthFailed        Code = "AUTH_FAILED"
	CodeBilling           Code = "BILLING_ERROR"
	CodeRateLimit         Code = "RATE_LIMIT"
	CodeContextOverflow   Code = "CONTEXT_OVERFLOW"
	CodeCompactionFailed  Code = "COMPACTION_FAILED"
	CodeTimeout           Code = "TIMEOUT"
	CodeInvalidFormat     Code = "INVALID_FORMAT"
	CodeModelNotSupported Code = "MODEL_NOT_SUPPORTED"
	CodeSessionNotFound   Code = "SESSION_NOT_FOUND"
	CodeFailover          Code = "FAILOVER"
)

var errorNames = map[Code]string{
	CodeAuthFailed:        "AuthenticationError",
	CodeBilling:           "BillingError",
	CodeRateLimit:         "RateLimitError",
	CodeContextOverflow:   "ContextOverflowError",
	CodeCompactionFailed:  "CompactionFailureError",
	CodeTimeout:           "TimeoutError",
	CodeInvalidFormat:     "FormatError",
	CodeModelNotSupported: "ModelNotSupportedError",
	CodeSessionNotFound:   "SessionNotFoundError",
	CodeFailover:          "FailoverError",
}

// Details is the kind-specific payload of an *Error.
type Details interface {
	fields(m map[string]any)
}

// AuthDetails accompanies CodeAuthFailed and CodeBilling.
type AuthDetails struct {
	Provider  string
	ProfileID string
}

type RateLimitDetails struct {
	Provider          string
	RetryAfterSeconds int // 0 when the upstream gave no hint
}

type ContextOverflowDetails struct {
	CurrentTokens int
	MaxTokens     int
}

// SessionDetails accompanies CodeCompactionFailed and CodeSessionNotFound.
type SessionDetails struct {
	SessionID string
}

type TimeoutDetails struct {
	TimeoutMs int64
}

type FormatDetails struct {
	Details string
}

type ModelDetails struct {
	Model    string
	Provider string
}

// FailoverDetails carries the classified reason of a failed provider call.
type FailoverDetails struct {
	Reason    FailoverReason
	Provider  string
	Model     string
	ProfileID string
}

func (d AuthDetails) fields(m map[string]any) {
	m["provider"] = d.Provider
	if d.ProfileID != "" {
		m["profileId"] = d.ProfileID
	}
}

func (d RateLimitDetails) fields(m map[string]any) {
	m["provider"] = d.Provider
	if d.RetryAfterSeconds > 0 {
		m["retryAfterSeconds"] = d.RetryAfterSeconds
	}
}

func (d ContextOverflowDetails) fields(m map[string]any) {
	m["currentTokens"] = d.CurrentTokens
	m["maxTokens"] = d.MaxTokens
}

func (d SessionDetails) fields(m map[string]any) { m["sessionId"] = d.SessionID }

func (d TimeoutDetails) fields(m map[string]any) { m["timeoutMs"] = d.TimeoutMs }

func (d FormatDetails) fields(m map[string]any) {
	if d.Details != "" {
		m["details"] = d.Details
	}
}

func (d ModelDetails) fields(m map[string]any) {
	m["model"] = d.Model
	m["provider"] = d.Provider
}

func (d FailoverDetails) fields(m map[string]any) {
	m["reason"] = d.Reason
	m["provider"] = d.Provider
	m["model"] = d.Model
	if d.ProfileID != "" {
		m["profileId"] = d.ProfileID
	}
	m["shouldRotateProfile"] = d.Reason.ShouldRotateProfile()
	m["shouldFallbackModel"] = d.Reason.ShouldFallbackModel()
}

// Error is the structured failure type shared by the whole package.
type Error struct {
	Code       Code
	Message    string
	Retryable  bool
	HTTPStatus int
	Details    Details
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches another *Error with the same code, so errors.Is(err,
// &Error{Code: CodeAuthFailed}) works through wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// Name is the kind name used in serialized output.
func (e *Error) Name() string {
	if name, ok := errorNames[e.Code]; ok {
		return name
	}
	return "Error"
}

// WithCause sets the wrapped cause and returns e.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"name":       e.Name(),
		"code":       e.Code,
		"message":    e.Message,
		"retryable":  e.Retryable,
		"httpStatus": e.HTTPStatus,
	}
	if e.Cause != nil {
		m["cause"] = e.Cause.Error()
	}
	if e.Details != nil {
		e.Details.fields(m)
	}
	return json.Marshal(m)
}

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// IsCode reports whether err's chain holds an *Error with the given code.
func IsCode(err error, code Code) bool {
	return errors.Is(err, &Error{Code: code})
}

// NewAuthenticationError reports that no usable profile exists for provider
// (or that the explicitly requested profileID is unusable).
func NewAuthenticationError(provider, profileID string) *Error {
	msg := fmt.Sprintf("no available auth profile for provider %q", provider)
	if profileID != "" {
		msg = fmt.Sprintf("auth profile %q is not available for provider %q", profileID, provider)
	}
	return &Error{
		Code:       CodeAuthFailed,
		Message:    msg,
		Retryable:  true,
		HTTPStatus: http.StatusUnauthorized,
		Details:    AuthDetails{Provider: provider, ProfileID: profileID},
	}
}

func NewBillingError(provider, profileID string) *Error {
	msg := fmt.Sprintf("billing error for provider %q", provider)
	if profileID != "" {
		msg += fmt.Sprintf(" (profile %q)", profileID)
	}
	return &Error{
		Code:       CodeBilling,
		Message:    msg,
		Retryable:  true,
		HTTPStatus: http.StatusPaymentRequired,
		Details:    AuthDetails{Provider: provider, ProfileID: profileID},
	}
}

func NewRateLimitError(provider string, retryAfterSeconds int) *Error {
	msg := fmt.Sprintf("rate limited by provider %q", provider)
	if retryAfterSeconds > 0 {
		msg += fmt.Sprintf(", retry after %ds", retryAfterSeconds)
	}
	return &Error{
		Code:       CodeRateLimit,
		Message:    msg,
		Retryable:  true,
		HTTPStatus: http.StatusTooManyRequests,
		Details:    RateLimitDetails{Provider: provider, RetryAfterSeconds: retryAfterSeconds},
	}
}

func NewContextOverflowError(currentTokens, maxTokens int) *Error {
	return &Error{
		Code:       CodeContextOverflow,
		Message:    fmt.Sprintf("context overflow: %d tokens exceeds the %d token limit", currentTokens, maxTokens),
		Retryable:  true,
		HTTPStatus: http.StatusRequestEntityTooLarge,
		Details:    ContextOverflowDetails{CurrentTokens: currentTokens, MaxTokens: maxTokens},
	}
}

func NewCompactionFailureError(sessionID string) *Error {
	return &Error{
		Code:       CodeCompactionFailed,
		Message:    fmt.Sprintf("compaction failed for session %q", sessionID),
		HTTPStatus: http.StatusInternalServerError,
		Details:    SessionDetails{SessionID: sessionID},
	}
}

func NewTimeoutError(timeoutMs int64) *Error {
	return &Error{
		Code:       CodeTimeout,
		Message:    fmt.Sprintf("request timed out after %dms", timeoutMs),
		Retryable:  true,
		HTTPStatus: http.StatusRequestTimeout,
		Details:    TimeoutDetails{TimeoutMs: timeoutMs},
	}
}

func NewFormatError(details string) *Error {
	msg := "invalid request format"
	if details != "" {
		msg += ": " + details
	}
	return &Error{
		Code:       CodeInvalidFormat,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Details:    FormatDetails{Details: details},
	}
}

func NewModelNotSupportedError(model, provider string) *Error {
	return &Error{
		Code:       CodeModelNotSupported,
		Message:    fmt.Sprintf("model %q is not supported by provider %q", model, provider),
		HTTPStatus: http.StatusBadRequest,
		Details:    ModelDetails{Model: model, Provider: provider},
	}
}

func NewSessionNotFoundError(sessionID string) *Error {
	return &Error{
		Code:       CodeSessionNotFound,
		Message:    fmt.Sprintf("session %q not found", sessionID),
		HTTPStatus: http.StatusNotFound,
		Details:    SessionDetails{SessionID: sessionID},
	}
}

// NewFailoverError describes a failed provider call classified as reason.
// Its HTTP status follows the reason.
func NewFailoverError(reason FailoverReason, provider, model, profileID string) *Error {
	msg := fmt.Sprintf("provider %q failed with %s", provider, reason)
	if model != "" {
		msg = fmt.Sprintf("provider %q model %q failed with %s", provider, model, reason)
	}
	return &Error{
		Code:       CodeFailover,
		Message:    msg,
		Retryable:  true,
		HTTPStatus: reason.HTTPStatus(),
		Details:    FailoverDetails{Reason: reason, Provider: provider, Model: model, ProfileID: profileID},
	}
}
