package authprofiles

import (
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// failoverPatterns is checked top to bottom; the first hit wins. Billing sits
// above rate_limit because quota exhaustion messages also mention "quota".
var failoverPatterns = []struct {
	reason  FailoverReason
	needles []string
}{
	{ReasonAuth, []string{
		"unauthorized", "invalid api key", "invalid_api_key", "authentication failed",
		"auth", "401", "403", "forbidden", "invalid_authentication",
	}},
	{ReasonBilling, []string{
		"insufficient", "quota", "credits", "billing", "payment", "402",
		"no_credits", "insufficient_quota", "account suspended",
	}},
	{ReasonRateLimit, []string{
		"rate limit", "rate_limit", "too many requests", "429", "overloaded",
		"quota_exceeded", "throttle",
	}},
	{ReasonTimeout, []string{
		"timeout", "timed out", "deadline", "408", "aborterror", "connection timeout",
	}},
	{ReasonContextOverflow, []string{
		"context", "too long", "maximum context", "max_tokens", "token limit",
		"input too large", "413",
	}},
	{ReasonFormat, []string{
		"invalid format", "malformed", "parse error", "invalid_request", "bad request", "400",
	}},
}

var reasonByCode = map[Code]FailoverReason{
	CodeAuthFailed:      ReasonAuth,
	CodeBilling:         ReasonBilling,
	CodeRateLimit:       ReasonRateLimit,
	CodeTimeout:         ReasonTimeout,
	CodeContextOverflow: ReasonContextOverflow,
	CodeInvalidFormat:   ReasonFormat,
}

// ClassifyFailoverReason maps an upstream error to a FailoverReason. It never
// fails: nil and unrecognized errors yield ReasonUnknown.
//
// The message is matched first. Only when it says nothing recognizable does
// the structure of the error count: an *Error code in the chain, then the
// status of an Anthropic API error. A 400 or 422 status is not decisive, as
// Anthropic reports context overflow and billing problems that way too.
func ClassifyFailoverReason(err error) FailoverReason {
	if err == nil {
		return ReasonUnknown
	}
	if r := ClassifyMessage(err.Error()); r != ReasonUnknown {
		return r
	}
	if e, ok := AsError(err); ok {
		if d, ok := e.Details.(FailoverDetails); ok && e.Code == CodeFailover {
			return d.Reason
		}
		if r, ok := reasonByCode[e.Code]; ok {
			return r
		}
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr != nil &&
		apiErr.StatusCode != http.StatusBadRequest && apiErr.StatusCode != http.StatusUnprocessableEntity {
		return FailoverReasonFromStatus(apiErr.StatusCode)
	}
	return ReasonUnknown
}

// ClassifyMessage runs the case-insensitive substring heuristic over msg.
func ClassifyMessage(msg string) FailoverReason {
	msg = strings.ToLower(msg)
	if msg == "" {
		return ReasonUnknown
	}
	for _, p := range failoverPatterns {
		for _, needle := range p.needles {
			if strings.Contains(msg, needle) {
				return p.reason
			}
		}
	}
	return ReasonUnknown
}
