package authprofiles

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// CallFunc performs one provider call with the selected credentials.
type CallFunc func(ctx context.Context, creds Credentials) error

// Do runs fn with up to attempts profiles. Each failure is classified and
// recorded; the next profile is tried only when the reason is
// credential-specific and cfg did not pin a ProfileID. Failures come back as
// a FailoverError wrapping fn's error. When the provider runs out of eligible
// profiles, the AuthenticationError wraps the last failure.
func (m *Manager) Do(ctx context.Context, cfg AuthConfig, model string, attempts int, fn CallFunc) error {
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		creds, err := m.Authenticate(cfg)
		if err != nil {
			if last != nil {
				if ae, ok := AsError(err); ok {
					return ae.WithCause(last)
				}
			}
			return err
		}

		err = fn(ctx, creds)
		if err == nil {
			m.RecordSuccess(creds.ProfileID)
			return nil
		}
		if ctx.Err() != nil {
			// Cancellation says nothing about the profile.
			return err
		}

		reason := ClassifyFailoverReason(err)
		m.RecordFailure(creds.ProfileID, reason)
		last = NewFailoverError(reason, creds.Provider, model, creds.ProfileID).WithCause(err)
		if !reason.ShouldRotateProfile() || cfg.ProfileID != "" {
			return last
		}
		m.log.WithFields(log.Fields{
			"provider": creds.Provider,
			"profile":  creds.ProfileID,
			"reason":   reason,
			"attempt":  i + 1,
		}).Info("rotating auth profile")
	}
	return last
}
