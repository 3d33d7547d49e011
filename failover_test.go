package authprofiles

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRotatesOnCredentialFailures(t *testing.T) {
	m, _ := newTestManager(t)
	s := m.Store()
	s.UpsertProfile("a", apiKey("anthropic", "ka"))
	s.UpsertProfile("b", apiKey("anthropic", "kb"))
	s.UpsertProfile("c", apiKey("anthropic", "kc"))

	var tried []string
	err := m.Do(context.Background(), AuthConfig{Provider: "anthropic"}, "claude", 3,
		func(ctx context.Context, creds Credentials) error {
			tried = append(tried, creds.ProfileID)
			switch creds.ProfileID {
			case "a":
				return errors.New("401 unauthorized")
			case "b":
				return errors.New("429 too many requests")
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, tried)

	assert.True(t, s.IsProfileInCooldown("a"))
	assert.True(t, s.IsProfileInCooldown("b"))
	id, _ := s.LastGood("anthropic")
	assert.Equal(t, "c", id)
}

func TestDoStopsOnPayloadFailure(t *testing.T) {
	m, _ := newTestManager(t)
	m.Store().UpsertProfile("a", apiKey("anthropic", "ka"))
	m.Store().UpsertProfile("b", apiKey("anthropic", "kb"))

	calls := 0
	err := m.Do(context.Background(), AuthConfig{Provider: "anthropic"}, "claude", 3,
		func(ctx context.Context, creds Credentials) error {
			calls++
			return errors.New("prompt is too long")
		})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	e, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeFailover, e.Code)
	d := e.Details.(FailoverDetails)
	assert.Equal(t, ReasonContextOverflow, d.Reason)
	assert.Equal(t, "a", d.ProfileID)
	assert.True(t, d.Reason.ShouldFallbackModel())
	assert.EqualError(t, errors.Unwrap(err), "prompt is too long")
}

func TestDoExhaustsProfiles(t *testing.T) {
	m, _ := newTestManager(t)
	m.Store().UpsertProfile("a", apiKey("anthropic", "ka"))

	err := m.Do(context.Background(), AuthConfig{Provider: "anthropic"}, "", 5,
		func(ctx context.Context, creds Credentials) error {
			return errors.New("insufficient_quota")
		})
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeAuthFailed))
	assert.True(t, IsCode(err, CodeFailover))
	assert.Equal(t, ReasonBilling, ClassifyFailoverReason(errors.Unwrap(err)))
}

func TestDoPinnedProfileDoesNotRotate(t *testing.T) {
	m, _ := newTestManager(t)
	m.Store().UpsertProfile("a", apiKey("anthropic", "ka"))
	m.Store().UpsertProfile("b", apiKey("anthropic", "kb"))

	calls := 0
	err := m.Do(context.Background(), AuthConfig{Provider: "anthropic", ProfileID: "b"}, "", 3,
		func(ctx context.Context, creds Credentials) error {
			calls++
			return errors.New("forbidden")
		})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, m.Store().IsProfileInCooldown("b"))
	assert.False(t, m.Store().IsProfileInCooldown("a"))
}

func TestDoCancelledContextRecordsNothing(t *testing.T) {
	m, _ := newTestManager(t)
	m.Store().UpsertProfile("a", apiKey("anthropic", "ka"))

	ctx, cancel := context.WithCancel(context.Background())
	err := m.Do(ctx, AuthConfig{Provider: "anthropic"}, "", 3,
		func(ctx context.Context, creds Credentials) error {
			cancel()
			return ctx.Err()
		})
	assert.ErrorIs(t, err, context.Canceled)
	st, _ := m.Store().UsageStats("a")
	assert.Zero(t, st.ErrorCount)
	assert.False(t, m.Store().IsProfileInCooldown("a"))
}
