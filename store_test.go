package authprofiles

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func apiKey(provider, key string) *APIKeyCredential {
	return &APIKeyCredential{Provider: provider, Key: key}
}

func TestUpsertKeepsInsertionOrder(t *testing.T) {
	s := NewStore()
	s.UpsertProfile("b", apiKey("anthropic", "kb"))
	s.UpsertProfile("a", apiKey("anthropic", "ka"))
	s.UpsertProfile("x", apiKey("openai", "kx"))
	s.UpsertProfile("b", apiKey("anthropic", "kb2"))

	assert.Equal(t, []string{"b", "a", "x"}, s.ProfileIDs())

	entries := s.ProfilesForProvider("anthropic")
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].ID)
	assert.Equal(t, "kb2", Secret(entries[0].Credential))
	assert.Equal(t, "a", entries[1].ID)

	assert.Empty(t, s.ProfilesForProvider("google"))
}

func TestDeleteProfilePurgesStats(t *testing.T) {
	s := NewStore()
	s.UpsertProfile("p1", apiKey("anthropic", "k"))
	s.MarkProfileFailure("p1", FailureAuth, time.Minute)
	_, ok := s.UsageStats("p1")
	require.True(t, ok)

	assert.True(t, s.DeleteProfile("p1"))
	assert.False(t, s.DeleteProfile("p1"))

	_, ok = s.UsageStats("p1")
	assert.False(t, ok)
	assert.Empty(t, s.ProfileIDs())
	assert.False(t, s.IsProfileInCooldown("p1"))
}

func TestMarkLastGoodIgnoresUnknownProfile(t *testing.T) {
	s := NewStore()
	s.MarkLastGoodProfile("ghost")
	_, ok := s.LastGood("anthropic")
	assert.False(t, ok)
	assert.Empty(t, s.ToDocument().LastGood)

	s.UpsertProfile("p1", apiKey("anthropic", "k"))
	s.MarkLastGoodProfile("p1")
	id, ok := s.LastGood("anthropic")
	require.True(t, ok)
	assert.Equal(t, "p1", id)
}

func TestBookkeepingOnUnknownProfileIsNoop(t *testing.T) {
	s := NewStore()
	s.MarkProfileUsed("ghost")
	s.MarkProfileFailure("ghost", FailureAuth, time.Minute)
	s.ClearProfileCooldown("ghost")
	assert.Empty(t, s.ToDocument().UsageStats)
}

func TestFailureBeforeUpsertIsNotRemembered(t *testing.T) {
	s := NewStore()
	s.MarkProfileFailure("late", FailureBilling, time.Hour)
	s.UpsertProfile("late", apiKey("anthropic", "k"))

	assert.False(t, s.IsProfileInCooldown("late"))
	_, ok := s.UsageStats("late")
	assert.False(t, ok)
}

func TestMarkProfileFailure(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock.Now))
	s.UpsertProfile("p1", apiKey("anthropic", "k"))

	s.MarkProfileFailure("p1", FailureRateLimit, 15*time.Minute)
	s.MarkProfileFailure("p1", FailureRateLimit, 15*time.Minute)
	s.MarkProfileFailure("p1", FailureAuth, 5*time.Minute)

	st, ok := s.UsageStats("p1")
	require.True(t, ok)
	now := clock.Now().UnixMilli()
	assert.Equal(t, 3, st.ErrorCount)
	assert.Equal(t, map[FailureReason]int{FailureRateLimit: 2, FailureAuth: 1}, st.FailureCounts)
	assert.Equal(t, now, st.LastFailureAt)
	assert.Equal(t, now+(5*time.Minute).Milliseconds(), st.CooldownUntil)
	assert.Zero(t, st.LastUsed)
}

func TestCooldownExpiresWithClock(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock.Now))
	s.UpsertProfile("p1", apiKey("anthropic", "k"))
	assert.False(t, s.IsProfileInCooldown("p1"))

	s.MarkProfileFailure("p1", FailureTimeout, 2*time.Minute)
	assert.True(t, s.IsProfileInCooldown("p1"))

	clock.Advance(2*time.Minute - time.Millisecond)
	assert.True(t, s.IsProfileInCooldown("p1"))

	clock.Advance(time.Millisecond)
	assert.False(t, s.IsProfileInCooldown("p1"))

	// Expired, not cleared.
	st, _ := s.UsageStats("p1")
	assert.NotZero(t, st.CooldownUntil)
}

func TestNegativeCooldownIsAlreadyExpired(t *testing.T) {
	s := NewStore()
	s.UpsertProfile("p1", apiKey("anthropic", "k"))
	s.MarkProfileFailure("p1", FailureAuth, -time.Second)
	assert.False(t, s.IsProfileInCooldown("p1"))
}

func TestClearProfileCooldown(t *testing.T) {
	s := NewStore()
	s.UpsertProfile("p1", apiKey("anthropic", "k"))
	s.MarkProfileFailure("p1", FailureBilling, time.Hour)
	require.True(t, s.IsProfileInCooldown("p1"))

	s.ClearProfileCooldown("p1")
	assert.False(t, s.IsProfileInCooldown("p1"))
	st, _ := s.UsageStats("p1")
	assert.Zero(t, st.CooldownUntil)
	assert.Equal(t, 1, st.ErrorCount)
}

func TestProfileOrderIsCopied(t *testing.T) {
	s := NewStore()
	assert.Nil(t, s.ProfileOrder("main"))

	ids := []string{"a", "b"}
	s.SetProfileOrder("main", ids)
	ids[0] = "z"
	got := s.ProfileOrder("main")
	assert.Equal(t, []string{"a", "b"}, got)

	got[1] = "y"
	assert.Equal(t, []string{"a", "b"}, s.ProfileOrder("main"))
}

func TestUsageStatsReturnsCopy(t *testing.T) {
	s := NewStore()
	s.UpsertProfile("p1", apiKey("anthropic", "k"))
	s.MarkProfileFailure("p1", FailureAuth, time.Minute)

	st, _ := s.UsageStats("p1")
	st.FailureCounts[FailureAuth] = 99
	st.ErrorCount = 99

	again, _ := s.UsageStats("p1")
	assert.Equal(t, 1, again.FailureCounts[FailureAuth])
	assert.Equal(t, 1, again.ErrorCount)
}
