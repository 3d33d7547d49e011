package authprofiles

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// AuthConfig describes an authentication request. Provider is required
// unless ProfileID is set.
type AuthConfig struct {
	Provider  string
	ProfileID string
	AgentID   string
}

// Manager picks profiles out of a Store and feeds provider outcomes back
// into it.
//
// Selecting and marking used are separate Store calls, so two concurrent
// Authenticate calls for the same provider may hand out the same profile.
type Manager struct {
	store     *Store
	cooldowns map[FailureReason]time.Duration
	envVars   map[string]string
	log       log.FieldLogger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCooldowns overrides cooldown durations per reason. Reasons not in the
// map keep their defaults.
func WithCooldowns(overrides map[FailureReason]time.Duration) ManagerOption {
	return func(m *Manager) {
		for reason, d := range overrides {
			m.cooldowns[reason] = d
		}
	}
}

// WithLogger sets the logger used for selection and feedback events.
func WithLogger(l log.FieldLogger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager returns a Manager over store.
func NewManager(store *Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     store,
		cooldowns: DefaultCooldowns(),
		envVars:   defaultEnvVars(),
		log:       log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying store.
func (m *Manager) Store() *Store { return m.store }

// Cooldown returns the cooldown applied for reason.
func (m *Manager) Cooldown(reason FailureReason) time.Duration {
	if d, ok := m.cooldowns[reason]; ok {
		return d
	}
	return m.cooldowns[FailureUnknown]
}

// Authenticate selects a profile and returns its normalized credentials.
//
// An explicit ProfileID is a hard request: if that profile is missing or
// cooling down the call fails without trying others. Otherwise the eligible
// profiles of the provider are ranked by agent order, then last-good, then
// least recently used. The chosen profile is marked used before returning.
func (m *Manager) Authenticate(cfg AuthConfig) (Credentials, error) {
	if cfg.ProfileID != "" {
		cred, ok := m.store.Profile(cfg.ProfileID)
		if !ok || m.store.IsProfileInCooldown(cfg.ProfileID) {
			provider := cfg.Provider
			if ok && provider == "" {
				provider = ProviderOf(cred)
			}
			m.log.WithFields(log.Fields{"provider": provider, "profile": cfg.ProfileID, "exists": ok}).
				Debug("requested auth profile unavailable")
			return Credentials{}, NewAuthenticationError(provider, cfg.ProfileID)
		}
		return m.use(cfg.ProfileID, cred, "explicit"), nil
	}

	candidates := m.store.ProfilesForProvider(cfg.Provider)
	if len(candidates) == 0 {
		return Credentials{}, NewAuthenticationError(cfg.Provider, "")
	}
	eligible := make([]ProfileEntry, 0, len(candidates))
	for _, c := range candidates {
		if !m.store.IsProfileInCooldown(c.ID) {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		m.log.WithFields(log.Fields{"provider": cfg.Provider, "profiles": len(candidates)}).
			Warn("all auth profiles are cooling down")
		return Credentials{}, NewAuthenticationError(cfg.Provider, "")
	}

	entry, tier := m.pick(cfg, eligible)
	return m.use(entry.ID, entry.Credential, tier), nil
}

func (m *Manager) pick(cfg AuthConfig, eligible []ProfileEntry) (ProfileEntry, string) {
	byID := make(map[string]ProfileEntry, len(eligible))
	for _, e := range eligible {
		byID[e.ID] = e
	}

	if cfg.AgentID != "" {
		for _, id := range m.store.ProfileOrder(cfg.AgentID) {
			if e, ok := byID[id]; ok {
				return e, "agent-order"
			}
		}
	}

	if id, ok := m.store.LastGood(cfg.Provider); ok {
		if e, ok := byID[id]; ok {
			return e, "last-good"
		}
	}

	best := eligible[0]
	bestUsed := m.store.lastUsed(best.ID)
	for _, e := range eligible[1:] {
		if used := m.store.lastUsed(e.ID); used < bestUsed {
			best, bestUsed = e, used
		}
	}
	return best, "lru"
}

func (m *Manager) use(id string, cred Credential, tier string) Credentials {
	m.store.MarkProfileUsed(id)
	m.log.WithFields(log.Fields{"provider": ProviderOf(cred), "profile": id, "tier": tier}).
		Debug("selected auth profile")
	return Normalize(id, cred)
}

// IsValid reports whether creds carry a secret that has not expired.
func (m *Manager) IsValid(creds Credentials) bool {
	if creds.APIKey == "" {
		return false
	}
	return creds.ExpiresAt == 0 || creds.ExpiresAt > m.store.Now().UnixMilli()
}

// RecordSuccess makes the profile its provider's last-good profile and lifts
// any cooldown on it.
func (m *Manager) RecordSuccess(profileID string) {
	m.store.MarkLastGoodProfile(profileID)
	m.store.ClearProfileCooldown(profileID)
	m.log.WithField("profile", profileID).Debug("auth profile succeeded")
}

// RecordFailure puts the profile into the cooldown configured for reason.
func (m *Manager) RecordFailure(profileID string, reason FailoverReason) {
	bucket := reason.FailureReason()
	cooldown := m.Cooldown(bucket)
	m.store.MarkProfileFailure(profileID, bucket, cooldown)
	m.log.WithFields(log.Fields{
		"profile":  profileID,
		"reason":   reason,
		"cooldown": cooldown,
	}).Warn("auth profile failed")
}
