package authprofiles

import (
	"sort"
	"sync"
	"time"
)

// StoreVersion is the document version written by this package.
const StoreVersion = 1

// UsageStats tracks per-profile health. Timestamps are unix ms; zero means
// unset.
type UsageStats struct {
	LastUsed      int64                 `json:"lastUsed,omitempty"`
	CooldownUntil int64                 `json:"cooldownUntil,omitempty"`
	ErrorCount    int                   `json:"errorCount"`
	FailureCounts map[FailureReason]int `json:"failureCounts"`
	LastFailureAt int64                 `json:"lastFailureAt,omitempty"`
}

func (u *UsageStats) clone() *UsageStats {
	c := *u
	c.FailureCounts = make(map[FailureReason]int, len(u.FailureCounts))
	for k, v := range u.FailureCounts {
		c.FailureCounts[k] = v
	}
	return &c
}

// ProfileEntry pairs a profile id with its credential.
type ProfileEntry struct {
	ID         string
	Credential Credential
}

// Store holds auth profiles and their bookkeeping. It applies no selection
// policy; see Manager. Every method is safe for concurrent use, but no lock
// is held across calls.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	version  int
	ids      []string // insertion order of profiles
	profiles map[string]Credential
	order    map[string][]string
	lastGood map[string]string
	usage    map[string]*UsageStats
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock replaces the wall clock used for usage and cooldown timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore returns an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		now:      time.Now,
		version:  StoreVersion,
		profiles: make(map[string]Credential),
		order:    make(map[string][]string),
		lastGood: make(map[string]string),
		usage:    make(map[string]*UsageStats),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's current time.
func (s *Store) Now() time.Time { return s.now() }

func (s *Store) nowMs() int64 { return s.now().UnixMilli() }

// UpsertProfile adds or replaces a profile. Replacing keeps its position.
func (s *Store) UpsertProfile(id string, cred Credential) {
	if cred == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[id]; !ok {
		s.ids = append(s.ids, id)
	}
	s.profiles[id] = cred
}

// DeleteProfile removes a profile along with its usage stats and reports
// whether it existed.
func (s *Store) DeleteProfile(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[id]; !ok {
		return false
	}
	delete(s.profiles, id)
	delete(s.usage, id)
	for i, v := range s.ids {
		if v == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			break
		}
	}
	return true
}

// Profile returns a single profile.
func (s *Store) Profile(id string) (Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.profiles[id]
	return c, ok
}

// ProfileIDs returns every profile id in insertion order.
func (s *Store) ProfileIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

// ProfilesForProvider returns the provider's profiles in insertion order.
func (s *Store) ProfilesForProvider(provider string) []ProfileEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ProfileEntry
	for _, id := range s.ids {
		c := s.profiles[id]
		if ProviderOf(c) == provider {
			out = append(out, ProfileEntry{ID: id, Credential: c})
		}
	}
	return out
}

// SetProfileOrder stores an agent's preferred profile order.
func (s *Store) SetProfileOrder(agentID string, ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order[agentID] = append([]string{}, ids...)
}

// ProfileOrder returns the agent's preferred order, or nil when none is set.
func (s *Store) ProfileOrder(agentID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, ok := s.order[agentID]
	if !ok {
		return nil
	}
	return append([]string{}, ids...)
}

// MarkLastGoodProfile points the profile's provider at it. Unknown ids are
// ignored.
func (s *Store) MarkLastGoodProfile(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.profiles[id]
	if !ok {
		return
	}
	s.lastGood[ProviderOf(c)] = id
}

// LastGood returns the last-good profile id for a provider.
func (s *Store) LastGood(provider string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.lastGood[provider]
	return id, ok
}

// statsLocked returns the profile's stats, creating them on first use. It
// returns nil for unknown profiles so no orphaned stats are created.
func (s *Store) statsLocked(id string) *UsageStats {
	if _, ok := s.profiles[id]; !ok {
		return nil
	}
	st, ok := s.usage[id]
	if !ok {
		st = &UsageStats{FailureCounts: make(map[FailureReason]int)}
		s.usage[id] = st
	}
	return st
}

// MarkProfileUsed records that the profile was just handed out.
func (s *Store) MarkProfileUsed(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.statsLocked(id); st != nil {
		st.LastUsed = s.nowMs()
	}
}

// MarkProfileFailure records a failure and starts a cooldown of the given
// length. A negative cooldown leaves the profile already expired.
func (s *Store) MarkProfileFailure(id string, reason FailureReason, cooldown time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.statsLocked(id)
	if st == nil {
		return
	}
	now := s.nowMs()
	st.LastFailureAt = now
	st.CooldownUntil = now + cooldown.Milliseconds()
	st.ErrorCount++
	st.FailureCounts[reason]++
}

// ClearProfileCooldown drops any cooldown on the profile.
func (s *Store) ClearProfileCooldown(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.usage[id]; ok {
		st.CooldownUntil = 0
	}
}

// IsProfileInCooldown compares the profile's cooldown against the clock.
// Expired cooldowns are not cleared, just no longer honored.
func (s *Store) IsProfileInCooldown(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.usage[id]
	if !ok || st.CooldownUntil == 0 {
		return false
	}
	return s.nowMs() < st.CooldownUntil
}

// UsageStats returns a copy of the profile's stats.
func (s *Store) UsageStats(id string) (UsageStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.usage[id]
	if !ok {
		return UsageStats{}, false
	}
	return *st.clone(), true
}

func (s *Store) lastUsed(id string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.usage[id]; ok {
		return st.LastUsed
	}
	return 0
}

// Document is the serializable form of a Store. All four maps are always
// non-nil.
type Document struct {
	Version    int                    `json:"version"`
	Profiles   map[string]Credential  `json:"profiles"`
	Order      map[string][]string    `json:"order"`
	LastGood   map[string]string      `json:"lastGood"`
	UsageStats map[string]*UsageStats `json:"usageStats"`
}

// ToDocument snapshots the store. Credentials are shared, everything else is
// copied.
func (s *Store) ToDocument() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := &Document{
		Version:    s.version,
		Profiles:   make(map[string]Credential, len(s.profiles)),
		Order:      make(map[string][]string, len(s.order)),
		LastGood:   make(map[string]string, len(s.lastGood)),
		UsageStats: make(map[string]*UsageStats, len(s.usage)),
	}
	for id, c := range s.profiles {
		doc.Profiles[id] = c
	}
	for agent, ids := range s.order {
		doc.Order[agent] = append([]string{}, ids...)
	}
	for p, id := range s.lastGood {
		doc.LastGood[p] = id
	}
	for id, st := range s.usage {
		doc.UsageStats[id] = st.clone()
	}
	return doc
}

// FromDocument builds a store from a snapshot. A map carries no insertion
// order, so profiles are ordered by id.
func FromDocument(doc *Document, opts ...StoreOption) *Store {
	s := NewStore(opts...)
	if doc == nil {
		return s
	}
	if doc.Version != 0 {
		s.version = doc.Version
	}
	ids := make([]string, 0, len(doc.Profiles))
	for id := range doc.Profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s.ids = append(s.ids, id)
		s.profiles[id] = doc.Profiles[id]
	}
	for agent, order := range doc.Order {
		s.order[agent] = append([]string{}, order...)
	}
	for p, id := range doc.LastGood {
		s.lastGood[p] = id
	}
	for id, st := range doc.UsageStats {
		if st == nil {
			continue
		}
		s.usage[id] = st.clone()
	}
	return s
}
