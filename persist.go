package authprofiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// DefaultPath is the OpenClaw auth-profiles.json location.
func DefaultPath() string {
	return filepath.Join(openclawAgentDir(), "auth-profiles.json")
}

func openclawAgentDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".openclaw", "agents", "main", "agent")
}

// Open loads the store at path. A missing file yields an empty store.
func Open(path string, opts ...StoreOption) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewStore(opts...), nil
		}
		return nil, fmt.Errorf("read auth store: %w", err)
	}
	s, err := LoadStore(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("load auth store %s: %w", path, err)
	}
	return s, nil
}

// Save writes the store to path atomically.
func (s *Store) Save(path string) error {
	data, err := s.MarshalJSON()
	if err != nil {
		return err
	}
	data = pretty.Pretty(data)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create auth store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".auth-profiles-*.json")
	if err != nil {
		return fmt.Errorf("create temp auth store: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write auth store: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod auth store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close auth store: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace auth store: %w", err)
	}
	return nil
}

// MarshalJSON encodes the store with profiles in insertion order, so a
// reload keeps the LRU tie-break stable.
func (s *Store) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []byte(`{}`)
	var err error
	set := func(path string, raw []byte) {
		if err == nil {
			out, err = sjson.SetRawBytes(out, path, raw)
		}
	}

	set("version", []byte(fmt.Sprint(s.version)))
	set("profiles", []byte(`{}`))
	for _, id := range s.ids {
		raw, mErr := json.Marshal(s.profiles[id])
		if mErr != nil {
			return nil, fmt.Errorf("encode profile %q: %w", id, mErr)
		}
		set("profiles."+escapePath(id), raw)
	}

	set("order", []byte(`{}`))
	for _, agent := range sortedKeys(s.order) {
		raw, _ := json.Marshal(s.order[agent])
		set("order."+escapePath(agent), raw)
	}

	set("lastGood", []byte(`{}`))
	for _, provider := range sortedKeys(s.lastGood) {
		raw, _ := json.Marshal(s.lastGood[provider])
		set("lastGood."+escapePath(provider), raw)
	}

	set("usageStats", []byte(`{}`))
	for _, id := range sortedKeys(s.usage) {
		raw, mErr := json.Marshal(s.usage[id])
		if mErr != nil {
			return nil, fmt.Errorf("encode usage stats %q: %w", id, mErr)
		}
		set("usageStats."+escapePath(id), raw)
	}

	if err != nil {
		return nil, fmt.Errorf("encode auth store: %w", err)
	}
	return out, nil
}

// LoadStore decodes a serialized store. Profiles keep their document order.
// A profile whose credential cannot be decoded is logged and left out.
func LoadStore(data []byte, opts ...StoreOption) (*Store, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, errors.New("auth store must be a JSON object")
	}

	s := NewStore(opts...)
	if v := root.Get("version"); v.Exists() {
		s.version = int(v.Int())
	}

	root.Get("profiles").ForEach(func(key, value gjson.Result) bool {
		id := key.String()
		c, dErr := DecodeCredential([]byte(value.Raw))
		if dErr != nil {
			log.WithField("profile", id).WithError(dErr).Warn("skipping unreadable auth profile")
			return true
		}
		if _, dup := s.profiles[id]; !dup {
			s.ids = append(s.ids, id)
		}
		s.profiles[id] = c
		return true
	})

	root.Get("order").ForEach(func(key, value gjson.Result) bool {
		ids := []string{}
		for _, v := range value.Array() {
			ids = append(ids, v.String())
		}
		s.order[key.String()] = ids
		return true
	})

	root.Get("lastGood").ForEach(func(key, value gjson.Result) bool {
		s.lastGood[key.String()] = value.String()
		return true
	})

	var err error
	root.Get("usageStats").ForEach(func(key, value gjson.Result) bool {
		var st UsageStats
		if uErr := json.Unmarshal([]byte(value.Raw), &st); uErr != nil {
			err = fmt.Errorf("usage stats %q: %w", key.String(), uErr)
			return false
		}
		s.usage[key.String()] = st.clone()
		return true
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// UnmarshalJSON decodes a document produced by Store.MarshalJSON or
// json.Marshal(*Document).
func (d *Document) UnmarshalJSON(data []byte) error {
	s, err := LoadStore(data)
	if err != nil {
		return err
	}
	*d = *s.ToDocument()
	return nil
}

// escapePath makes a map key safe for use as one sjson path component.
func escapePath(key string) string {
	var b strings.Builder
	for _, r := range key {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-' || r > 0x7f) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
