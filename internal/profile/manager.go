// Package profile provides cached, structured access to the container profile.
package profile

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// ProfileStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type ProfileStore interface {
	SetProfileKey(key, value string) error
	GetProfileKey(key string) (string, error)
	GetAllProfileKeys() (map[string]string, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager caches the assembled profile for a fixed TTL.
type Manager struct {
	store ProfileStore
	clock Clock
	ttl   time.Duration

	mu       sync.RWMutex
	cached   *Profile
	cachedAt time.Time
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store ProfileStore) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store ProfileStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{store: store, clock: clock, ttl: ttl}
}

// GetProfile returns the profile, from cache when fresh. An empty store
// yields the default vegetable and nothing else.
func (m *Manager) GetProfile() (Profile, error) {
	m.mu.RLock()
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		p := copyProfile(m.cached)
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		return copyProfile(m.cached), nil
	}

	keys, err := m.store.GetAllProfileKeys()
	if err != nil {
		return Profile{}, fmt.Errorf("loading profile keys: %w", err)
	}
	p := buildProfile(keys)
	m.cached = &p
	m.cachedAt = m.clock.Now()
	return copyProfile(&p), nil
}

// SetField validates and persists one key, then drops the cache. List keys
// accept a []string or a comma-separated string.
func (m *Manager) SetField(key string, value any) error {
	if !slices.Contains(ValidKeys(), key) {
		return fmt.Errorf("unknown profile key %q (valid: %s)", key, strings.Join(ValidKeys(), ", "))
	}

	var str string
	switch v := value.(type) {
	case string:
		str = strings.TrimSpace(v)
		if listKeys[key] {
			b, _ := json.Marshal(splitList(v))
			str = string(b)
		}
	case []string:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshalling value for key %q: %w", key, err)
		}
		str = string(b)
	default:
		return fmt.Errorf("unsupported value type %T for key %q", value, key)
	}
	if key == KeyWhatsAppNumber && str != "" {
		str = NormalizePhone(str)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.SetProfileKey(key, str); err != nil {
		return fmt.Errorf("setting profile key %q: %w", key, err)
	}
	m.cached = nil
	return nil
}

// VegetableName is a convenience accessor that never fails; storage errors
// fall back to the default.
func (m *Manager) VegetableName() string {
	p, err := m.GetProfile()
	if err != nil {
		slog.Warn("loading profile", "error", err)
		return DefaultVegetable
	}
	return p.VegetableName
}

// Summary renders the profile as a short sentence list for prompts.
func (m *Manager) Summary() (string, error) {
	p, err := m.GetProfile()
	if err != nil {
		return "", fmt.Errorf("getting profile for summary: %w", err)
	}
	return summarize(p), nil
}

func summarize(p Profile) string {
	parts := []string{fmt.Sprintf("The container stores %s.", p.VegetableName)}
	if p.OwnerName != "" {
		parts = append(parts, fmt.Sprintf("The owner is %s.", p.OwnerName))
	}
	if len(p.Diet) > 0 {
		parts = append(parts, fmt.Sprintf("Dietary preferences: %s.", strings.Join(p.Diet, ", ")))
	}
	parts = append(parts, p.Notes...)
	return strings.Join(parts, " ")
}

// NormalizePhone strips separators and rewrites a leading 0 to the 62
// country prefix ("0812-345" becomes "62812345").
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "0") {
		digits = "62" + digits[1:]
	}
	return digits
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func copyProfile(p *Profile) Profile {
	if p == nil {
		return Profile{}
	}
	cp := *p
	cp.Diet = slices.Clone(p.Diet)
	cp.Notes = slices.Clone(p.Notes)
	return cp
}

func buildProfile(keys map[string]string) Profile {
	p := Profile{
		VegetableName:  keys[KeyVegetableName],
		OwnerName:      keys[KeyOwnerName],
		WhatsAppNumber: keys[KeyWhatsAppNumber],
	}
	if p.VegetableName == "" {
		p.VegetableName = DefaultVegetable
	}
	unmarshalProfileKey(keys, KeyDiet, &p.Diet)
	unmarshalProfileKey(keys, KeyNotes, &p.Notes)
	return p
}

// unmarshalProfileKey unmarshals a JSON value from keys into target, logging
// a warning if the value is present but malformed.
func unmarshalProfileKey(keys map[string]string, key string, target any) {
	v, ok := keys[key]
	if !ok {
		return
	}
	if err := json.Unmarshal([]byte(v), target); err != nil {
		slog.Warn("malformed profile key, skipping", "key", key, "error", err)
	}
}
