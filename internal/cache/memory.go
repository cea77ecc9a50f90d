package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/jonboulle/clockwork"
)

type memoryEntry struct {
	value   []byte
	set     map[string]struct{}
	counter int64
	expires time.Time // zero means no expiry
}

// MemoryStore is a process-local Store. Expired entries are removed lazily on access.
type MemoryStore struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries map[string]*memoryEntry
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock sets the clock used for expiry
func WithClock(clock clockwork.Clock) MemoryOption {
	return func(m *MemoryStore) {
		m.clock = clock
	}
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		clock:   clockwork.NewRealClock(),
		entries: make(map[string]*memoryEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// lookupLocked returns a live entry, evicting it if expired
func (m *MemoryStore) lookupLocked(key string) (*memoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && !m.clock.Now().Before(e.expires) {
		delete(m.entries, key)
		return nil, false
	}
	return e, true
}

func (m *MemoryStore) expiryFor(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.clock.Now().Add(ttl)
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookupLocked(key)
	if !ok || e.value == nil {
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	m.entries[key] = &memoryEntry{value: v, expires: m.expiryFor(ttl)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

func (m *MemoryStore) IncrWithExpiry(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookupLocked(key)
	if !ok {
		e = &memoryEntry{expires: m.expiryFor(window)}
		m.entries[key] = e
	}
	if e.value != nil || e.set != nil {
		return 0, 0, fmt.Errorf("%w: key %q does not hold a counter", ErrUnavailable, key)
	}
	e.counter++

	var ttl time.Duration
	if !e.expires.IsZero() {
		ttl = e.expires.Sub(m.clock.Now())
	}
	return e.counter, ttl, nil
}

func (m *MemoryStore) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookupLocked(key)
	if !ok {
		e = &memoryEntry{set: make(map[string]struct{})}
		m.entries[key] = e
	}
	if e.set == nil {
		return fmt.Errorf("%w: key %q does not hold a set", ErrUnavailable, key)
	}
	for _, member := range members {
		e.set[member] = struct{}{}
	}
	return nil
}

func (m *MemoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookupLocked(key)
	if !ok || e.set == nil {
		return nil, nil
	}
	members := make([]string, 0, len(e.set))
	for member := range e.set {
		members = append(members, member)
	}
	sort.Strings(members)
	return members, nil
}

func (m *MemoryStore) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookupLocked(key)
	if !ok || e.set == nil {
		return nil
	}
	for _, member := range members {
		delete(e.set, member)
	}
	if len(e.set) == 0 {
		delete(m.entries, key)
	}
	return nil
}

func (m *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookupLocked(key)
	if !ok {
		return nil
	}
	if ttl <= 0 {
		delete(m.entries, key)
		return nil
	}
	e.expires = m.clock.Now().Add(ttl)
	return nil
}

func (m *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookupLocked(key)
	if !ok || e.expires.IsZero() {
		return 0, nil
	}
	return e.expires.Sub(m.clock.Now()), nil
}

func (m *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	pattern = flattenSeparators(pattern)
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: invalid key pattern %q", ErrUnavailable, pattern)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	for key := range m.entries {
		if _, ok := m.lookupLocked(key); !ok {
			continue
		}
		if doublestar.MatchUnvalidated(pattern, flattenSeparators(key)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// flattenSeparators hides '/' from doublestar so '*' and '?' cross it the way
// Redis KEYS patterns do
func flattenSeparators(s string) string {
	return strings.ReplaceAll(s, "/", "\x00")
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*memoryEntry)
	return nil
}
