package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/resolvr/internal/chain"
)

// Entry is a memoized resolution.
type Entry struct {
	Scope string
	// Owner is the compiled snapshot the result came from. An entry is only
	// served while the scope still resolves through the same snapshot.
	Owner     any
	Result    chain.Result
	CreatedAt time.Time
	ExpiresAt time.Time // zero means no expiry
}

// Expired returns true if the entry has passed its expiration time.
func (e *Entry) Expired() bool {
	return !e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt)
}

// Recorder receives hit and miss events, typically a metrics collector.
type Recorder interface {
	CacheHit(scope string)
	CacheMiss(scope string)
}

// Memo caches raw chain answers per scope and request in an in-memory LRU.
// Fallbacks are applied on the way out, so one entry serves callers with
// different fallbacks.
type Memo struct {
	memory   *lru.Cache[string, *Entry]
	ttl      time.Duration
	recorder Recorder

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// Stats is a snapshot of memo counters.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
}

// New creates a Memo holding at most size entries. ttl of zero keeps entries
// until their scope recompiles or they are evicted. rec may be nil.
func New(size int, ttl time.Duration, rec Recorder) (*Memo, error) {
	if size <= 0 {
		size = 1024
	}
	m := &Memo{ttl: ttl, recorder: rec}

	memCache, err := lru.NewWithEvict[string, *Entry](size, func(string, *Entry) {
		m.evictions.Add(1)
	})
	if err != nil {
		return nil, fmt.Errorf("cache: creating LRU: %w", err)
	}
	m.memory = memCache
	return m, nil
}

// Get returns the memoized answer for request in scope if it was produced by
// owner. Entries from another owner or past their TTL are dropped.
func (m *Memo) Get(scope string, owner any, request any) (chain.Result, bool) {
	key := Key(scope, request)
	if entry, ok := m.memory.Get(key); ok {
		if entry.Owner == owner && !entry.Expired() {
			m.hit(scope)
			return entry.Result, true
		}
		m.memory.Remove(key)
	}
	m.miss(scope)
	return nil, false
}

// Put memoizes result for request in scope.
func (m *Memo) Put(scope string, owner any, request any, result chain.Result) {
	now := time.Now()
	entry := &Entry{
		Scope:     scope,
		Owner:     owner,
		Result:    result,
		CreatedAt: now,
	}
	if m.ttl > 0 {
		entry.ExpiresAt = now.Add(m.ttl)
	}
	m.memory.Add(Key(scope, request), entry)
}

// Resolve returns the memoized answer or calls resolve and memoizes what it
// returns. Errors are not memoized. opts apply the caller's fallback.
func (m *Memo) Resolve(scope string, owner any, request any, resolve func() (chain.Result, error), opts ...chain.ResolveOption) (chain.Result, error) {
	if res, ok := m.Get(scope, owner, request); ok {
		return chain.Fallback(res, opts...), nil
	}
	res, err := resolve()
	if err != nil {
		return nil, err
	}
	m.Put(scope, owner, request, res)
	return chain.Fallback(res, opts...), nil
}

// Purge drops every entry of scope, or every entry when scope is empty.
func (m *Memo) Purge(scope string) int {
	if scope == "" {
		n := m.memory.Len()
		m.memory.Purge()
		return n
	}
	n := 0
	for _, key := range m.memory.Keys() {
		if entry, ok := m.memory.Peek(key); ok && entry.Scope == scope {
			m.memory.Remove(key)
			n++
		}
	}
	return n
}

// Len returns the number of memoized entries.
func (m *Memo) Len() int { return m.memory.Len() }

// Stats returns the memo counters.
func (m *Memo) Stats() Stats {
	return Stats{
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.evictions.Load(),
		Size:      m.memory.Len(),
	}
}

func (m *Memo) hit(scope string) {
	m.hits.Add(1)
	if m.recorder != nil {
		m.recorder.CacheHit(scope)
	}
}

func (m *Memo) miss(scope string) {
	m.misses.Add(1)
	if m.recorder != nil {
		m.recorder.CacheMiss(scope)
	}
}

// StartPurger starts a background goroutine that evicts expired entries
// every interval until ctx is cancelled. The returned channel is closed when
// the goroutine exits.
func (m *Memo) StartPurger(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Error().Interface("panic", r).Msg("cache purger: recovered from panic")
						}
					}()
					if n := m.purgeExpired(); n > 0 {
						log.Debug().Int("entries", n).Msg("cache purger: evicted expired entries")
					}
				}()
			}
		}
	}()
	return done
}

func (m *Memo) purgeExpired() int {
	n := 0
	for _, key := range m.memory.Keys() {
		if entry, ok := m.memory.Peek(key); ok && entry.Expired() {
			m.memory.Remove(key)
			n++
		}
	}
	return n
}
