package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultCleanupInterval is how often a MemoryStore sweeps expired entries.
const DefaultCleanupInterval = 5 * time.Minute

type memoryEntry struct {
	CounterEntry

	expiresAt time.Time
}

func (e *memoryEntry) live(now time.Time) bool {
	return !e.Expired(now) && now.Before(e.expiresAt)
}

// MemoryStore is an in-process implementation of Store for single instance
// deployments. Entries are guarded by one mutex, so Increment never observes a
// half written counter.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry

	now      func() time.Time
	logger   *zap.Logger
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the time source.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// WithMemoryLogger sets the logger used by the cleanup loop.
func WithMemoryLogger(logger *zap.Logger) MemoryOption {
	return func(s *MemoryStore) {
		s.logger = logger
	}
}

// WithCleanupInterval sets the sweep interval. Zero or negative disables the
// background sweep; Cleanup can still be called directly.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.interval = d
	}
}

// NewMemoryStore creates an in-memory store and starts its cleanup loop.
// Call Close to stop the loop.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries:  make(map[string]*memoryEntry),
		now:      time.Now,
		logger:   zap.NewNop(),
		interval: DefaultCleanupInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.interval > 0 {
		go s.cleanupLoop()
	} else {
		close(s.done)
	}

	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (*CounterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || !entry.live(s.now()) {
		return nil, nil
	}

	out := entry.CounterEntry

	return &out, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, entry CounterEntry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &memoryEntry{
		CounterEntry: entry,
		expiresAt:    s.now().Add(ttl),
	}

	return nil
}

func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	entry, ok := s.entries[key]
	if !ok || !entry.live(now) {
		reset := now.Add(window)
		s.entries[key] = &memoryEntry{
			CounterEntry: CounterEntry{
				Count:            1,
				ResetTime:        reset,
				FirstRequestTime: now,
			},
			expiresAt: reset,
		}

		return Counter{Count: 1, ResetTime: reset}, nil
	}

	entry.Count++

	return Counter{Count: entry.Count, ResetTime: entry.ResetTime}, nil
}

// Decrement undoes one increment for a live entry. It never goes below zero.
func (s *MemoryStore) Decrement(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || !entry.live(s.now()) {
		return nil
	}

	if entry.Count > 0 {
		entry.Count--
	}

	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)

	return nil
}

// Cleanup removes expired entries and returns how many were dropped.
func (s *MemoryStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0

	for key, entry := range s.entries {
		if !entry.live(now) {
			delete(s.entries, key)
			removed++
		}
	}

	return removed
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// Close stops the cleanup loop. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})

	<-s.done

	return nil
}

func (s *MemoryStore) cleanupLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if removed := s.Cleanup(); removed > 0 {
				s.logger.Debug("rate limit cleanup", zap.Int("removed", removed))
			}
		}
	}
}
