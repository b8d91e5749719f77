package status

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/entrhq/postpilot/pkg/post"
)

const (
	// DefaultRetention is how long an operation stays queryable.
	DefaultRetention = 30 * time.Minute
	// DefaultSweepInterval is how often expired operations are evicted.
	DefaultSweepInterval = 5 * time.Minute
)

var (
	// ErrNotFound is returned for unknown or expired operations.
	ErrNotFound = errors.New("operation not found")
	// ErrExists is returned when creating an operation whose ID is still
	// retained.
	ErrExists = errors.New("operation already exists")
)

// Store retains the latest state of each operation. An operation expires
// once it is older than the store's retention, whatever its status.
type Store interface {
	// Create stores a new operation and fails with ErrExists while another
	// operation with the same ID is retained.
	Create(ctx context.Context, op post.Operation) error
	Put(ctx context.Context, op post.Operation) error
	Get(ctx context.Context, id string) (post.Operation, error)
	Delete(ctx context.Context, id string) error
	// SweepExpired evicts operations created before now minus the
	// retention and returns how many were removed.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// MemoryStore is a Store backed by a map.
type MemoryStore struct {
	mu        sync.Mutex
	ops       map[string]post.Operation
	retention time.Duration
	now       func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock replaces time.Now.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an empty store. A non-positive retention uses
// DefaultRetention.
func NewMemoryStore(retention time.Duration, opts ...MemoryOption) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	s := &MemoryStore{
		ops:       make(map[string]post.Operation),
		retention: retention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Create(ctx context.Context, op post.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.ops[op.ID]; ok && !expired(old, s.now(), s.retention) {
		return ErrExists
	}
	s.ops[op.ID] = op
	return nil
}

func (s *MemoryStore) Put(ctx context.Context, op post.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[op.ID] = op
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (post.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok {
		return post.Operation{}, ErrNotFound
	}
	if expired(op, s.now(), s.retention) {
		delete(s.ops, id)
		return post.Operation{}, ErrNotFound
	}
	return op, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ops, id)
	return nil
}

func (s *MemoryStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, op := range s.ops {
		if expired(op, now, s.retention) {
			delete(s.ops, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of retained operations, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}

func expired(op post.Operation, now time.Time, retention time.Duration) bool {
	return now.Sub(op.CreatedAt) > retention
}
