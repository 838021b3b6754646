// Package stepcache stores the results of single-stage test executions,
// addressed by a hash of the stage's effective inputs.
package stepcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/dusk-indust/briefing/internal/store"
)

var canonical = jsoniter.Config{
	SortMapKeys:            true,
	EscapeHTML:             false,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// Key addresses one cached result.
type Key struct {
	UserID string
	Step   int
	Hash   string
}

func (k Key) String() string { return fmt.Sprintf("%s/%d/%s", k.UserID, k.Step, k.Hash) }

// Cache is a last-write-wins result store with no eviction.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, k Key) ([]byte, bool, error)
	Put(ctx context.Context, k Key, result []byte) error
}

// Hash returns the hex SHA-256 of payload's canonical JSON form. The payload
// is round-tripped through a generic value first so that struct field order
// and map iteration order never change the hash.
func Hash(payload any) (string, error) {
	raw, err := canonical.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("stepcache: encode payload: %w", err)
	}
	var generic any
	if err := canonical.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("stepcache: normalize payload: %w", err)
	}
	norm, err := canonical.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("stepcache: encode payload: %w", err)
	}
	sum := sha256.Sum256(norm)
	return hex.EncodeToString(sum[:]), nil
}

// Memory is an in-process Cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[Key][]byte
}

var _ Cache = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{entries: make(map[Key][]byte)}
}

func (m *Memory) Get(_ context.Context, k Key) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[k]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Put(_ context.Context, k Key, result []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[k] = append([]byte(nil), result...)
	return nil
}

// Len reports the number of cached entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// StoreCache persists results through a store.Store.
type StoreCache struct {
	Store store.Store
	Now   func() time.Time
}

var _ Cache = (*StoreCache)(nil)

func NewStoreCache(s store.Store) *StoreCache {
	return &StoreCache{Store: s, Now: time.Now}
}

func (c *StoreCache) Get(ctx context.Context, k Key) ([]byte, bool, error) {
	hit, err := c.Store.GetCachedStep(ctx, k.UserID, k.Step, k.Hash)
	if err != nil {
		return nil, false, fmt.Errorf("stepcache: get %s: %w", k, err)
	}
	if hit == nil {
		return nil, false, nil
	}
	return hit.Result, true, nil
}

func (c *StoreCache) Put(ctx context.Context, k Key, result []byte) error {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	err := c.Store.PutCachedStep(ctx, store.CachedStep{
		UserID:    k.UserID,
		Step:      k.Step,
		Hash:      k.Hash,
		Result:    result,
		CreatedAt: now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("stepcache: put %s: %w", k, err)
	}
	return nil
}
