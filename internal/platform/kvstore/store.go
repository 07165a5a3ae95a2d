// Package kvstore abstracts the durable key-value capability used for
// customer profiles, audience state, and last-order snapshots. Backends are
// tried in configuration order; a failing backend degrades persistence rather
// than failing the caller.
package kvstore

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrNotFound indicates no backend holds a value for the key.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is a single key-value backend.
type Store interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Chain tries each backend in order. Reads return the first hit; writes stop at
// the first backend that accepts the value, falling through on failure.
type Chain struct {
	stores []Store
	logger *zap.Logger
}

// NewChain constructs a fallback chain over the provided backends.
func NewChain(logger *zap.Logger, stores ...Store) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{stores: stores, logger: logger}
}

// Get returns the value from the first backend holding the key.
func (c *Chain) Get(ctx context.Context, key string) ([]byte, error) {
	for _, store := range c.stores {
		value, err := store.Get(ctx, key)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("kvstore read degraded",
				zap.String("store", store.Name()),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
	return nil, ErrNotFound
}

// Set writes the value to the first backend that accepts it. Only when every
// backend rejects the write does Set return an error; callers treat that as
// degraded persistence, not a fatal condition.
func (c *Chain) Set(ctx context.Context, key string, value []byte) error {
	var lastErr error
	for _, store := range c.stores {
		if err := store.Set(ctx, key, value); err != nil {
			c.logger.Warn("kvstore write degraded",
				zap.String("store", store.Name()),
				zap.String("key", key),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("kvstore: no backends configured")
	}
	return lastErr
}

// Delete removes the key from every backend, keeping the chain consistent.
func (c *Chain) Delete(ctx context.Context, key string) error {
	var lastErr error
	for _, store := range c.stores {
		if err := store.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
			lastErr = err
		}
	}
	return lastErr
}
