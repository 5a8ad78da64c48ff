// Package cache provides TTL key-value storage for the latest-presence
// view and login rate limiting.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrExpired  = errors.New("key expired")
)

// Cache provides TTL-based key-value storage.
type Cache interface {
	// Get retrieves a value by key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. If TTL is 0, use default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Keys returns the keys matching a "prefix*" pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Increment adds delta to a counter, creating it with ttl when
	// absent, and returns the new value. Used for rate limiting.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// Close releases resources.
	Close() error
}

// Factory builds a cache from its decoded driver config. Driver
// packages register themselves from init().
type Factory func(config map[string]any) (Cache, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// Register registers a cache driver factory by name.
func Register(name string, factory Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// NewFromConfig creates a cache for the named driver, passing it the
// raw config map from the [cache.drivers.<name>] config table.
func NewFromConfig(driver string, driverConfigs map[string]any) (Cache, error) {
	driversMu.RLock()
	factory, ok := drivers[driver]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown cache driver: %s", driver)
	}

	raw, _ := driverConfigs[driver].(map[string]any)
	return factory(raw)
}

// AvailableDrivers returns the registered driver names.
func AvailableDrivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	return names
}

// DecodeConfig decodes a raw driver config map into a typed options
// struct. TOML delivers numbers as int64, so weak typing is on.
func DecodeConfig(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	return dec.Decode(raw)
}
