// Package jwk verifies provider-issued ID tokens against the provider's
// rotating public key set.
package jwk

import (
	"context"
	"crypto"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "identity_jwks_refresh_total",
	Help: "Provider key set refreshes by result.",
}, []string{"result"})

// Fetcher retrieves the provider's current key set.
type Fetcher interface {
	Fetch(ctx context.Context) (map[string]crypto.PublicKey, error)
}

// KeySet caches provider public keys by kid. A refresh replaces the whole
// map; keys already handed out stay usable by their callers.
type KeySet struct {
	fetcher Fetcher
	group   singleflight.Group

	mu   sync.RWMutex
	keys map[string]crypto.PublicKey
}

// NewKeySet creates an empty KeySet backed by f. The first lookup miss
// triggers the initial fetch.
func NewKeySet(f Fetcher) *KeySet {
	return &KeySet{fetcher: f, keys: map[string]crypto.PublicKey{}}
}

// Get returns the cached key for kid.
func (k *KeySet) Get(kid string) (crypto.PublicKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[kid]
	return key, ok
}

// Refresh fetches the key set and replaces the cache. Concurrent callers
// share one fetch. The fetch is detached from ctx cancellation so one
// aborted request does not fail the others waiting on it; the fetcher's
// own timeout still bounds it.
func (k *KeySet) Refresh(ctx context.Context) error {
	_, err, _ := k.group.Do("refresh", func() (any, error) {
		keys, err := k.fetcher.Fetch(context.WithoutCancel(ctx))
		if err != nil {
			refreshTotal.WithLabelValues("error").Inc()
			return nil, err
		}

		k.mu.Lock()
		k.keys = keys
		k.mu.Unlock()

		refreshTotal.WithLabelValues("ok").Inc()
		return nil, nil
	})
	return err
}
