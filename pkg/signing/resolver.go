package signing

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrNoSigningKeys is returned when neither static configuration nor
	// the certificate store yields any key at all.
	ErrNoSigningKeys = errors.New("no signing keys available")
	// ErrNoValidSigningKeys is returned when keys exist but none is
	// currently within its validity window.
	ErrNoValidSigningKeys = errors.New("no signing key is currently valid")
)

// Certificate is a signing certificate supplied by an external store.
type Certificate struct {
	Certificate *x509.Certificate
	PrivateKey  *rsa.PrivateKey
}

// CertificateStore supplies signing certificates from an external source,
// for example a database or a secrets manager.
type CertificateStore interface {
	SigningCertificates(ctx context.Context) ([]Certificate, error)
}

const DefaultCacheLifetime = 12 * time.Hour

// Resolver resolves the active set of signing keys from static
// configuration and an optional certificate store. Store-sourced keys
// are cached with a lifetime; static keys never expire from the cache.
//
// Concurrent resolution with a stale cache performs exactly one reload:
// the fast path reads the cache under a read lock, and a miss takes the
// exclusive reload lock and re-checks before reloading.
type Resolver struct {
	staticKeys    []*Key
	store         CertificateStore
	cacheLifetime time.Duration
	now           func() time.Time

	reloadMu sync.Mutex

	cacheMu     sync.RWMutex
	cached      []*Key
	cacheExpiry time.Time
}

// NewResolver creates a resolver over the given static keys and optional
// certificate store. A non-positive cacheLifetime selects the default.
func NewResolver(staticKeys []*Key, store CertificateStore, cacheLifetime time.Duration) *Resolver {
	if cacheLifetime <= 0 {
		cacheLifetime = DefaultCacheLifetime
	}
	r := &Resolver{
		staticKeys:    staticKeys,
		store:         store,
		cacheLifetime: cacheLifetime,
		now:           time.Now,
	}
	if store == nil && len(staticKeys) > 0 {
		// only static keys, nothing ever needs reloading
		r.cached = staticKeys
		r.cacheExpiry = time.Unix(1<<62, 0)
	}
	return r
}

// Keys returns the active signing keys. The returned slice is never
// empty; an error is returned instead.
func (r *Resolver) Keys(ctx context.Context) ([]*Key, error) {
	if keys, ok := r.cachedKeys(); ok {
		return keys, nil
	}

	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	// another caller may have reloaded while we waited for the lock
	if keys, ok := r.cachedKeys(); ok {
		return keys, nil
	}

	keys := make([]*Key, len(r.staticKeys))
	copy(keys, r.staticKeys)

	if r.store != nil {
		certificates, err := r.store.SigningCertificates(ctx)
		if err != nil {
			return nil, fmt.Errorf("load signing certificates: %w", err)
		}
		for _, c := range certificates {
			key, err := NewKey(c.Certificate, c.PrivateKey)
			if err != nil {
				slog.Warn("skipping unusable signing certificate", "error", err)
				continue
			}
			keys = append(keys, key)
		}
	}

	if len(keys) == 0 {
		return nil, ErrNoSigningKeys
	}

	r.cacheMu.Lock()
	r.cached = keys
	r.cacheExpiry = r.now().Add(r.cacheLifetime)
	r.cacheMu.Unlock()

	return keys, nil
}

// OptimalKey returns the signing key with the longest remaining validity
// among keys currently within their [NotBefore, NotAfter] window.
func (r *Resolver) OptimalKey(ctx context.Context) (*Key, error) {
	keys, err := r.Keys(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now()
	var best *Key
	for _, key := range keys {
		if !key.ValidAt(now) {
			continue
		}
		if best == nil || key.NotAfter.After(best.NotAfter) {
			best = key
		}
	}
	if best == nil {
		return nil, ErrNoValidSigningKeys
	}
	return best, nil
}

func (r *Resolver) cachedKeys() ([]*Key, bool) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	if len(r.cached) == 0 || r.now().After(r.cacheExpiry) {
		return nil, false
	}
	return r.cached, true
}
