package jwtx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

var ErrNoKey = errors.New("jwtx: key not found")

// KeyProvider resolves a verification key by kid.
type KeyProvider interface {
	Key(ctx context.Context, kid string) (any, error)
}

// KeySet holds public verification keys in memory. Safe for concurrent use.
type KeySet struct {
	mu  sync.RWMutex
	pub map[string]any // kid: *rsa.PublicKey | ed25519.PublicKey | *ecdsa.PublicKey
}

// NewKeySet returns an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{pub: make(map[string]any)}
}

// AddJWK parses j and adds it to the set.
func (k *KeySet) AddJWK(j JWK) error {
	key, err := parseJWKToKey(j)
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub[j.Kid] = key
	return nil
}

// Key returns the public key for kid.
func (k *KeySet) Key(_ context.Context, kid string) (any, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if pk, ok := k.pub[kid]; ok {
		return pk, nil
	}
	return nil, ErrNoKey
}

// Len returns the number of keys loaded.
func (k *KeySet) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.pub)
}

// ResetFromJWKS replaces all keys. Keys that fail to parse are skipped so a
// single encryption key or exotic curve in the server's set does not block
// verification with the others.
func (k *KeySet) ResetFromJWKS(jwks JWKS) int {
	next := make(map[string]any, len(jwks.Keys))
	for _, j := range jwks.Keys {
		if j.Use == "enc" {
			continue
		}
		key, err := parseJWKToKey(j)
		if err != nil {
			continue
		}
		next[j.Kid] = key
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub = next
	return len(next)
}

// RemoteKeySet fetches a JWKS document over HTTP and refetches it when an
// unknown kid shows up, at most once per MinRefresh.
type RemoteKeySet struct {
	URL        string
	HTTPClient *http.Client
	MinRefresh time.Duration

	keys *KeySet

	mu        sync.Mutex
	lastFetch time.Time
}

// NewRemoteKeySet returns a RemoteKeySet for url. A nil client means
// http.DefaultClient.
func NewRemoteKeySet(url string, client *http.Client) *RemoteKeySet {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteKeySet{
		URL:        url,
		HTTPClient: client,
		MinRefresh: time.Minute,
		keys:       NewKeySet(),
	}
}

// Key returns the key for kid, fetching the JWKS when it is not cached.
func (r *RemoteKeySet) Key(ctx context.Context, kid string) (any, error) {
	if key, err := r.keys.Key(ctx, kid); err == nil {
		return key, nil
	}

	if err := r.refresh(ctx); err != nil {
		return nil, err
	}
	return r.keys.Key(ctx, kid)
}

func (r *RemoteKeySet) refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lastFetch.IsZero() && time.Since(r.lastFetch) < r.MinRefresh {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwtx: jwks endpoint returned status %d", resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("failed to decode jwks: %w", err)
	}

	r.keys.ResetFromJWKS(jwks)
	r.lastFetch = time.Now()
	return nil
}
