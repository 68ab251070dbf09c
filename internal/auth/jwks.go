package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	josev4 "github.com/go-jose/go-jose/v4"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// jwksCacheTTL/jwksStaleMax/jwksFetchTimeout are the JWKS caching
// parameters: refresh every hour, tolerate a stale set for up to a day if
// the issuer is unreachable, and never let one fetch block longer than 10s.
const (
	jwksCacheTTL     = time.Hour
	jwksStaleMax     = 24 * time.Hour
	jwksFetchTimeout = 10 * time.Second
)

// jwksCache fetches and caches RSA public keys from a JWKS endpoint,
// grounded on the gateway's klient-backed upstream HTTP calls: a bounded
// client timeout and a cached result reused across requests.
type jwksCache struct {
	url string

	httpClient *http.Client

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func newJWKSCache(url string) *jwksCache {
	return &jwksCache{
		url:        url,
		httpClient: &http.Client{Timeout: jwksFetchTimeout},
		keys:       map[string]*rsa.PublicKey{},
	}
}

// key returns the RSA public key for kid, refreshing the cache if it's
// past TTL. A stale cache (up to jwksStaleMax old) is served if refreshing
// fails, so a transient JWKS outage doesn't immediately lock out every
// bearer-token caller.
func (c *jwksCache) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.Lock()
	age := time.Since(c.fetchedAt)
	needsRefresh := c.fetchedAt.IsZero() || age > jwksCacheTTL
	k, ok := c.keys[kid]
	c.mu.Unlock()

	if !needsRefresh && ok {
		return k, nil
	}

	if err := c.refresh(ctx); err != nil {
		if ok && age < jwksStaleMax {
			return k, nil
		}
		return nil, fmt.Errorf("refresh jwks: %w", err)
	}

	c.mu.Lock()
	k, ok = c.keys[kid]
	c.mu.Unlock()
	if !ok {
		return nil, model.NewError(model.ErrInvalidToken, "unknown key id %q", kid)
	}
	return k, nil
}

func (c *jwksCache) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var set josev4.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if !k.Valid() {
			continue
		}
		pub, ok := k.Key.(*rsa.PublicKey)
		if !ok {
			continue // only RSA keys are supported
		}
		keys[k.KeyID] = pub
	}

	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return nil
}
