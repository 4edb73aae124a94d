// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package credentials

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	gocache "github.com/patrickmn/go-cache"
)

const (
	passwordLength   = 32
	passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	markerSuffix     = ".provisioned"
)

// Provider hands out secrets for service accounts, generating each one at
// most once per store.
type Provider struct {
	store    Store
	cache    *gocache.Cache
	logger   *slog.Logger
	generate func() (string, error)
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the provider logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithGenerator replaces the secret generator.
func WithGenerator(fn func() (string, error)) Option {
	return func(p *Provider) {
		if fn != nil {
			p.generate = fn
		}
	}
}

// NewProvider creates a provider on top of store.
func NewProvider(store Store, opts ...Option) *Provider {
	p := &Provider{
		store:    store,
		cache:    gocache.New(gocache.NoExpiration, 0),
		logger:   slog.Default(),
		generate: GeneratePassword,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetOrCreate returns the secret for account, creating it when the store has
// never held one. When another unit wins a concurrent first write, its value
// is returned instead of ours.
func (p *Provider) GetOrCreate(ctx context.Context, account string) (string, error) {
	val, ok, err := p.store.Get(ctx, account)
	if err != nil {
		return "", fmt.Errorf("read credential %s: %w", account, err)
	}
	if ok {
		if cached, found := p.cache.Get(account); found && cached.(string) != val {
			p.logger.Warn("credential converged to shared store value", "account", account)
		}
		p.cache.Set(account, val, gocache.NoExpiration)
		return val, nil
	}

	if _, found := p.cache.Get(account); found {
		return "", fmt.Errorf("%w: %s", ErrCredentialLost, account)
	}
	if _, marked, err := p.store.Get(ctx, account+markerSuffix); err != nil {
		return "", fmt.Errorf("read credential marker %s: %w", account, err)
	} else if marked {
		return "", fmt.Errorf("%w: %s", ErrCredentialLost, account)
	}

	secret, err := p.generate()
	if err != nil {
		return "", fmt.Errorf("generate credential %s: %w", account, err)
	}
	stored, err := p.store.PutIfAbsent(ctx, account, secret)
	if err != nil {
		return "", fmt.Errorf("store credential %s: %w", account, err)
	}
	if stored != secret {
		p.logger.Info("credential generated concurrently by a peer", "account", account)
	} else {
		p.logger.Info("generated credential", "account", account)
	}
	if _, err := p.store.PutIfAbsent(ctx, account+markerSuffix, "true"); err != nil {
		return "", fmt.Errorf("mark credential %s: %w", account, err)
	}
	p.cache.Set(account, stored, gocache.NoExpiration)
	return stored, nil
}

// Internal returns the secrets of every internal account.
func (p *Provider) Internal(ctx context.Context) (Internal, error) {
	out := make(Internal, len(InternalUsers))
	for _, user := range InternalUsers {
		secret, err := p.GetOrCreate(ctx, user)
		if err != nil {
			return nil, err
		}
		out[user] = secret
	}
	return out, nil
}

// Lookup returns a secret without creating it.
func (p *Provider) Lookup(ctx context.Context, account string) (string, bool, error) {
	return p.store.Get(ctx, account)
}

// Forget removes an account that is intentionally retired, together with its
// marker, so a later GetOrCreate starts fresh.
func (p *Provider) Forget(ctx context.Context, account string) error {
	if err := p.store.Delete(ctx, account); err != nil {
		return fmt.Errorf("delete credential %s: %w", account, err)
	}
	if err := p.store.Delete(ctx, account+markerSuffix); err != nil {
		return fmt.Errorf("delete credential marker %s: %w", account, err)
	}
	p.cache.Delete(account)
	return nil
}

// Store exposes the backing store for non-credential peer entries.
func (p *Provider) Store() Store {
	return p.store
}

// GeneratePassword returns a random alphanumeric secret.
func GeneratePassword() (string, error) {
	max := big.NewInt(int64(len(passwordAlphabet)))
	out := make([]byte, passwordLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = passwordAlphabet[n.Int64()]
	}
	return string(out), nil
}

// IsMarker reports whether key is a provisioning marker rather than a secret.
func IsMarker(key string) bool {
	return strings.HasSuffix(key, markerSuffix) && key != markerSuffix
}
