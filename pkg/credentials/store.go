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

// Package credentials keeps internal service-account secrets write-once in a
// store shared by every unit of the cluster.
package credentials

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Internal service accounts.
const (
	InterBrokerUser = "sync"
	AdminUser       = "admin"
)

// InternalUsers lists the accounts every cluster provisions for itself.
var InternalUsers = []string{InterBrokerUser, AdminUser}

var (
	// ErrCredentialLost is returned when a secret that was handed out before
	// is no longer in the store. Regenerating it would break brokers that
	// already trust the old value.
	ErrCredentialLost = errors.New("credential missing from shared store")
	// ErrStoreConflict is returned when a write kept losing to concurrent writers.
	ErrStoreConflict = errors.New("credential store update conflict")
)

// Store is the shared key/value store visible to every unit.
type Store interface {
	// Get returns the value for key and whether it is set.
	Get(ctx context.Context, key string) (string, bool, error)
	// PutIfAbsent writes value unless key is already set and returns the
	// value that ended up in the store.
	PutIfAbsent(ctx context.Context, key, value string) (string, error)
	// Put writes value unconditionally.
	Put(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every key in the store.
	List(ctx context.Context) (map[string]string, error)
}

// Internal maps internal account names to their secrets.
type Internal map[string]string

// Ready reports whether every internal account has a secret.
func (i Internal) Ready() bool {
	for _, user := range InternalUsers {
		if i[user] == "" {
			return false
		}
	}
	return true
}

// Accounts returns the account names, sorted.
func (i Internal) Accounts() []string {
	out := make([]string, 0, len(i))
	for name := range i {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemoryStore creates a store seeded with the given values.
func NewMemoryStore(seed map[string]string) *MemoryStore {
	data := make(map[string]string, len(seed))
	for k, v := range seed {
		data[k] = v
	}
	return &MemoryStore{data: data}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	return val, ok && val != "", nil
}

func (m *MemoryStore) PutIfAbsent(_ context.Context, key, value string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing := m.data[key]; existing != "" {
		return existing, nil
	}
	m.data[key] = value
	return value, nil
}

func (m *MemoryStore) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) List(_ context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out, nil
}
