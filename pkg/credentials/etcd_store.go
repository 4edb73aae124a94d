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
	"errors"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// EtcdStoreConfig defines how the credential store connects to etcd.
type EtcdStoreConfig struct {
	Endpoints   []string
	Username    string
	Password    string
	DialTimeout time.Duration
	// Prefix namespaces the keys, e.g. /kafka-operator/<ns>/<cluster>/peer/.
	Prefix string
	// Logger is handed to the etcd client; nil keeps the client default.
	Logger *zap.Logger
}

// EtcdStore keeps credentials in etcd. First writes are guarded by a
// version comparison so at most one value is ever stored per key.
type EtcdStore struct {
	client  *clientv3.Client
	prefix  string
	timeout time.Duration
}

// NewEtcdStore connects to etcd.
func NewEtcdStore(cfg EtcdStoreConfig) (*EtcdStore, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("etcd endpoints required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: cfg.DialTimeout,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	return NewEtcdStoreWithClient(cli, cfg.Prefix), nil
}

// NewEtcdStoreWithClient wraps an existing client.
func NewEtcdStoreWithClient(cli *clientv3.Client, prefix string) *EtcdStore {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &EtcdStore{client: cli, prefix: prefix, timeout: 3 * time.Second}
}

// Close releases the etcd client.
func (s *EtcdStore) Close() error {
	return s.client.Close()
}

func (s *EtcdStore) key(name string) string {
	return s.prefix + name
}

func (s *EtcdStore) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.client.Get(ctx, s.key(key))
	if err != nil {
		return "", false, err
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	val := string(resp.Kvs[0].Value)
	return val, val != "", nil
}

func (s *EtcdStore) PutIfAbsent(ctx context.Context, key, value string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	k := s.key(key)
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Version(k), "=", 0)).
		Then(clientv3.OpPut(k, value)).
		Else(clientv3.OpGet(k)).
		Commit()
	if err != nil {
		return "", err
	}
	if resp.Succeeded {
		return value, nil
	}
	if len(resp.Responses) == 0 {
		return "", ErrStoreConflict
	}
	rng := resp.Responses[0].GetResponseRange()
	if rng == nil || len(rng.Kvs) == 0 {
		return "", ErrStoreConflict
	}
	existing := string(rng.Kvs[0].Value)
	if existing == "" {
		// An empty value was written by a retired account; claim it with a
		// revision check so a concurrent claim still wins only once.
		txn, err := s.client.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(k), "=", rng.Kvs[0].ModRevision)).
			Then(clientv3.OpPut(k, value)).
			Commit()
		if err != nil {
			return "", err
		}
		if !txn.Succeeded {
			return "", ErrStoreConflict
		}
		return value, nil
	}
	return existing, nil
}

func (s *EtcdStore) Put(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.client.Put(ctx, s.key(key), value)
	return err
}

func (s *EtcdStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.client.Delete(ctx, s.key(key))
	return err
}

func (s *EtcdStore) List(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.client.Get(ctx, s.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		out[strings.TrimPrefix(string(kv.Key), s.prefix)] = string(kv.Value)
	}
	return out, nil
}
