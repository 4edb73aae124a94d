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

package operator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	kafkav1alpha1 "github.com/novatechflow/kafka-operator/api/v1alpha1"
	"github.com/novatechflow/kafka-operator/pkg/access"
	"github.com/novatechflow/kafka-operator/pkg/credentials"
	"github.com/novatechflow/kafka-operator/pkg/relation"
)

// CredentialRegistry hands out one credential provider per cluster so the
// provider cache survives across reconciles of the cluster and its clients.
type CredentialRegistry struct {
	Client client.Client
	Scheme *runtime.Scheme

	newEtcdStore func(cfg credentials.EtcdStoreConfig) (credentials.Store, func() error, error)

	mu      sync.Mutex
	entries map[types.NamespacedName]*credentialEntry
}

type credentialEntry struct {
	signature string
	provider  *credentials.Provider
	close     func() error
}

// NewCredentialRegistry creates a registry backed by the controller-runtime client.
func NewCredentialRegistry(c client.Client, scheme *runtime.Scheme) *CredentialRegistry {
	return &CredentialRegistry{
		Client:       c,
		Scheme:       scheme,
		newEtcdStore: dialEtcdStore,
		entries:      make(map[types.NamespacedName]*credentialEntry),
	}
}

func dialEtcdStore(cfg credentials.EtcdStoreConfig) (credentials.Store, func() error, error) {
	store, err := credentials.NewEtcdStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// For returns the provider for cluster, rebuilding it when the backend changed.
func (r *CredentialRegistry) For(cluster *kafkav1alpha1.KafkaCluster) (*credentials.Provider, error) {
	key := types.NamespacedName{Namespace: cluster.Namespace, Name: cluster.Name}
	signature := storeSignature(cluster)

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[key]; ok {
		if entry.signature == signature {
			return entry.provider, nil
		}
		r.closeEntry(entry)
		delete(r.entries, key)
	}

	store, closeFn, err := r.buildStore(cluster)
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("cluster", key.String())
	entry := &credentialEntry{
		signature: signature,
		provider:  credentials.NewProvider(store, credentials.WithLogger(logger)),
		close:     closeFn,
	}
	r.entries[key] = entry
	return entry.provider, nil
}

// Release drops the provider of a deleted cluster.
func (r *CredentialRegistry) Release(key types.NamespacedName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[key]; ok {
		r.closeEntry(entry)
		delete(r.entries, key)
	}
}

func (r *CredentialRegistry) closeEntry(entry *credentialEntry) {
	if entry.close != nil {
		_ = entry.close()
	}
}

func (r *CredentialRegistry) buildStore(cluster *kafkav1alpha1.KafkaCluster) (credentials.Store, func() error, error) {
	switch credentialBackend(cluster) {
	case kafkav1alpha1.CredentialStoreEtcd:
		endpoints := credentialEndpoints(cluster)
		if len(endpoints) == 0 {
			return nil, nil, fmt.Errorf("etcd credential store requires endpoints")
		}
		cfg := credentials.EtcdStoreConfig{
			Endpoints:   endpoints,
			DialTimeout: 5 * time.Second,
			Prefix:      credentialPrefix(cluster),
		}
		if parseBoolEnv(operatorEtcdSilenceLogsEnv) {
			cfg.Logger = zap.NewNop()
		}
		return r.newEtcdStore(cfg)
	default:
		store := credentials.NewSecretStore(r.Client, credentials.SecretStoreConfig{
			Key:    types.NamespacedName{Namespace: cluster.Namespace, Name: internalCredentialsSecretName(cluster)},
			Labels: clusterLabels(cluster),
			Owner:  cluster,
			Scheme: r.Scheme,
		})
		return store, nil, nil
	}
}

func credentialBackend(cluster *kafkav1alpha1.KafkaCluster) string {
	backend := strings.ToLower(strings.TrimSpace(cluster.Spec.CredentialStore.Backend))
	if backend == kafkav1alpha1.CredentialStoreEtcd {
		return backend
	}
	return kafkav1alpha1.CredentialStoreSecret
}

func credentialEndpoints(cluster *kafkav1alpha1.KafkaCluster) []string {
	if endpoints := cleanEndpoints(cluster.Spec.CredentialStore.Etcd.Endpoints); len(endpoints) > 0 {
		return endpoints
	}
	return parseEnvEndpoints(operatorCredentialEndpointsEnv)
}

func credentialPrefix(cluster *kafkav1alpha1.KafkaCluster) string {
	if prefix := strings.TrimSpace(cluster.Spec.CredentialStore.Etcd.Prefix); prefix != "" {
		return strings.TrimRight(prefix, "/")
	}
	return fmt.Sprintf("/kafka-operator/%s/%s/peer", cluster.Namespace, cluster.Name)
}

func storeSignature(cluster *kafkav1alpha1.KafkaCluster) string {
	backend := credentialBackend(cluster)
	if backend != kafkav1alpha1.CredentialStoreEtcd {
		return backend + "|" + string(cluster.UID)
	}
	return backend + "|" + strings.Join(credentialEndpoints(cluster), ",") + "|" + credentialPrefix(cluster)
}

var errInvalidSuperUser = errors.New("invalid extra super user")

// validateExtraSuperUsers rejects names that would alter the super.users
// directive when rendered.
func validateExtraSuperUsers(names []string) error {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !access.ValidPrincipalName(name) {
			return fmt.Errorf("%w %q: separators, whitespace and control characters are not allowed", errInvalidSuperUser, name)
		}
	}
	return nil
}

// syncPeerData writes the declared extra super users into the shared store,
// removes the ones no longer declared and returns the resulting peer data.
func syncPeerData(ctx context.Context, store credentials.Store, extraSuperUsers []string) (relation.Bag, error) {
	if err := validateExtraSuperUsers(extraSuperUsers); err != nil {
		return nil, err
	}
	current, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list peer data: %w", err)
	}
	want := make(map[string]struct{}, len(extraSuperUsers))
	for _, name := range extraSuperUsers {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := access.ExtraSuperUserPrefix + name
		want[key] = struct{}{}
		if _, ok := current[key]; ok {
			continue
		}
		if err := store.Put(ctx, key, "true"); err != nil {
			return nil, fmt.Errorf("add extra super user %s: %w", name, err)
		}
		current[key] = "true"
	}
	for key := range current {
		if !strings.HasPrefix(key, access.ExtraSuperUserPrefix) {
			continue
		}
		if _, ok := want[key]; ok {
			continue
		}
		if err := store.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("remove extra super user %s: %w", key, err)
		}
		delete(current, key)
	}
	bag := make(relation.Bag, len(current))
	for key, val := range current {
		if credentials.IsMarker(key) {
			continue
		}
		bag[key] = val
	}
	return bag, nil
}
