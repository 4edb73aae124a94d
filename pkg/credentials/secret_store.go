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
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
)

const secretStoreAttempts = 5

// SecretStoreConfig locates the Kubernetes Secret backing the store.
type SecretStoreConfig struct {
	Key    types.NamespacedName
	Labels map[string]string
	// Owner, when set together with Scheme, becomes the controller of a
	// newly created Secret.
	Owner  client.Object
	Scheme *runtime.Scheme
}

// SecretStore keeps credentials in a single Secret. Writes rely on the
// resourceVersion check of the API server and re-read on conflict.
type SecretStore struct {
	client client.Client
	cfg    SecretStoreConfig
}

// NewSecretStore creates a store on top of a controller-runtime client.
func NewSecretStore(c client.Client, cfg SecretStoreConfig) *SecretStore {
	return &SecretStore{client: c, cfg: cfg}
}

func (s *SecretStore) load(ctx context.Context) (*corev1.Secret, bool, error) {
	secret := &corev1.Secret{}
	if err := s.client.Get(ctx, s.cfg.Key, secret); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return secret, true, nil
}

func (s *SecretStore) create(ctx context.Context, data map[string][]byte) error {
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      s.cfg.Key.Name,
			Namespace: s.cfg.Key.Namespace,
			Labels:    s.cfg.Labels,
		},
		Type: corev1.SecretTypeOpaque,
		Data: data,
	}
	if s.cfg.Owner != nil && s.cfg.Scheme != nil {
		if err := controllerutil.SetControllerReference(s.cfg.Owner, secret, s.cfg.Scheme); err != nil {
			return err
		}
	}
	return s.client.Create(ctx, secret)
}

func (s *SecretStore) Get(ctx context.Context, key string) (string, bool, error) {
	secret, found, err := s.load(ctx)
	if err != nil || !found {
		return "", false, err
	}
	val := string(secret.Data[key])
	return val, val != "", nil
}

func (s *SecretStore) PutIfAbsent(ctx context.Context, key, value string) (string, error) {
	for attempt := 0; attempt < secretStoreAttempts; attempt++ {
		secret, found, err := s.load(ctx)
		if err != nil {
			return "", err
		}
		if !found {
			err := s.create(ctx, map[string][]byte{key: []byte(value)})
			if apierrors.IsAlreadyExists(err) {
				continue
			}
			if err != nil {
				return "", err
			}
			return value, nil
		}
		if existing := string(secret.Data[key]); existing != "" {
			return existing, nil
		}
		if secret.Data == nil {
			secret.Data = map[string][]byte{}
		}
		secret.Data[key] = []byte(value)
		err = s.client.Update(ctx, secret)
		if apierrors.IsConflict(err) {
			continue
		}
		if err != nil {
			return "", err
		}
		return value, nil
	}
	return "", fmt.Errorf("%w: %s/%s", ErrStoreConflict, s.cfg.Key.Namespace, s.cfg.Key.Name)
}

func (s *SecretStore) Put(ctx context.Context, key, value string) error {
	return s.mutate(ctx, func(data map[string][]byte) bool {
		if string(data[key]) == value {
			return false
		}
		data[key] = []byte(value)
		return true
	})
}

func (s *SecretStore) Delete(ctx context.Context, key string) error {
	return s.mutate(ctx, func(data map[string][]byte) bool {
		if _, ok := data[key]; !ok {
			return false
		}
		delete(data, key)
		return true
	})
}

func (s *SecretStore) mutate(ctx context.Context, fn func(map[string][]byte) bool) error {
	for attempt := 0; attempt < secretStoreAttempts; attempt++ {
		secret, found, err := s.load(ctx)
		if err != nil {
			return err
		}
		if !found {
			data := map[string][]byte{}
			if !fn(data) {
				return nil
			}
			err := s.create(ctx, data)
			if apierrors.IsAlreadyExists(err) {
				continue
			}
			return err
		}
		if secret.Data == nil {
			secret.Data = map[string][]byte{}
		}
		if !fn(secret.Data) {
			return nil
		}
		err = s.client.Update(ctx, secret)
		if apierrors.IsConflict(err) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %s/%s", ErrStoreConflict, s.cfg.Key.Namespace, s.cfg.Key.Name)
}

func (s *SecretStore) List(ctx context.Context) (map[string]string, error) {
	secret, found, err := s.load(ctx)
	if err != nil || !found {
		return map[string]string{}, err
	}
	out := make(map[string]string, len(secret.Data))
	for k, v := range secret.Data {
		out[k] = string(v)
	}
	return out, nil
}
