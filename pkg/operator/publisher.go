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
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	kafkav1alpha1 "github.com/novatechflow/kafka-operator/api/v1alpha1"
)

const (
	publishAttempts = 5
	etcdOpTimeout   = 5 * time.Second
)

var errPublishConflict = errors.New("config publish conflict")

// ConfigPublisher mirrors rendered broker configuration into etcd so that
// sidecars and tooling outside the cluster can watch it.
type ConfigPublisher struct {
	dial         func(endpoints []string) (*clientv3.Client, error)
	conflictWait time.Duration
	retryWait    time.Duration
}

// NewConfigPublisher returns a publisher that dials etcd per publish.
func NewConfigPublisher() *ConfigPublisher {
	return &ConfigPublisher{
		dial:         dialEtcd,
		conflictWait: 200 * time.Millisecond,
		retryWait:    2 * time.Second,
	}
}

func dialEtcd(endpoints []string) (*clientv3.Client, error) {
	cfg := clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: etcdOpTimeout,
	}
	if parseBoolEnv(operatorEtcdSilenceLogsEnv) {
		cfg.Logger = zap.NewNop()
	}
	return clientv3.New(cfg)
}

// publishPrefix returns the key prefix for a cluster, without trailing slash.
func publishPrefix(cluster *kafkav1alpha1.KafkaCluster) string {
	base := "/kafka-operator"
	if cluster.Spec.Publish != nil {
		if prefix := strings.TrimRight(strings.TrimSpace(cluster.Spec.Publish.Prefix), "/"); prefix != "" {
			base = prefix
		}
	}
	return fmt.Sprintf("%s/%s/%s/config", base, cluster.Namespace, cluster.Name)
}

// Publish writes one key per unit under the cluster prefix and removes keys of
// units that no longer exist. All writes land in a single transaction guarded
// by the revisions that were read, so concurrent publishers cannot interleave.
func (p *ConfigPublisher) Publish(ctx context.Context, cluster *kafkav1alpha1.KafkaCluster, units map[string]string) error {
	if cluster.Spec.Publish == nil {
		return nil
	}
	endpoints := cleanEndpoints(cluster.Spec.Publish.Endpoints)
	if len(endpoints) == 0 {
		return fmt.Errorf("etcd endpoints required")
	}
	prefix := publishPrefix(cluster) + "/"

	var lastErr error
	for attempt := 0; attempt < publishAttempts; attempt++ {
		lastErr = p.publishOnce(ctx, endpoints, prefix, units)
		if lastErr == nil {
			operatorPublishResults.WithLabelValues("success").Inc()
			return nil
		}
		wait := p.retryWait
		if errors.Is(lastErr, errPublishConflict) {
			wait = p.conflictWait
		} else if !isRetryableEtcdError(lastErr) {
			break
		}
		if err := sleepWithContext(ctx, wait); err != nil {
			break
		}
	}
	operatorPublishResults.WithLabelValues("error").Inc()
	return lastErr
}

func (p *ConfigPublisher) publishOnce(ctx context.Context, endpoints []string, prefix string, units map[string]string) error {
	cli, err := p.dial(endpoints)
	if err != nil {
		return err
	}
	defer cli.Close()

	getCtx, cancelGet := context.WithTimeout(ctx, etcdOpTimeout)
	resp, err := cli.Get(getCtx, prefix, clientv3.WithPrefix())
	cancelGet()
	if err != nil {
		return err
	}

	existing := make(map[string]int64, len(resp.Kvs))
	unchanged := true
	for _, kv := range resp.Kvs {
		key := string(kv.Key)
		existing[key] = kv.ModRevision
		name := strings.TrimPrefix(key, prefix)
		if val, ok := units[name]; !ok || val != string(kv.Value) {
			unchanged = false
		}
	}
	if unchanged && len(existing) == len(units) {
		return nil
	}

	cmps := make([]clientv3.Cmp, 0, len(units)+len(existing))
	ops := make([]clientv3.Op, 0, len(units)+len(existing))
	for _, name := range sortedKeys(units) {
		key := prefix + name
		if rev, ok := existing[key]; ok {
			cmps = append(cmps, clientv3.Compare(clientv3.ModRevision(key), "=", rev))
		} else {
			cmps = append(cmps, clientv3.Compare(clientv3.Version(key), "=", 0))
		}
		ops = append(ops, clientv3.OpPut(key, units[name]))
	}
	for key, rev := range existing {
		if _, ok := units[strings.TrimPrefix(key, prefix)]; ok {
			continue
		}
		cmps = append(cmps, clientv3.Compare(clientv3.ModRevision(key), "=", rev))
		ops = append(ops, clientv3.OpDelete(key))
	}

	putCtx, cancel := context.WithTimeout(ctx, etcdOpTimeout)
	defer cancel()
	txnResp, err := cli.Txn(putCtx).If(cmps...).Then(ops...).Commit()
	if err != nil {
		return err
	}
	if !txnResp.Succeeded {
		return errPublishConflict
	}
	return nil
}

func isRetryableEtcdError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "transport: Error while dialing") ||
		strings.Contains(msg, "no such host")
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
