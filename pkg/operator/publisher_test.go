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
	"testing"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	kafkav1alpha1 "github.com/novatechflow/kafka-operator/api/v1alpha1"
)

func TestConfigPublisherWritesAndPrunes(t *testing.T) {
	e, endpoints := startEmbeddedEtcd(t, "32481", "32482")
	defer e.Close()

	cluster := testCluster("demo", 2)
	cluster.Spec.Publish = &kafkav1alpha1.EtcdSpec{Endpoints: endpoints}
	publisher := NewConfigPublisher()
	ctx := context.Background()

	units := map[string]string{
		"demo-broker-0": "broker.id=0\n",
		"demo-broker-1": "broker.id=1\n",
	}
	if err := publisher.Publish(ctx, cluster, units); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	cli, err := clientv3.New(clientv3.Config{Endpoints: endpoints, DialTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("etcd client: %v", err)
	}
	defer cli.Close()

	prefix := "/kafka-operator/default/demo/config/"
	resp, err := cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(resp.Kvs) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(resp.Kvs))
	}
	firstRev := resp.Header.Revision

	// Republishing identical content must not write.
	if err := publisher.Publish(ctx, cluster, units); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	resp, err = cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.Header.Revision != firstRev {
		t.Fatalf("expected no writes, revision moved %d -> %d", firstRev, resp.Header.Revision)
	}

	// Scale down to one unit.
	if err := publisher.Publish(ctx, cluster, map[string]string{"demo-broker-0": "broker.id=0\nlog.retention.ms=1\n"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	resp, err = cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(resp.Kvs) != 1 || string(resp.Kvs[0].Key) != prefix+"demo-broker-0" {
		t.Fatalf("expected stale unit pruned, got %v", resp.Kvs)
	}
	if string(resp.Kvs[0].Value) != "broker.id=0\nlog.retention.ms=1\n" {
		t.Fatalf("unexpected value %q", resp.Kvs[0].Value)
	}
}

func TestConfigPublisherDisabledAndMisconfigured(t *testing.T) {
	cluster := testCluster("demo", 1)
	publisher := NewConfigPublisher()
	publisher.dial = func([]string) (*clientv3.Client, error) {
		t.Fatalf("publisher must not dial without a publish spec")
		return nil, nil
	}
	if err := publisher.Publish(context.Background(), cluster, nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	cluster.Spec.Publish = &kafkav1alpha1.EtcdSpec{Endpoints: []string{" "}}
	if err := publisher.Publish(context.Background(), cluster, nil); err == nil {
		t.Fatalf("expected error without endpoints")
	}
}

func TestConfigPublisherStopsOnPermanentError(t *testing.T) {
	cluster := testCluster("demo", 1)
	cluster.Spec.Publish = &kafkav1alpha1.EtcdSpec{Endpoints: []string{"http://etcd:2379"}}
	publisher := NewConfigPublisher()
	dials := 0
	permanent := errors.New("permission denied")
	publisher.dial = func([]string) (*clientv3.Client, error) {
		dials++
		return nil, permanent
	}
	if err := publisher.Publish(context.Background(), cluster, nil); !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if dials != 1 {
		t.Fatalf("expected a single attempt, got %d", dials)
	}

	dials = 0
	publisher.dial = func([]string) (*clientv3.Client, error) {
		dials++
		return nil, errors.New("dial tcp: connection refused")
	}
	publisher.retryWait = time.Millisecond
	if err := publisher.Publish(context.Background(), cluster, nil); err == nil {
		t.Fatalf("expected error")
	}
	if dials != publishAttempts {
		t.Fatalf("expected %d attempts, got %d", publishAttempts, dials)
	}
}

func TestPublishPrefix(t *testing.T) {
	cluster := testCluster("demo", 1)
	cluster.Spec.Publish = &kafkav1alpha1.EtcdSpec{Prefix: "/brokers/"}
	if got := publishPrefix(cluster); got != "/brokers/default/demo/config" {
		t.Fatalf("unexpected prefix %q", got)
	}
}
