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

	corev1 "k8s.io/api/core/v1"
	meta "k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	kafkav1alpha1 "github.com/novatechflow/kafka-operator/api/v1alpha1"
	"github.com/novatechflow/kafka-operator/pkg/relation"
)

type fakeClientAdmin struct {
	synced    map[string]string
	removed   []string
	syncErr   error
	dialed    int
	adminPass string
}

func (f *fakeClientAdmin) SyncClient(_ context.Context, grant relation.ClientGrant, password string) error {
	if f.syncErr != nil {
		return f.syncErr
	}
	if f.synced == nil {
		f.synced = map[string]string{}
	}
	f.synced[grant.Username()] = password
	return nil
}

func (f *fakeClientAdmin) RemoveClient(_ context.Context, grant relation.ClientGrant) error {
	f.removed = append(f.removed, grant.Username())
	return nil
}

func (f *fakeClientAdmin) factory() AdminFactory {
	return func(_ context.Context, _ *kafkav1alpha1.KafkaCluster, adminPassword string) (ClientAdmin, func(), error) {
		f.dialed++
		f.adminPass = adminPassword
		return f, func() {}, nil
	}
}

func readyCluster(name string) *kafkav1alpha1.KafkaCluster {
	cluster := testCluster(name, 2)
	cluster.Status.BootstrapServers = []string{
		name + "-broker-0.x:19092",
		name + "-broker-1.x:19092",
	}
	meta.SetStatusCondition(&cluster.Status.Conditions, metav1.Condition{
		Type:   ConditionReady,
		Status: metav1.ConditionTrue,
		Reason: "Reconciled",
	})
	return cluster
}

func newTestClientReconciler(c client.Client, scheme *runtime.Scheme, admin *fakeClientAdmin) *ClientReconciler {
	return &ClientReconciler{
		Client:      c,
		Scheme:      scheme,
		Credentials: NewCredentialRegistry(c, scheme),
		NewAdmin:    admin.factory(),
	}
}

func reconcileClient(t *testing.T, r *ClientReconciler, name string) ctrl.Result {
	t.Helper()
	res, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: types.NamespacedName{Namespace: "default", Name: name}})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	return res
}

func TestClientReconcileProvisionsAccess(t *testing.T) {
	cluster := readyCluster("demo")
	kc := testClientResource("billing", "demo", "producer,consumer", "invoices")
	c, scheme := testClient(t, cluster, kc, testZookeeperSecret(cluster))
	admin := &fakeClientAdmin{}
	r := newTestClientReconciler(c, scheme, admin)

	res := reconcileClient(t, r, "billing")
	if res.RequeueAfter != 0 {
		t.Fatalf("unexpected requeue %v", res.RequeueAfter)
	}

	secret := &corev1.Secret{}
	assertFound(t, c, secret, "default", "billing-kafka-credentials")
	if string(secret.Data["username"]) != "relation-billing" {
		t.Fatalf("unexpected username %q", secret.Data["username"])
	}
	password := string(secret.Data["password"])
	if password == "" || admin.synced["relation-billing"] != password {
		t.Fatalf("admin did not receive the stored password")
	}
	if string(secret.Data["endpoints"]) != "demo-broker-0.x,demo-broker-1.x" {
		t.Fatalf("unexpected endpoints %q", secret.Data["endpoints"])
	}
	if string(secret.Data["uris"]) != "demo-broker-0.x:19092,demo-broker-1.x:19092" {
		t.Fatalf("unexpected uris %q", secret.Data["uris"])
	}
	if string(secret.Data["zookeeper-uris"]) != "10.0.0.1:2181,10.0.0.2:2181/kafka" {
		t.Fatalf("unexpected zookeeper uris %q", secret.Data["zookeeper-uris"])
	}
	if string(secret.Data["consumer-group-prefix"]) != "relation-billing-" {
		t.Fatalf("unexpected consumer group prefix %q", secret.Data["consumer-group-prefix"])
	}
	if admin.adminPass == "" {
		t.Fatalf("expected admin credentials to be passed to the factory")
	}

	got := &kafkav1alpha1.KafkaClient{}
	assertFound(t, c, got, "default", "billing")
	if !controllerutil.ContainsFinalizer(got, clientFinalizer) {
		t.Fatalf("expected finalizer")
	}
	if got.Status.Phase != "Ready" || got.Status.Username != "relation-billing" || got.Status.SecretName != "billing-kafka-credentials" {
		t.Fatalf("unexpected status %+v", got.Status)
	}

	// The password is stable across reconciles.
	reconcileClient(t, r, "billing")
	assertFound(t, c, secret, "default", "billing-kafka-credentials")
	if string(secret.Data["password"]) != password {
		t.Fatalf("password changed across reconciles")
	}
}

func TestClientSecretOmitsPrefixWithoutConsumerRole(t *testing.T) {
	cluster := readyCluster("demo")
	kc := testClientResource("writer", "demo", "producer", "orders")
	c, scheme := testClient(t, cluster, kc)
	r := newTestClientReconciler(c, scheme, &fakeClientAdmin{})

	reconcileClient(t, r, "writer")
	secret := &corev1.Secret{}
	assertFound(t, c, secret, "default", "writer-kafka-credentials")
	if _, ok := secret.Data["consumer-group-prefix"]; ok {
		t.Fatalf("consumer-group-prefix must only be set for consumers")
	}
	if string(secret.Data["zookeeper-uris"]) != "" {
		t.Fatalf("expected empty zookeeper uris without a relation")
	}
}

func TestClientReconcileWaitsForCluster(t *testing.T) {
	t.Setenv(operatorClientRequeueEnv, "5")
	cluster := testCluster("demo", 1)
	kc := testClientResource("early", "demo", "producer", "orders")
	orphan := testClientResource("orphan", "missing", "producer", "orders")
	c, scheme := testClient(t, cluster, kc, orphan)
	admin := &fakeClientAdmin{}
	r := newTestClientReconciler(c, scheme, admin)

	res := reconcileClient(t, r, "early")
	if res.RequeueAfter != 5*time.Second {
		t.Fatalf("expected requeue, got %v", res.RequeueAfter)
	}
	got := &kafkav1alpha1.KafkaClient{}
	assertFound(t, c, got, "default", "early")
	if got.Status.Phase != "WaitingForCluster" {
		t.Fatalf("unexpected phase %q", got.Status.Phase)
	}
	if admin.dialed != 0 {
		t.Fatalf("admin must not be dialed before the cluster is ready")
	}
	assertNotFound(t, c, &corev1.Secret{}, "default", "early-kafka-credentials")

	reconcileClient(t, r, "orphan")
	assertFound(t, c, got, "default", "orphan")
	if got.Status.Phase != "ClusterNotFound" {
		t.Fatalf("unexpected phase %q", got.Status.Phase)
	}
}

func TestClientReconcileSyncFailure(t *testing.T) {
	cluster := readyCluster("demo")
	kc := testClientResource("billing", "demo", "producer", "orders")
	c, scheme := testClient(t, cluster, kc)
	r := newTestClientReconciler(c, scheme, &fakeClientAdmin{syncErr: errors.New("cluster authorization failed")})

	res := reconcileClient(t, r, "billing")
	if res.RequeueAfter == 0 {
		t.Fatalf("expected requeue after sync failure")
	}
	got := &kafkav1alpha1.KafkaClient{}
	assertFound(t, c, got, "default", "billing")
	cond := meta.FindStatusCondition(got.Status.Conditions, ConditionReady)
	if cond == nil || cond.Reason != "SyncFailed" {
		t.Fatalf("unexpected condition %+v", cond)
	}
	assertNotFound(t, c, &corev1.Secret{}, "default", "billing-kafka-credentials")
}

func TestClientDeletionRevokesAccess(t *testing.T) {
	cluster := readyCluster("demo")
	kc := testClientResource("billing", "demo", "consumer", "invoices")
	c, scheme := testClient(t, cluster, kc)
	admin := &fakeClientAdmin{}
	r := newTestClientReconciler(c, scheme, admin)
	reconcileClient(t, r, "billing")

	provider, err := r.Credentials.For(cluster)
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	if _, ok, _ := provider.Lookup(context.Background(), "relation-billing"); !ok {
		t.Fatalf("expected stored password")
	}

	got := &kafkav1alpha1.KafkaClient{}
	assertFound(t, c, got, "default", "billing")
	if err := c.Delete(context.Background(), got); err != nil {
		t.Fatalf("delete: %v", err)
	}
	reconcileClient(t, r, "billing")

	if len(admin.removed) != 1 || admin.removed[0] != "relation-billing" {
		t.Fatalf("expected user removal, got %v", admin.removed)
	}
	if _, ok, _ := provider.Lookup(context.Background(), "relation-billing"); ok {
		t.Fatalf("expected stored password to be forgotten")
	}
	assertNotFound(t, c, &kafkav1alpha1.KafkaClient{}, "default", "billing")
}

func TestClientDeletionWithoutCluster(t *testing.T) {
	kc := testClientResource("stray", "gone", "producer", "orders")
	kc.Finalizers = []string{clientFinalizer}
	kc.DeletionTimestamp = &metav1.Time{Time: time.Now()}
	c, scheme := testClient(t, kc)
	admin := &fakeClientAdmin{}
	r := newTestClientReconciler(c, scheme, admin)

	reconcileClient(t, r, "stray")
	if admin.dialed != 0 {
		t.Fatalf("admin must not be dialed without a cluster")
	}
	assertNotFound(t, c, &kafkav1alpha1.KafkaClient{}, "default", "stray")
}
