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
	"fmt"
	"net"
	"net/url"
	"strings"
	"testing"
	"time"

	"go.etcd.io/etcd/server/v3/embed"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	kafkav1alpha1 "github.com/novatechflow/kafka-operator/api/v1alpha1"
)

func testScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := kafkav1alpha1.AddToScheme(scheme); err != nil {
		t.Fatalf("add kafka scheme: %v", err)
	}
	if err := appsv1.AddToScheme(scheme); err != nil {
		t.Fatalf("add apps scheme: %v", err)
	}
	if err := corev1.AddToScheme(scheme); err != nil {
		t.Fatalf("add core scheme: %v", err)
	}
	return scheme
}

func testClient(t *testing.T, objs ...client.Object) (client.Client, *runtime.Scheme) {
	t.Helper()
	scheme := testScheme(t)
	c := fake.NewClientBuilder().
		WithScheme(scheme).
		WithObjects(objs...).
		WithStatusSubresource(&kafkav1alpha1.KafkaCluster{}, &kafkav1alpha1.KafkaClient{}).
		Build()
	return c, scheme
}

func testCluster(name string, replicas int32) *kafkav1alpha1.KafkaCluster {
	return &kafkav1alpha1.KafkaCluster{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "default",
			UID:       types.UID("uid-" + name),
		},
		Spec: kafkav1alpha1.KafkaClusterSpec{
			Replicas:  &replicas,
			Storage:   kafkav1alpha1.StorageSpec{Volumes: 1},
			Zookeeper: kafkav1alpha1.ZookeeperSpec{SecretRef: name + "-zookeeper"},
		},
	}
}

func testZookeeperSecret(cluster *kafkav1alpha1.KafkaCluster) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: cluster.Spec.Zookeeper.SecretRef, Namespace: cluster.Namespace},
		Data: map[string][]byte{
			"chroot":    []byte("/kafka"),
			"username":  []byte("kafka"),
			"password":  []byte("mellon"),
			"endpoints": []byte("10.0.0.1,10.0.0.2"),
			"uris":      []byte("10.0.0.1:2181/kafka,10.0.0.2:2181/kafka"),
		},
	}
}

func testClientResource(name, cluster, roles, topic string) *kafkav1alpha1.KafkaClient {
	return &kafkav1alpha1.KafkaClient{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default"},
		Spec: kafkav1alpha1.KafkaClientSpec{
			ClusterRef:     cluster,
			ExtraUserRoles: roles,
			Topic:          topic,
		},
	}
}

func assertFound(t *testing.T, c client.Client, obj client.Object, ns, name string) {
	t.Helper()
	key := client.ObjectKey{Namespace: ns, Name: name}
	if err := c.Get(context.Background(), key, obj); err != nil {
		t.Fatalf("expected %T %s/%s to exist: %v", obj, ns, name, err)
	}
}

func assertNotFound(t *testing.T, c client.Client, obj client.Object, ns, name string) {
	t.Helper()
	key := client.ObjectKey{Namespace: ns, Name: name}
	if err := c.Get(context.Background(), key, obj); err == nil {
		t.Fatalf("expected %T %s/%s to be absent", obj, ns, name)
	}
}

func startEmbeddedEtcd(t *testing.T, clientPort, peerPort string) (*embed.Etcd, []string) {
	t.Helper()
	for _, port := range []string{clientPort, peerPort} {
		if err := portAvailable("127.0.0.1:" + port); err != nil {
			t.Skipf("skipping etcd tests: %v", err)
		}
	}
	cfg := embed.NewConfig()
	cfg.Dir = t.TempDir()
	cfg.LogLevel = "error"
	cfg.Logger = "zap"
	clientURL, _ := url.Parse("http://127.0.0.1:" + clientPort)
	peerURL, _ := url.Parse("http://127.0.0.1:" + peerPort)
	cfg.ListenClientUrls = []url.URL{*clientURL}
	cfg.AdvertiseClientUrls = []url.URL{*clientURL}
	cfg.ListenPeerUrls = []url.URL{*peerURL}
	cfg.AdvertisePeerUrls = []url.URL{*peerURL}
	cfg.Name = "default"
	cfg.InitialCluster = cfg.InitialClusterFromName(cfg.Name)

	e, err := embed.StartEtcd(cfg)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping etcd tests: %v", err)
		}
		t.Fatalf("start embedded etcd: %v", err)
	}
	select {
	case <-e.Server.ReadyNotify():
	case <-time.After(10 * time.Second):
		e.Server.Stop()
		t.Fatalf("etcd server took too long to start")
	}
	return e, []string{fmt.Sprintf("http://%s", e.Clients[0].Addr().String())}
}

func portAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}
