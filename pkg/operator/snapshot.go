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
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"

	kafkav1alpha1 "github.com/novatechflow/kafka-operator/api/v1alpha1"
	"github.com/novatechflow/kafka-operator/pkg/relation"
)

const (
	defaultBrokerReplicas = int32(3)
	logDataMountRoot      = "/var/lib/kafka"
	privateAddressKey     = "private-address"
	extraUserRolesKey     = "extra-user-roles"
	topicKey              = "topic"
	consumerGroupKey      = "consumer-group-prefix"
)

// ClusterState is everything read from the API server for one reconcile.
type ClusterState struct {
	Zookeeper relation.Bag
	PeerData  relation.Bag
	Clients   []kafkav1alpha1.KafkaClient
}

func brokerReplicas(cluster *kafkav1alpha1.KafkaCluster) int32 {
	if cluster.Spec.Replicas != nil && *cluster.Spec.Replicas >= 0 {
		return *cluster.Spec.Replicas
	}
	return defaultBrokerReplicas
}

func brokerUnit(cluster *kafkav1alpha1.KafkaCluster, ordinal int32) string {
	return fmt.Sprintf("%s/%d", cluster.Name, ordinal)
}

func brokerHost(cluster *kafkav1alpha1.KafkaCluster, ordinal int32) string {
	return fmt.Sprintf("%s-%d.%s.%s.svc.cluster.local", brokerStatefulSetName(cluster), ordinal, brokerHeadlessServiceName(cluster), cluster.Namespace)
}

func logDataMounts(cluster *kafkav1alpha1.KafkaCluster) []string {
	if cluster.Spec.Storage.Volumes <= 0 {
		return nil
	}
	mounts := make([]string, 0, cluster.Spec.Storage.Volumes)
	for v := int32(0); v < cluster.Spec.Storage.Volumes; v++ {
		mounts = append(mounts, fmt.Sprintf("%s/%s", logDataMountRoot, logDataVolumeName(v)))
	}
	return mounts
}

func logDataVolumeName(v int32) string {
	return fmt.Sprintf("%s-%d", relation.LogDataStorage, v)
}

// loadZookeeperBag reads the coordination service relation data. A missing
// Secret is not an error: the cluster simply is not connected yet.
func loadZookeeperBag(ctx context.Context, c client.Client, cluster *kafkav1alpha1.KafkaCluster) (relation.Bag, error) {
	name := strings.TrimSpace(cluster.Spec.Zookeeper.SecretRef)
	if name == "" {
		return relation.Bag{}, nil
	}
	secret := &corev1.Secret{}
	if err := c.Get(ctx, client.ObjectKey{Namespace: cluster.Namespace, Name: name}, secret); err != nil {
		if apierrors.IsNotFound(err) {
			return relation.Bag{}, nil
		}
		return nil, fmt.Errorf("read zookeeper secret %s: %w", name, err)
	}
	bag := make(relation.Bag, len(secret.Data)+len(secret.StringData))
	for key, val := range secret.Data {
		bag[key] = string(val)
	}
	for key, val := range secret.StringData {
		bag[key] = val
	}
	return bag, nil
}

// listClusterClients returns the live KafkaClients referencing cluster, sorted by name.
func listClusterClients(ctx context.Context, c client.Client, cluster *kafkav1alpha1.KafkaCluster) ([]kafkav1alpha1.KafkaClient, error) {
	var list kafkav1alpha1.KafkaClientList
	if err := c.List(ctx, &list, client.InNamespace(cluster.Namespace)); err != nil {
		return nil, fmt.Errorf("list kafka clients: %w", err)
	}
	out := make([]kafkav1alpha1.KafkaClient, 0, len(list.Items))
	for _, item := range list.Items {
		if item.Spec.ClusterRef != cluster.Name || !item.DeletionTimestamp.IsZero() {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func clientRelation(kc kafkav1alpha1.KafkaClient) relation.Relation {
	bag := relation.Bag{extraUserRolesKey: kc.Spec.ExtraUserRoles}
	if topic := strings.TrimSpace(kc.Spec.Topic); topic != "" {
		bag[topicKey] = topic
	}
	if prefix := strings.TrimSpace(kc.Spec.ConsumerGroupPrefix); prefix != "" {
		bag[consumerGroupKey] = prefix
	}
	return relation.Relation{
		ID:      kc.Name,
		Name:    relation.ClientRelation,
		App:     kc.Name,
		AppData: bag,
	}
}

func clientGrant(kc kafkav1alpha1.KafkaClient) relation.ClientGrant {
	rel := clientRelation(kc)
	return relation.GrantFromBag(rel.ID, rel.App, rel.AppData)
}

// BuildSnapshot assembles the cluster-wide view with no local unit set.
func BuildSnapshot(cluster *kafkav1alpha1.KafkaCluster, state ClusterState) relation.Snapshot {
	replicas := brokerReplicas(cluster)
	units := make(map[string]relation.Bag, replicas)
	for i := int32(0); i < replicas; i++ {
		units[brokerUnit(cluster, i)] = relation.Bag{privateAddressKey: brokerHost(cluster, i)}
	}
	rels := []relation.Relation{
		{
			ID:       "peer",
			Name:     relation.PeerRelation,
			App:      cluster.Name,
			AppData:  state.PeerData.Clone(),
			UnitData: units,
		},
	}
	if len(state.Zookeeper) > 0 {
		rels = append(rels, relation.Relation{
			ID:      "zookeeper",
			Name:    relation.ZookeeperRelation,
			App:     cluster.Spec.Zookeeper.SecretRef,
			AppData: state.Zookeeper.Clone(),
		})
	}
	for _, kc := range state.Clients {
		rels = append(rels, clientRelation(kc))
	}
	return relation.Snapshot{
		App:       cluster.Name,
		Relations: rels,
		Storage:   map[string][]string{relation.LogDataStorage: logDataMounts(cluster)},
	}
}

// BuildUnitSnapshots returns one snapshot per broker, ordered by ordinal.
func BuildUnitSnapshots(cluster *kafkav1alpha1.KafkaCluster, state ClusterState) []relation.Snapshot {
	base := BuildSnapshot(cluster, state)
	replicas := brokerReplicas(cluster)
	out := make([]relation.Snapshot, 0, replicas)
	for i := int32(0); i < replicas; i++ {
		snap := base
		snap.Unit = brokerUnit(cluster, i)
		out = append(out, snap)
	}
	return out
}
