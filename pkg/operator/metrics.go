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

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	kafkav1alpha1 "github.com/novatechflow/kafka-operator/api/v1alpha1"
)

var (
	operatorClusters = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kafka_operator_clusters",
		Help: "Number of KafkaCluster resources currently managed.",
	})
	operatorClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kafka_operator_clients",
		Help: "Number of KafkaClient resources currently managed.",
	})
	operatorClusterReady = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kafka_operator_cluster_ready",
		Help: "1 if the cluster has a connected coordination service and internal credentials.",
	}, []string{"cluster"})
	operatorSuperUsers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kafka_operator_super_users",
		Help: "Number of principals rendered into super.users.",
	}, []string{"cluster"})
	operatorConfigChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_operator_config_changes_total",
		Help: "Count of broker configuration renders that differ from the previous render.",
	}, []string{"cluster"})
	operatorCredentialErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_operator_credential_errors_total",
		Help: "Count of credential store failures labeled by reason.",
	}, []string{"reason"})
	operatorPublishResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_operator_config_publish_total",
		Help: "Count of etcd config publish attempts labeled by result.",
	}, []string{"result"})
	operatorArchiveResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_operator_config_archive_total",
		Help: "Count of S3 config archive attempts labeled by result.",
	}, []string{"result"})
	operatorClientSyncResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_operator_client_sync_total",
		Help: "Count of client SCRAM and ACL sync attempts labeled by result.",
	}, []string{"result"})
)

func init() {
	ctrlmetrics.Registry.MustRegister(
		operatorClusters,
		operatorClients,
		operatorClusterReady,
		operatorSuperUsers,
		operatorConfigChanges,
		operatorCredentialErrors,
		operatorPublishResults,
		operatorArchiveResults,
		operatorClientSyncResults,
	)
}

func recordClusterCount(ctx context.Context, c client.Client) {
	var clusters kafkav1alpha1.KafkaClusterList
	if err := c.List(ctx, &clusters); err != nil {
		return
	}
	operatorClusters.Set(float64(len(clusters.Items)))
}

func recordClientCount(ctx context.Context, c client.Client) {
	var clients kafkav1alpha1.KafkaClientList
	if err := c.List(ctx, &clients); err != nil {
		return
	}
	operatorClients.Set(float64(len(clients.Items)))
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
