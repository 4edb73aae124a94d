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
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	meta "k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	kafkav1alpha1 "github.com/novatechflow/kafka-operator/api/v1alpha1"
	"github.com/novatechflow/kafka-operator/pkg/credentials"
	"github.com/novatechflow/kafka-operator/pkg/kafkaconfig"
	"github.com/novatechflow/kafka-operator/pkg/zookeeper"
)

// Condition types reported on KafkaCluster.
const (
	ConditionConfigValid        = "ConfigValid"
	ConditionZookeeperConnected = "ZookeeperConnected"
	ConditionCredentialsReady   = "CredentialsReady"
	ConditionReady              = "Ready"
)

const credentialLostRequeue = 30 * time.Second

// ClusterReconciler renders broker configuration for every KafkaCluster and
// rolls it out as a config Secret, a JAAS Secret and a StatefulSet.
type ClusterReconciler struct {
	Client      client.Client
	Scheme      *runtime.Scheme
	Defaults    kafkaconfig.Options
	Credentials *CredentialRegistry
	Publisher   *ConfigPublisher
	Archiver    *ConfigArchiver
}

func NewClusterReconciler(mgr ctrl.Manager, defaults kafkaconfig.Options, creds *CredentialRegistry, publisher *ConfigPublisher, archiver *ConfigArchiver) *ClusterReconciler {
	return &ClusterReconciler{
		Client:      mgr.GetClient(),
		Scheme:      mgr.GetScheme(),
		Defaults:    defaults,
		Credentials: creds,
		Publisher:   publisher,
		Archiver:    archiver,
	}
}

// clusterRender is the output of one synthesis pass over a cluster.
type clusterRender struct {
	View  *kafkaconfig.Config
	Units []*kafkaconfig.Config
	Files map[string]string
	JAAS  string
	Hash  string
}

// Reconcile renders and applies the broker configuration of one cluster.
func (r *ClusterReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := ctrl.LoggerFrom(ctx)
	var cluster kafkav1alpha1.KafkaCluster
	if err := r.Client.Get(ctx, req.NamespacedName, &cluster); err != nil {
		if apierrors.IsNotFound(err) {
			r.forget(ctx, req.NamespacedName)
		}
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}
	if !cluster.DeletionTimestamp.IsZero() {
		return ctrl.Result{}, nil
	}

	opts, err := clusterOptions(r.Defaults, &cluster)
	if err != nil {
		setCondition(&cluster, ConditionConfigValid, false, "InvalidConfig", err.Error())
		setCondition(&cluster, ConditionReady, false, "InvalidConfig", "Broker configuration is invalid.")
		cluster.Status.Phase = "InvalidConfig"
		return ctrl.Result{}, r.updateStatus(ctx, &cluster)
	}
	setCondition(&cluster, ConditionConfigValid, true, "Valid", "Broker configuration is valid.")

	if err := reconcileBrokerHeadlessService(ctx, r.Client, r.Scheme, &cluster); err != nil {
		return ctrl.Result{}, err
	}
	if err := reconcileBrokerService(ctx, r.Client, r.Scheme, &cluster); err != nil {
		return ctrl.Result{}, err
	}

	provider, err := r.Credentials.For(&cluster)
	if err != nil {
		operatorCredentialErrors.WithLabelValues("store").Inc()
		return ctrl.Result{}, err
	}
	creds, err := provider.Internal(ctx)
	if err != nil {
		if errors.Is(err, credentials.ErrCredentialLost) {
			operatorCredentialErrors.WithLabelValues("lost").Inc()
			logger.Error(err, "internal credential lost")
			setCondition(&cluster, ConditionCredentialsReady, false, "CredentialLost", err.Error())
			setCondition(&cluster, ConditionReady, false, "CredentialLost", "Internal credentials must be restored.")
			cluster.Status.Phase = "CredentialLost"
			if err := r.updateStatus(ctx, &cluster); err != nil {
				return ctrl.Result{}, err
			}
			return ctrl.Result{RequeueAfter: credentialLostRequeue}, nil
		}
		operatorCredentialErrors.WithLabelValues("store").Inc()
		return ctrl.Result{}, err
	}

	state, err := r.loadState(ctx, &cluster, provider.Store())
	if err != nil {
		return ctrl.Result{}, err
	}
	render := renderCluster(opts, &cluster, state, creds)

	previous, err := reconcileBrokerConfig(ctx, r.Client, r.Scheme, &cluster, render.Files)
	if err != nil {
		return ctrl.Result{}, err
	}
	r.logChanges(ctx, &cluster, previous, render)
	if err := reconcileJAASSecret(ctx, r.Client, r.Scheme, &cluster, render.JAAS, creds); err != nil {
		return ctrl.Result{}, err
	}

	zkConnected := render.View.ZookeeperConnected()
	credsReady := render.View.CredentialsReady()
	if zkConnected {
		setCondition(&cluster, ConditionZookeeperConnected, true, "Connected", "Coordination service relation is complete.")
	} else {
		setCondition(&cluster, ConditionZookeeperConnected, false, "WaitingForZookeeper", "Coordination service data is missing or incomplete.")
	}
	if credsReady {
		setCondition(&cluster, ConditionCredentialsReady, true, "Ready", "Internal credentials are provisioned.")
	} else {
		setCondition(&cluster, ConditionCredentialsReady, false, "Pending", "Internal credentials are not provisioned yet.")
	}

	if zkConnected && credsReady {
		workload := brokerWorkload{
			Replicas:   brokerReplicas(&cluster),
			ConfigHash: render.Hash,
			ConfigDir:  opts.ConfigDir,
			Zookeeper:  zookeeper.Parse(state.Zookeeper),
		}
		if err := reconcileBrokerStatefulSet(ctx, r.Client, r.Scheme, &cluster, workload); err != nil {
			return ctrl.Result{}, err
		}
		setCondition(&cluster, ConditionReady, true, "Reconciled", "Broker configuration applied.")
		cluster.Status.Phase = "Ready"
	} else if !zkConnected {
		setCondition(&cluster, ConditionReady, false, "WaitingForZookeeper", "Brokers start once the coordination service is connected.")
		cluster.Status.Phase = "WaitingForZookeeper"
	} else {
		setCondition(&cluster, ConditionReady, false, "WaitingForCredentials", "Brokers start once internal credentials exist.")
		cluster.Status.Phase = "WaitingForCredentials"
	}

	var syncErrs []error
	if r.Publisher != nil {
		if err := r.Publisher.Publish(ctx, &cluster, unitRenders(&cluster, render)); err != nil {
			logger.Error(err, "publish broker configuration")
			syncErrs = append(syncErrs, fmt.Errorf("publish config: %w", err))
		}
	}
	hash := render.Hash
	if r.Archiver != nil && render.Hash != cluster.Status.ConfigHash {
		if err := r.Archiver.Archive(ctx, &cluster, render.Hash, redactedFiles(render.Files)); err != nil {
			logger.Error(err, "archive broker configuration")
			syncErrs = append(syncErrs, fmt.Errorf("archive config: %w", err))
			hash = cluster.Status.ConfigHash
		}
	}

	superUsers := render.View.SuperUsers()
	cluster.Status.BootstrapServers = render.View.BootstrapServers()
	cluster.Status.SuperUsers = superUsers
	cluster.Status.ConfigHash = hash
	clusterKey := req.NamespacedName.String()
	operatorClusterReady.WithLabelValues(clusterKey).Set(boolGauge(zkConnected && credsReady))
	operatorSuperUsers.WithLabelValues(clusterKey).Set(float64(len(superUsers)))
	if err := r.updateStatus(ctx, &cluster); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{}, errors.Join(syncErrs...)
}

func (r *ClusterReconciler) loadState(ctx context.Context, cluster *kafkav1alpha1.KafkaCluster, store credentials.Store) (ClusterState, error) {
	peer, err := syncPeerData(ctx, store, cluster.Spec.ExtraSuperUsers)
	if err != nil {
		operatorCredentialErrors.WithLabelValues("store").Inc()
		return ClusterState{}, err
	}
	zk, err := loadZookeeperBag(ctx, r.Client, cluster)
	if err != nil {
		return ClusterState{}, err
	}
	clients, err := listClusterClients(ctx, r.Client, cluster)
	if err != nil {
		return ClusterState{}, err
	}
	return ClusterState{Zookeeper: zk, PeerData: peer, Clients: clients}, nil
}

func (r *ClusterReconciler) logChanges(ctx context.Context, cluster *kafkav1alpha1.KafkaCluster, previous map[string]string, render clusterRender) {
	logger := ctrl.LoggerFrom(ctx)
	changed := false
	for _, key := range sortedKeys(render.Files) {
		if !strings.HasSuffix(key, ".properties") {
			continue
		}
		diff := kafkaconfig.DiffProperties(kafkaconfig.ParseProperties(previous[key]), kafkaconfig.ParseProperties(render.Files[key]))
		if diff.Empty() {
			continue
		}
		changed = true
		redacted := diff.Redacted()
		logger.Info("broker configuration changed", "file", key, "added", redacted.Added, "removed", redacted.Removed)
	}
	if changed {
		operatorConfigChanges.WithLabelValues(cluster.Namespace + "/" + cluster.Name).Inc()
	}
}

func (r *ClusterReconciler) forget(ctx context.Context, key types.NamespacedName) {
	r.Credentials.Release(key)
	operatorClusterReady.DeleteLabelValues(key.String())
	operatorSuperUsers.DeleteLabelValues(key.String())
	recordClusterCount(ctx, r.Client)
}

func (r *ClusterReconciler) updateStatus(ctx context.Context, cluster *kafkav1alpha1.KafkaCluster) error {
	if err := r.Client.Status().Update(ctx, cluster); err != nil && !apierrors.IsNotFound(err) {
		return err
	}
	recordClusterCount(ctx, r.Client)
	return nil
}

func (r *ClusterReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&kafkav1alpha1.KafkaCluster{}).
		Owns(&appsv1.StatefulSet{}).
		Owns(&corev1.Service{}).
		Owns(&corev1.Secret{}).
		Watches(&kafkav1alpha1.KafkaClient{}, handler.EnqueueRequestsFromMapFunc(r.clusterForClient)).
		Watches(&corev1.Secret{}, handler.EnqueueRequestsFromMapFunc(r.clustersForSecret)).
		Complete(r)
}

func (r *ClusterReconciler) clusterForClient(_ context.Context, obj client.Object) []reconcile.Request {
	kc, ok := obj.(*kafkav1alpha1.KafkaClient)
	if !ok || kc.Spec.ClusterRef == "" {
		return nil
	}
	return []reconcile.Request{{NamespacedName: types.NamespacedName{Namespace: kc.Namespace, Name: kc.Spec.ClusterRef}}}
}

// clustersForSecret maps coordination service Secrets to the clusters that
// reference them.
func (r *ClusterReconciler) clustersForSecret(ctx context.Context, obj client.Object) []reconcile.Request {
	var clusters kafkav1alpha1.KafkaClusterList
	if err := r.Client.List(ctx, &clusters, client.InNamespace(obj.GetNamespace())); err != nil {
		return nil
	}
	var out []reconcile.Request
	for _, cluster := range clusters.Items {
		if cluster.Spec.Zookeeper.SecretRef != obj.GetName() {
			continue
		}
		out = append(out, reconcile.Request{NamespacedName: types.NamespacedName{Namespace: cluster.Namespace, Name: cluster.Name}})
	}
	return out
}

// clusterOptions overlays the CRD knobs on the operator defaults.
func clusterOptions(defaults kafkaconfig.Options, cluster *kafkav1alpha1.KafkaCluster) (kafkaconfig.Options, error) {
	opts := defaults
	cfg := cluster.Spec.Config
	if cfg.LogRetentionMs != nil {
		opts.LogRetentionMs = *cfg.LogRetentionMs
	}
	if cfg.LogRetentionBytes != nil {
		opts.LogRetentionBytes = *cfg.LogRetentionBytes
	}
	if cfg.CompressionType != "" {
		opts.CompressionType = cfg.CompressionType
	}
	if cfg.OffsetsRetentionMinutes != nil {
		opts.OffsetsRetentionMinutes = int(*cfg.OffsetsRetentionMinutes)
	}
	if cfg.AutoCreateTopics {
		opts.AutoCreateTopics = true
	}
	if len(cfg.ExtraProperties) > 0 {
		extra := make(map[string]string, len(opts.ExtraProperties)+len(cfg.ExtraProperties))
		for k, v := range opts.ExtraProperties {
			extra[k] = v
		}
		for k, v := range cfg.ExtraProperties {
			extra[k] = v
		}
		opts.ExtraProperties = extra
	}
	if err := opts.Validate(); err != nil {
		return kafkaconfig.Options{}, err
	}
	if err := validateExtraSuperUsers(cluster.Spec.ExtraSuperUsers); err != nil {
		return kafkaconfig.Options{}, err
	}
	return opts, nil
}

// renderCluster synthesizes the configuration of every unit plus the
// cluster-wide view used for status and the JAAS file.
func renderCluster(opts kafkaconfig.Options, cluster *kafkav1alpha1.KafkaCluster, state ClusterState, creds credentials.Internal) clusterRender {
	planned := int(brokerReplicas(cluster))
	view := kafkaconfig.FromSnapshot(opts, BuildSnapshot(cluster, state), creds, planned)
	render := clusterRender{
		View:  view,
		Files: map[string]string{kafkaOptsKey: view.KafkaOpts()},
		JAAS:  view.JAASConfig(),
	}
	for i, snap := range BuildUnitSnapshots(cluster, state) {
		unit := kafkaconfig.FromSnapshot(opts, snap, creds, planned)
		render.Units = append(render.Units, unit)
		render.Files[serverPropertiesKey(i)] = unit.Render()
	}
	render.Hash = configHash(render.Files, render.JAAS)
	return render
}

// unitRenders keys each unit's redacted properties by its pod name for
// publishing outside the cluster.
func unitRenders(cluster *kafkav1alpha1.KafkaCluster, render clusterRender) map[string]string {
	out := make(map[string]string, len(render.Units))
	for i, unit := range render.Units {
		out[fmt.Sprintf("%s-%d", brokerStatefulSetName(cluster), i)] = kafkaconfig.RedactProperties(unit.Render())
	}
	return out
}

func redactedFiles(files map[string]string) map[string]string {
	out := make(map[string]string, len(files))
	for k, v := range files {
		out[k] = kafkaconfig.RedactProperties(v)
	}
	return out
}

func configHash(files map[string]string, jaas string) string {
	h := sha256.New()
	for _, key := range sortedKeys(files) {
		fmt.Fprintf(h, "%s\x00%s\x00", key, files[key])
	}
	h.Write([]byte(jaas))
	return hex.EncodeToString(h.Sum(nil))
}

func setCondition(cluster *kafkav1alpha1.KafkaCluster, conditionType string, ok bool, reason, message string) {
	status := metav1.ConditionFalse
	if ok {
		status = metav1.ConditionTrue
	}
	meta.SetStatusCondition(&cluster.Status.Conditions, metav1.Condition{
		Type:               conditionType,
		Status:             status,
		Reason:             reason,
		Message:            message,
		ObservedGeneration: cluster.Generation,
		LastTransitionTime: metav1.NewTime(time.Now()),
	})
}
