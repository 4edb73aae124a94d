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

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	kafkav1alpha1 "github.com/novatechflow/kafka-operator/api/v1alpha1"
	"github.com/novatechflow/kafka-operator/pkg/credentials"
	"github.com/novatechflow/kafka-operator/pkg/topology"
	"github.com/novatechflow/kafka-operator/pkg/zookeeper"
)

const (
	defaultBrokerImage           = "docker.io/bitnamilegacy/kafka:3.6"
	defaultBrokerImagePullPolicy = string(corev1.PullIfNotPresent)
	defaultLogDataSize           = "10Gi"

	// Install location of the default image.
	defaultKafkaHome = "/opt/bitnami/kafka"
	configVolumeName = "config"
	kafkaOptsKey     = "kafka-opts"
	jaasFileKey      = "kafka-jaas.cfg"
	syncPasswordKey  = "sync-password"
	adminPasswordKey = "admin-password"

	configHashAnnotation = "kafka.novatechflow.com/config-hash"
)

func clusterLabels(cluster *kafkav1alpha1.KafkaCluster) map[string]string {
	return map[string]string{
		"app":     "kafka-broker",
		"cluster": cluster.Name,
	}
}

func brokerStatefulSetName(cluster *kafkav1alpha1.KafkaCluster) string {
	return fmt.Sprintf("%s-broker", cluster.Name)
}

func brokerHeadlessServiceName(cluster *kafkav1alpha1.KafkaCluster) string {
	return fmt.Sprintf("%s-broker-headless", cluster.Name)
}

func brokerServiceName(cluster *kafkav1alpha1.KafkaCluster) string {
	return fmt.Sprintf("%s-broker", cluster.Name)
}

func brokerConfigSecretName(cluster *kafkav1alpha1.KafkaCluster) string {
	return fmt.Sprintf("%s-config", cluster.Name)
}

func jaasSecretName(cluster *kafkav1alpha1.KafkaCluster) string {
	return fmt.Sprintf("%s-jaas", cluster.Name)
}

func internalCredentialsSecretName(cluster *kafkav1alpha1.KafkaCluster) string {
	return fmt.Sprintf("%s-internal-credentials", cluster.Name)
}

func serverPropertiesKey(ordinal int) string {
	return fmt.Sprintf("server-%d.properties", ordinal)
}

func reconcileBrokerHeadlessService(ctx context.Context, c client.Client, scheme *runtime.Scheme, cluster *kafkav1alpha1.KafkaCluster) error {
	svc := &corev1.Service{ObjectMeta: metav1.ObjectMeta{
		Name:      brokerHeadlessServiceName(cluster),
		Namespace: cluster.Namespace,
	}}
	_, err := controllerutil.CreateOrUpdate(ctx, c, svc, func() error {
		labels := clusterLabels(cluster)
		svc.Labels = labels
		svc.Spec.ClusterIP = corev1.ClusterIPNone
		// Brokers must resolve each other before they report ready.
		svc.Spec.PublishNotReadyAddresses = true
		svc.Spec.Selector = labels
		svc.Spec.Ports = []corev1.ServicePort{
			{Name: "internal", Port: topology.InternalPort, TargetPort: intstr.FromInt(topology.InternalPort)},
			{Name: "client", Port: topology.ClientPort, TargetPort: intstr.FromInt(topology.ClientPort)},
		}
		return controllerutil.SetControllerReference(cluster, svc, scheme)
	})
	return err
}

func reconcileBrokerService(ctx context.Context, c client.Client, scheme *runtime.Scheme, cluster *kafkav1alpha1.KafkaCluster) error {
	svc := &corev1.Service{ObjectMeta: metav1.ObjectMeta{
		Name:      brokerServiceName(cluster),
		Namespace: cluster.Namespace,
	}}
	_, err := controllerutil.CreateOrUpdate(ctx, c, svc, func() error {
		labels := clusterLabels(cluster)
		svc.Labels = labels
		svc.Spec.Selector = labels
		svc.Spec.Type = corev1.ServiceTypeClusterIP
		svc.Spec.Ports = []corev1.ServicePort{
			{Name: "client", Port: topology.ClientPort, TargetPort: intstr.FromString("client")},
		}
		return controllerutil.SetControllerReference(cluster, svc, scheme)
	})
	return err
}

// reconcileBrokerConfig writes the rendered properties into a Secret, since
// they carry the inter-broker password, and returns the previously stored data.
func reconcileBrokerConfig(ctx context.Context, c client.Client, scheme *runtime.Scheme, cluster *kafkav1alpha1.KafkaCluster, data map[string]string) (map[string]string, error) {
	secret := &corev1.Secret{ObjectMeta: metav1.ObjectMeta{
		Name:      brokerConfigSecretName(cluster),
		Namespace: cluster.Namespace,
	}}
	var previous map[string]string
	_, err := controllerutil.CreateOrUpdate(ctx, c, secret, func() error {
		previous = make(map[string]string, len(secret.Data))
		for k, v := range secret.Data {
			previous[k] = string(v)
		}
		secret.Labels = clusterLabels(cluster)
		secret.Type = corev1.SecretTypeOpaque
		secret.Data = make(map[string][]byte, len(data))
		for k, v := range data {
			secret.Data[k] = []byte(v)
		}
		return controllerutil.SetControllerReference(cluster, secret, scheme)
	})
	return previous, err
}

func reconcileJAASSecret(ctx context.Context, c client.Client, scheme *runtime.Scheme, cluster *kafkav1alpha1.KafkaCluster, jaas string, creds credentials.Internal) error {
	secret := &corev1.Secret{ObjectMeta: metav1.ObjectMeta{
		Name:      jaasSecretName(cluster),
		Namespace: cluster.Namespace,
	}}
	_, err := controllerutil.CreateOrUpdate(ctx, c, secret, func() error {
		secret.Labels = clusterLabels(cluster)
		secret.Type = corev1.SecretTypeOpaque
		secret.Data = map[string][]byte{
			jaasFileKey:      []byte(jaas),
			syncPasswordKey:  []byte(creds[credentials.InterBrokerUser]),
			adminPasswordKey: []byte(creds[credentials.AdminUser]),
		}
		return controllerutil.SetControllerReference(cluster, secret, scheme)
	})
	return err
}

type brokerWorkload struct {
	Replicas   int32
	ConfigHash string
	ConfigDir  string
	Zookeeper  zookeeper.Config
}

func reconcileBrokerStatefulSet(ctx context.Context, c client.Client, scheme *runtime.Scheme, cluster *kafkav1alpha1.KafkaCluster, w brokerWorkload) error {
	claims, err := logDataClaims(cluster)
	if err != nil {
		return err
	}
	sts := &appsv1.StatefulSet{ObjectMeta: metav1.ObjectMeta{
		Name:      brokerStatefulSetName(cluster),
		Namespace: cluster.Namespace,
	}}
	_, err = controllerutil.CreateOrUpdate(ctx, c, sts, func() error {
		labels := clusterLabels(cluster)
		replicas := w.Replicas
		sts.Labels = labels
		sts.Spec.ServiceName = brokerHeadlessServiceName(cluster)
		sts.Spec.Replicas = &replicas
		sts.Spec.Selector = &metav1.LabelSelector{MatchLabels: labels}
		sts.Spec.PodManagementPolicy = appsv1.ParallelPodManagement
		sts.Spec.Template.ObjectMeta.Labels = labels
		sts.Spec.Template.ObjectMeta.Annotations = map[string]string{configHashAnnotation: w.ConfigHash}
		// Claim templates are immutable once the StatefulSet exists.
		if sts.CreationTimestamp.IsZero() {
			sts.Spec.VolumeClaimTemplates = claims
		}
		sts.Spec.Template.Spec.Volumes = []corev1.Volume{brokerConfigVolume(cluster)}
		sts.Spec.Template.Spec.InitContainers = []corev1.Container{scramBootstrapContainer(cluster, w)}
		sts.Spec.Template.Spec.Containers = []corev1.Container{brokerContainer(cluster, w)}
		return controllerutil.SetControllerReference(cluster, sts, scheme)
	})
	return err
}

func logDataClaims(cluster *kafkav1alpha1.KafkaCluster) ([]corev1.PersistentVolumeClaim, error) {
	if cluster.Spec.Storage.Volumes <= 0 {
		return nil, nil
	}
	size := strings.TrimSpace(cluster.Spec.Storage.Size)
	if size == "" {
		size = defaultLogDataSize
	}
	qty, err := resource.ParseQuantity(size)
	if err != nil {
		return nil, fmt.Errorf("parse storage size %q: %w", size, err)
	}
	claims := make([]corev1.PersistentVolumeClaim, 0, cluster.Spec.Storage.Volumes)
	for v := int32(0); v < cluster.Spec.Storage.Volumes; v++ {
		claims = append(claims, corev1.PersistentVolumeClaim{
			ObjectMeta: metav1.ObjectMeta{Name: logDataVolumeName(v)},
			Spec: corev1.PersistentVolumeClaimSpec{
				AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
				Resources: corev1.VolumeResourceRequirements{
					Requests: corev1.ResourceList{corev1.ResourceStorage: qty},
				},
				StorageClassName: stringPtrOrNil(cluster.Spec.Storage.StorageClassName),
			},
		})
	}
	return claims, nil
}

func brokerConfigVolume(cluster *kafkav1alpha1.KafkaCluster) corev1.Volume {
	return corev1.Volume{
		Name: configVolumeName,
		VolumeSource: corev1.VolumeSource{
			Projected: &corev1.ProjectedVolumeSource{
				Sources: []corev1.VolumeProjection{
					{Secret: &corev1.SecretProjection{
						LocalObjectReference: corev1.LocalObjectReference{Name: brokerConfigSecretName(cluster)},
					}},
					{Secret: &corev1.SecretProjection{
						LocalObjectReference: corev1.LocalObjectReference{Name: jaasSecretName(cluster)},
						Items:                []corev1.KeyToPath{{Key: jaasFileKey, Path: jaasFileKey}},
					}},
				},
			},
		},
	}
}

func brokerVolumeMounts(cluster *kafkav1alpha1.KafkaCluster, configDir string) []corev1.VolumeMount {
	mounts := []corev1.VolumeMount{{Name: configVolumeName, MountPath: configDir, ReadOnly: true}}
	for v := int32(0); v < cluster.Spec.Storage.Volumes; v++ {
		name := logDataVolumeName(v)
		mounts = append(mounts, corev1.VolumeMount{Name: name, MountPath: logDataMountRoot + "/" + name})
	}
	return mounts
}

func brokerEnv(cluster *kafkav1alpha1.KafkaCluster) []corev1.EnvVar {
	return []corev1.EnvVar{
		{Name: "KAFKA_OPTS", ValueFrom: &corev1.EnvVarSource{SecretKeyRef: &corev1.SecretKeySelector{
			LocalObjectReference: corev1.LocalObjectReference{Name: brokerConfigSecretName(cluster)},
			Key:                  kafkaOptsKey,
		}}},
		{Name: "SYNC_PASSWORD", ValueFrom: &corev1.EnvVarSource{SecretKeyRef: &corev1.SecretKeySelector{
			LocalObjectReference: corev1.LocalObjectReference{Name: jaasSecretName(cluster)},
			Key:                  syncPasswordKey,
		}}},
		{Name: "ADMIN_PASSWORD", ValueFrom: &corev1.EnvVarSource{SecretKeyRef: &corev1.SecretKeySelector{
			LocalObjectReference: corev1.LocalObjectReference{Name: jaasSecretName(cluster)},
			Key:                  adminPasswordKey,
		}}},
	}
}

// scramBootstrapContainer registers the internal SCRAM users in ZooKeeper
// before the broker starts, since inter-broker auth needs them.
func scramBootstrapContainer(cluster *kafkav1alpha1.KafkaCluster, w brokerWorkload) corev1.Container {
	script := "set -e\n"
	for _, user := range []struct{ name, env string }{
		{credentials.InterBrokerUser, "SYNC_PASSWORD"},
		{credentials.AdminUser, "ADMIN_PASSWORD"},
	} {
		script += fmt.Sprintf("%s/bin/kafka-configs.sh --zookeeper %q --alter --entity-type users --entity-name %s --add-config \"SCRAM-SHA-512=[password=${%s}]\"\n",
			brokerHome(), w.Zookeeper.Connect(), user.name, user.env)
	}
	return corev1.Container{
		Name:            "scram-bootstrap",
		Image:           brokerImage(cluster),
		ImagePullPolicy: parsePullPolicy(getEnv(operatorBrokerPullPolicyEnv, defaultBrokerImagePullPolicy)),
		Command:         []string{"/bin/sh", "-c", script},
		Env:             brokerEnv(cluster),
		VolumeMounts:    []corev1.VolumeMount{{Name: configVolumeName, MountPath: w.ConfigDir, ReadOnly: true}},
	}
}

func brokerContainer(cluster *kafkav1alpha1.KafkaCluster, w brokerWorkload) corev1.Container {
	start := fmt.Sprintf("exec %s/bin/kafka-server-start.sh %s/server-${HOSTNAME##*-}.properties", brokerHome(), w.ConfigDir)
	return corev1.Container{
		Name:            "broker",
		Image:           brokerImage(cluster),
		ImagePullPolicy: parsePullPolicy(getEnv(operatorBrokerPullPolicyEnv, defaultBrokerImagePullPolicy)),
		Command:         []string{"/bin/sh", "-c", start},
		Ports: []corev1.ContainerPort{
			{Name: "internal", ContainerPort: topology.InternalPort},
			{Name: "client", ContainerPort: topology.ClientPort},
		},
		Env:          brokerEnv(cluster),
		VolumeMounts: brokerVolumeMounts(cluster, w.ConfigDir),
		Resources: corev1.ResourceRequirements{
			Requests: cloneResourceList(cluster.Spec.Resources.Requests),
			Limits:   cloneResourceList(cluster.Spec.Resources.Limits),
		},
		ReadinessProbe: &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				TCPSocket: &corev1.TCPSocketAction{Port: intstr.FromString("internal")},
			},
			InitialDelaySeconds: 10,
			PeriodSeconds:       10,
		},
	}
}

func brokerImage(cluster *kafkav1alpha1.KafkaCluster) string {
	if image := strings.TrimSpace(cluster.Spec.Image); image != "" {
		return image
	}
	return getEnv(operatorBrokerImageEnv, defaultBrokerImage)
}

// brokerHome is the Kafka install directory inside the broker image.
func brokerHome() string {
	return strings.TrimSuffix(getEnv(operatorBrokerHomeEnv, defaultKafkaHome), "/")
}

func parsePullPolicy(policy string) corev1.PullPolicy {
	switch strings.TrimSpace(policy) {
	case string(corev1.PullAlways):
		return corev1.PullAlways
	case string(corev1.PullNever):
		return corev1.PullNever
	default:
		return corev1.PullIfNotPresent
	}
}

func cloneResourceList(in corev1.ResourceList) corev1.ResourceList {
	if len(in) == 0 {
		return nil
	}
	out := corev1.ResourceList{}
	for k, v := range in {
		out[k] = v.DeepCopy()
	}
	return out
}

func stringPtrOrNil(val string) *string {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	return &val
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
