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

package v1alpha1

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// Credential store backends.
const (
	CredentialStoreSecret = "secret"
	CredentialStoreEtcd   = "etcd"
)

// KafkaClusterSpec defines the desired state of a ZooKeeper-backed Kafka cluster.
type KafkaClusterSpec struct {
	Replicas        *int32              `json:"replicas,omitempty"`
	Image           string              `json:"image,omitempty"`
	Resources       BrokerResources     `json:"resources,omitempty"`
	Storage         StorageSpec         `json:"storage,omitempty"`
	Zookeeper       ZookeeperSpec       `json:"zookeeper"`
	Config          ClusterConfigSpec   `json:"config,omitempty"`
	ExtraSuperUsers []string            `json:"extraSuperUsers,omitempty"`
	CredentialStore CredentialStoreSpec `json:"credentialStore,omitempty"`
	Publish         *EtcdSpec           `json:"publish,omitempty"`
	Archive         *S3Spec             `json:"archive,omitempty"`
}

type BrokerResources struct {
	Requests corev1.ResourceList `json:"requests,omitempty"`
	Limits   corev1.ResourceList `json:"limits,omitempty"`
}

// StorageSpec describes the log-data volumes attached to every broker.
type StorageSpec struct {
	Volumes          int32  `json:"volumes,omitempty"`
	Size             string `json:"size,omitempty"`
	StorageClassName string `json:"storageClassName,omitempty"`
}

// ZookeeperSpec points at the Secret holding the coordination service relation
// data (chroot, username, password, endpoints, uris, tls).
type ZookeeperSpec struct {
	SecretRef string `json:"secretRef"`
}

// ClusterConfigSpec carries the operator knobs rendered into server.properties.
type ClusterConfigSpec struct {
	LogRetentionMs          *int64            `json:"logRetentionMs,omitempty"`
	LogRetentionBytes       *int64            `json:"logRetentionBytes,omitempty"`
	CompressionType         string            `json:"compressionType,omitempty"`
	OffsetsRetentionMinutes *int32            `json:"offsetsRetentionMinutes,omitempty"`
	AutoCreateTopics        bool              `json:"autoCreateTopics,omitempty"`
	ExtraProperties         map[string]string `json:"extraProperties,omitempty"`
}

type CredentialStoreSpec struct {
	Backend string   `json:"backend,omitempty"`
	Etcd    EtcdSpec `json:"etcd,omitempty"`
}

type EtcdSpec struct {
	Endpoints []string `json:"endpoints"`
	Prefix    string   `json:"prefix,omitempty"`
}

type S3Spec struct {
	Bucket               string `json:"bucket"`
	Region               string `json:"region"`
	Endpoint             string `json:"endpoint,omitempty"`
	Prefix               string `json:"prefix,omitempty"`
	CredentialsSecretRef string `json:"credentialsSecretRef,omitempty"`
}

// KafkaClusterStatus captures observed state.
type KafkaClusterStatus struct {
	Phase            string             `json:"phase,omitempty"`
	Conditions       []metav1.Condition `json:"conditions,omitempty"`
	BootstrapServers []string           `json:"bootstrapServers,omitempty"`
	SuperUsers       []string           `json:"superUsers,omitempty"`
	ConfigHash       string             `json:"configHash,omitempty"`
}

//+kubebuilder:object:root=true
//+kubebuilder:subresource:status

// KafkaCluster is the Schema for the kafkaclusters API.
type KafkaCluster struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   KafkaClusterSpec   `json:"spec,omitempty"`
	Status KafkaClusterStatus `json:"status,omitempty"`
}

//+kubebuilder:object:root=true

// KafkaClusterList contains a list of KafkaCluster.
type KafkaClusterList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []KafkaCluster `json:"items"`
}

func init() {
	SchemeBuilder.Register(&KafkaCluster{}, &KafkaClusterList{})
}

func (in *BrokerResources) DeepCopyInto(out *BrokerResources) {
	*out = *in
	if in.Requests != nil {
		out.Requests = make(corev1.ResourceList, len(in.Requests))
		for key, val := range in.Requests {
			out.Requests[key] = val.DeepCopy()
		}
	}
	if in.Limits != nil {
		out.Limits = make(corev1.ResourceList, len(in.Limits))
		for key, val := range in.Limits {
			out.Limits[key] = val.DeepCopy()
		}
	}
}

func (in *BrokerResources) DeepCopy() *BrokerResources {
	if in == nil {
		return nil
	}
	out := new(BrokerResources)
	in.DeepCopyInto(out)
	return out
}

func (in *ClusterConfigSpec) DeepCopyInto(out *ClusterConfigSpec) {
	*out = *in
	if in.LogRetentionMs != nil {
		out.LogRetentionMs = new(int64)
		*out.LogRetentionMs = *in.LogRetentionMs
	}
	if in.LogRetentionBytes != nil {
		out.LogRetentionBytes = new(int64)
		*out.LogRetentionBytes = *in.LogRetentionBytes
	}
	if in.OffsetsRetentionMinutes != nil {
		out.OffsetsRetentionMinutes = new(int32)
		*out.OffsetsRetentionMinutes = *in.OffsetsRetentionMinutes
	}
	if in.ExtraProperties != nil {
		out.ExtraProperties = make(map[string]string, len(in.ExtraProperties))
		for key, val := range in.ExtraProperties {
			out.ExtraProperties[key] = val
		}
	}
}

func (in *ClusterConfigSpec) DeepCopy() *ClusterConfigSpec {
	if in == nil {
		return nil
	}
	out := new(ClusterConfigSpec)
	in.DeepCopyInto(out)
	return out
}

func (in *EtcdSpec) DeepCopyInto(out *EtcdSpec) {
	*out = *in
	if in.Endpoints != nil {
		out.Endpoints = append([]string(nil), in.Endpoints...)
	}
}

func (in *EtcdSpec) DeepCopy() *EtcdSpec {
	if in == nil {
		return nil
	}
	out := new(EtcdSpec)
	in.DeepCopyInto(out)
	return out
}

func (in *KafkaClusterSpec) DeepCopyInto(out *KafkaClusterSpec) {
	*out = *in
	if in.Replicas != nil {
		out.Replicas = new(int32)
		*out.Replicas = *in.Replicas
	}
	in.Resources.DeepCopyInto(&out.Resources)
	in.Config.DeepCopyInto(&out.Config)
	if in.ExtraSuperUsers != nil {
		out.ExtraSuperUsers = append([]string(nil), in.ExtraSuperUsers...)
	}
	in.CredentialStore.Etcd.DeepCopyInto(&out.CredentialStore.Etcd)
	if in.Publish != nil {
		out.Publish = in.Publish.DeepCopy()
	}
	if in.Archive != nil {
		out.Archive = new(S3Spec)
		*out.Archive = *in.Archive
	}
}

func (in *KafkaClusterSpec) DeepCopy() *KafkaClusterSpec {
	if in == nil {
		return nil
	}
	out := new(KafkaClusterSpec)
	in.DeepCopyInto(out)
	return out
}

func (in *KafkaClusterStatus) DeepCopyInto(out *KafkaClusterStatus) {
	*out = *in
	if in.Conditions != nil {
		out.Conditions = make([]metav1.Condition, len(in.Conditions))
		for i := range in.Conditions {
			in.Conditions[i].DeepCopyInto(&out.Conditions[i])
		}
	}
	if in.BootstrapServers != nil {
		out.BootstrapServers = append([]string(nil), in.BootstrapServers...)
	}
	if in.SuperUsers != nil {
		out.SuperUsers = append([]string(nil), in.SuperUsers...)
	}
}

func (in *KafkaClusterStatus) DeepCopy() *KafkaClusterStatus {
	if in == nil {
		return nil
	}
	out := new(KafkaClusterStatus)
	in.DeepCopyInto(out)
	return out
}

func (in *KafkaCluster) DeepCopyInto(out *KafkaCluster) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
	in.Status.DeepCopyInto(&out.Status)
}

func (in *KafkaCluster) DeepCopy() *KafkaCluster {
	if in == nil {
		return nil
	}
	out := new(KafkaCluster)
	in.DeepCopyInto(out)
	return out
}

func (in *KafkaCluster) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

func (in *KafkaClusterList) DeepCopyInto(out *KafkaClusterList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]KafkaCluster, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

func (in *KafkaClusterList) DeepCopy() *KafkaClusterList {
	if in == nil {
		return nil
	}
	out := new(KafkaClusterList)
	in.DeepCopyInto(out)
	return out
}

func (in *KafkaClusterList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}
