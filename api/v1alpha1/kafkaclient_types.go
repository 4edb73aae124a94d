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
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// KafkaClientSpec is a client application's request for access to a cluster.
type KafkaClientSpec struct {
	ClusterRef string `json:"clusterRef"`
	// ExtraUserRoles is a comma-separated list of admin, producer and consumer.
	ExtraUserRoles      string `json:"extraUserRoles,omitempty"`
	Topic               string `json:"topic,omitempty"`
	ConsumerGroupPrefix string `json:"consumerGroupPrefix,omitempty"`
}

// KafkaClientStatus surfaces the provisioned identity.
type KafkaClientStatus struct {
	Phase      string             `json:"phase,omitempty"`
	Conditions []metav1.Condition `json:"conditions,omitempty"`
	Username   string             `json:"username,omitempty"`
	SecretName string             `json:"secretName,omitempty"`
}

//+kubebuilder:object:root=true
//+kubebuilder:subresource:status

// KafkaClient grants an application SCRAM credentials and ACLs on a cluster.
type KafkaClient struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   KafkaClientSpec   `json:"spec,omitempty"`
	Status KafkaClientStatus `json:"status,omitempty"`
}

//+kubebuilder:object:root=true

// KafkaClientList contains multiple clients.
type KafkaClientList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []KafkaClient `json:"items"`
}

func init() {
	SchemeBuilder.Register(&KafkaClient{}, &KafkaClientList{})
}

func (in *KafkaClientStatus) DeepCopyInto(out *KafkaClientStatus) {
	*out = *in
	if in.Conditions != nil {
		out.Conditions = make([]metav1.Condition, len(in.Conditions))
		for i := range in.Conditions {
			in.Conditions[i].DeepCopyInto(&out.Conditions[i])
		}
	}
}

func (in *KafkaClientStatus) DeepCopy() *KafkaClientStatus {
	if in == nil {
		return nil
	}
	out := new(KafkaClientStatus)
	in.DeepCopyInto(out)
	return out
}

func (in *KafkaClient) DeepCopyInto(out *KafkaClient) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	out.Spec = in.Spec
	in.Status.DeepCopyInto(&out.Status)
}

func (in *KafkaClient) DeepCopy() *KafkaClient {
	if in == nil {
		return nil
	}
	out := new(KafkaClient)
	in.DeepCopyInto(out)
	return out
}

func (in *KafkaClient) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

func (in *KafkaClientList) DeepCopyInto(out *KafkaClientList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]KafkaClient, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

func (in *KafkaClientList) DeepCopy() *KafkaClientList {
	if in == nil {
		return nil
	}
	out := new(KafkaClientList)
	in.DeepCopyInto(out)
	return out
}

func (in *KafkaClientList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}
