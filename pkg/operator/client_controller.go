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
	"log/slog"
	"net"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	meta "k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	kafkav1alpha1 "github.com/novatechflow/kafka-operator/api/v1alpha1"
	"github.com/novatechflow/kafka-operator/pkg/access"
	"github.com/novatechflow/kafka-operator/pkg/credentials"
	"github.com/novatechflow/kafka-operator/pkg/relation"
	"github.com/novatechflow/kafka-operator/pkg/zookeeper"
)

const clientFinalizer = "kafka.novatechflow.com/client-access"

// ClientAdmin applies a client's SCRAM user and ACLs on a running cluster.
type ClientAdmin interface {
	SyncClient(ctx context.Context, grant relation.ClientGrant, password string) error
	RemoveClient(ctx context.Context, grant relation.ClientGrant) error
}

// AdminFactory opens an admin session against cluster as the internal admin user.
type AdminFactory func(ctx context.Context, cluster *kafkav1alpha1.KafkaCluster, adminPassword string) (ClientAdmin, func(), error)

// ClientReconciler provisions credentials and ACLs for KafkaClient resources.
type ClientReconciler struct {
	Client      client.Client
	Scheme      *runtime.Scheme
	Credentials *CredentialRegistry
	NewAdmin    AdminFactory
}

func NewClientReconciler(mgr ctrl.Manager, creds *CredentialRegistry) *ClientReconciler {
	return &ClientReconciler{
		Client:      mgr.GetClient(),
		Scheme:      mgr.GetScheme(),
		Credentials: creds,
		NewAdmin:    dialClusterAdmin,
	}
}

func dialClusterAdmin(_ context.Context, cluster *kafkav1alpha1.KafkaCluster, adminPassword string) (ClientAdmin, func(), error) {
	logger := slog.Default().With("cluster", cluster.Namespace+"/"+cluster.Name)
	admin, closeFn, err := access.NewAdminClient(access.AdminClientConfig{
		Brokers:     cluster.Status.BootstrapServers,
		Username:    credentials.AdminUser,
		Password:    adminPassword,
		DialTimeout: 10 * time.Second,
	}, access.WithAdminLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return admin, closeFn, nil
}

func clientSecretName(kc *kafkav1alpha1.KafkaClient) string {
	return fmt.Sprintf("%s-kafka-credentials", kc.Name)
}

func (r *ClientReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := ctrl.LoggerFrom(ctx)
	var kc kafkav1alpha1.KafkaClient
	if err := r.Client.Get(ctx, req.NamespacedName, &kc); err != nil {
		if apierrors.IsNotFound(err) {
			recordClientCount(ctx, r.Client)
		}
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}

	var cluster kafkav1alpha1.KafkaCluster
	clusterErr := r.Client.Get(ctx, types.NamespacedName{Namespace: kc.Namespace, Name: kc.Spec.ClusterRef}, &cluster)
	if clusterErr != nil && !apierrors.IsNotFound(clusterErr) {
		return ctrl.Result{}, clusterErr
	}
	clusterFound := clusterErr == nil

	if !kc.DeletionTimestamp.IsZero() {
		if !controllerutil.ContainsFinalizer(&kc, clientFinalizer) {
			return ctrl.Result{}, nil
		}
		if clusterFound {
			if err := r.revoke(ctx, &cluster, &kc); err != nil {
				return ctrl.Result{}, err
			}
		}
		controllerutil.RemoveFinalizer(&kc, clientFinalizer)
		if err := r.Client.Update(ctx, &kc); err != nil {
			return ctrl.Result{}, client.IgnoreNotFound(err)
		}
		recordClientCount(ctx, r.Client)
		return ctrl.Result{}, nil
	}

	if !controllerutil.ContainsFinalizer(&kc, clientFinalizer) {
		controllerutil.AddFinalizer(&kc, clientFinalizer)
		if err := r.Client.Update(ctx, &kc); err != nil {
			return ctrl.Result{}, err
		}
	}
	recordClientCount(ctx, r.Client)

	if !clusterFound {
		r.setClientCondition(&kc, false, "ClusterNotFound", fmt.Sprintf("KafkaCluster %s does not exist.", kc.Spec.ClusterRef))
		return ctrl.Result{RequeueAfter: clientRequeueDelay()}, r.updateStatus(ctx, &kc)
	}
	if !meta.IsStatusConditionTrue(cluster.Status.Conditions, ConditionReady) || len(cluster.Status.BootstrapServers) == 0 {
		r.setClientCondition(&kc, false, "WaitingForCluster", "Cluster is not ready to accept clients.")
		return ctrl.Result{RequeueAfter: clientRequeueDelay()}, r.updateStatus(ctx, &kc)
	}

	grant := clientGrant(kc)
	provider, err := r.Credentials.For(&cluster)
	if err != nil {
		operatorCredentialErrors.WithLabelValues("store").Inc()
		return ctrl.Result{}, err
	}
	password, err := provider.GetOrCreate(ctx, grant.Username())
	if err != nil {
		operatorCredentialErrors.WithLabelValues("store").Inc()
		return ctrl.Result{}, err
	}
	internal, err := provider.Internal(ctx)
	if err != nil {
		operatorCredentialErrors.WithLabelValues("store").Inc()
		return ctrl.Result{}, err
	}

	if err := r.syncAccess(ctx, &cluster, internal, grant, password); err != nil {
		logger.Error(err, "sync client access", "username", grant.Username())
		r.setClientCondition(&kc, false, "SyncFailed", err.Error())
		if statusErr := r.updateStatus(ctx, &kc); statusErr != nil {
			return ctrl.Result{}, statusErr
		}
		return ctrl.Result{RequeueAfter: clientRequeueDelay()}, nil
	}

	zkBag, err := loadZookeeperBag(ctx, r.Client, &cluster)
	if err != nil {
		return ctrl.Result{}, err
	}
	if err := r.reconcileClientSecret(ctx, &kc, &cluster, grant, password, zookeeper.Parse(zkBag)); err != nil {
		return ctrl.Result{}, err
	}

	kc.Status.Username = grant.Username()
	kc.Status.SecretName = clientSecretName(&kc)
	r.setClientCondition(&kc, true, "Provisioned", "Client credentials and ACLs are in place.")
	return ctrl.Result{}, r.updateStatus(ctx, &kc)
}

func (r *ClientReconciler) syncAccess(ctx context.Context, cluster *kafkav1alpha1.KafkaCluster, internal credentials.Internal, grant relation.ClientGrant, password string) error {
	admin, closeFn, err := r.NewAdmin(ctx, cluster, internal[credentials.AdminUser])
	if err != nil {
		operatorClientSyncResults.WithLabelValues("error").Inc()
		return err
	}
	defer closeFn()
	if err := admin.SyncClient(ctx, grant, password); err != nil {
		operatorClientSyncResults.WithLabelValues("error").Inc()
		return err
	}
	operatorClientSyncResults.WithLabelValues("success").Inc()
	return nil
}

// revoke removes the client's user, ACLs and stored password. A cluster that
// never became ready has nothing to revoke on the brokers.
func (r *ClientReconciler) revoke(ctx context.Context, cluster *kafkav1alpha1.KafkaCluster, kc *kafkav1alpha1.KafkaClient) error {
	grant := clientGrant(*kc)
	provider, err := r.Credentials.For(cluster)
	if err != nil {
		return err
	}
	if meta.IsStatusConditionTrue(cluster.Status.Conditions, ConditionReady) && len(cluster.Status.BootstrapServers) > 0 {
		internal, err := provider.Internal(ctx)
		if err != nil {
			return err
		}
		admin, closeFn, err := r.NewAdmin(ctx, cluster, internal[credentials.AdminUser])
		if err != nil {
			return err
		}
		defer closeFn()
		if err := admin.RemoveClient(ctx, grant); err != nil {
			return err
		}
	}
	return provider.Forget(ctx, grant.Username())
}

func (r *ClientReconciler) reconcileClientSecret(ctx context.Context, kc *kafkav1alpha1.KafkaClient, cluster *kafkav1alpha1.KafkaCluster, grant relation.ClientGrant, password string, zk zookeeper.Config) error {
	secret := &corev1.Secret{ObjectMeta: metav1.ObjectMeta{
		Name:      clientSecretName(kc),
		Namespace: kc.Namespace,
	}}
	_, err := controllerutil.CreateOrUpdate(ctx, r.Client, secret, func() error {
		secret.Labels = map[string]string{
			"app":     "kafka-client",
			"cluster": cluster.Name,
		}
		secret.Type = corev1.SecretTypeOpaque
		secret.Data = clientSecretData(cluster.Status.BootstrapServers, grant, password, zk)
		return controllerutil.SetControllerReference(kc, secret, r.Scheme)
	})
	return err
}

func clientSecretData(bootstrap []string, grant relation.ClientGrant, password string, zk zookeeper.Config) map[string][]byte {
	hosts := make([]string, 0, len(bootstrap))
	for _, server := range bootstrap {
		host, _, err := net.SplitHostPort(server)
		if err != nil {
			host = server
		}
		hosts = append(hosts, host)
	}
	zkURIs := ""
	if zk.Valid() {
		zkURIs = zk.Connect()
	}
	data := map[string][]byte{
		"username":       []byte(grant.Username()),
		"password":       []byte(password),
		"endpoints":      []byte(strings.Join(hosts, ",")),
		"uris":           []byte(strings.Join(bootstrap, ",")),
		"zookeeper-uris": []byte(zkURIs),
	}
	if grant.HasRole(relation.RoleConsumer) {
		data["consumer-group-prefix"] = []byte(grant.ConsumerGroupPrefix)
	}
	return data
}

func (r *ClientReconciler) setClientCondition(kc *kafkav1alpha1.KafkaClient, ok bool, reason, message string) {
	status := metav1.ConditionFalse
	kc.Status.Phase = reason
	if ok {
		status = metav1.ConditionTrue
		kc.Status.Phase = "Ready"
	}
	meta.SetStatusCondition(&kc.Status.Conditions, metav1.Condition{
		Type:               ConditionReady,
		Status:             status,
		Reason:             reason,
		Message:            message,
		ObservedGeneration: kc.Generation,
		LastTransitionTime: metav1.NewTime(time.Now()),
	})
}

func (r *ClientReconciler) updateStatus(ctx context.Context, kc *kafkav1alpha1.KafkaClient) error {
	if err := r.Client.Status().Update(ctx, kc); err != nil && !apierrors.IsNotFound(err) {
		return err
	}
	return nil
}

func (r *ClientReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&kafkav1alpha1.KafkaClient{}).
		Owns(&corev1.Secret{}).
		Complete(r)
}
