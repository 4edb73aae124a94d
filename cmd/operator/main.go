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

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	k8sruntime "k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	kafkav1alpha1 "github.com/novatechflow/kafka-operator/api/v1alpha1"
	"github.com/novatechflow/kafka-operator/pkg/kafkaconfig"
	"github.com/novatechflow/kafka-operator/pkg/operator"
)

const (
	leaderKeyEnv     = "KAFKA_OPERATOR_LEADER_KEY"
	defaultLeaderKey = "kafka-operator"
)

type options struct {
	metricsAddr    string
	probeAddr      string
	leaderElect    bool
	brokerDefaults string
	development    bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "kafka-operator",
		Short:         "Reconciles ZooKeeper-backed Kafka clusters and their clients",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.metricsAddr, "metrics-bind-address", ":8080", "Address the metrics endpoint binds to.")
	flags.StringVar(&opts.probeAddr, "health-probe-bind-address", ":8081", "Address the health probe endpoint binds to.")
	flags.BoolVar(&opts.leaderElect, "leader-elect", true, "Enable leader election for the controller manager.")
	flags.StringVar(&opts.brokerDefaults, "broker-defaults", "", "YAML file with default broker options.")
	flags.BoolVar(&opts.development, "development", false, "Use human-readable development logging.")
	return cmd
}

func run(opts *options) error {
	ctrl.SetLogger(zap.New(zap.UseDevMode(opts.development)))
	slog.SetDefault(slog.New(logr.ToSlogHandler(ctrl.Log.WithName("kafka"))))
	setupLog := ctrl.Log.WithName("setup")

	defaults, err := loadBrokerDefaults(opts.brokerDefaults)
	if err != nil {
		setupLog.Error(err, "unable to load broker defaults")
		return err
	}

	scheme := k8sruntime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(kafkav1alpha1.AddToScheme(scheme))

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsserver.Options{BindAddress: opts.metricsAddr},
		HealthProbeBindAddress: opts.probeAddr,
		LeaderElection:         opts.leaderElect,
		LeaderElectionID:       leaderElectionID(),
	})
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		return err
	}

	registry := operator.NewCredentialRegistry(mgr.GetClient(), mgr.GetScheme())
	clusters := operator.NewClusterReconciler(mgr, defaults, registry, operator.NewConfigPublisher(), operator.NewConfigArchiver(mgr.GetClient()))
	if err := clusters.SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "KafkaCluster")
		return err
	}
	if err := operator.NewClientReconciler(mgr, registry).SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "KafkaClient")
		return err
	}
	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return fmt.Errorf("add health check: %w", err)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		return fmt.Errorf("add ready check: %w", err)
	}

	setupLog.Info("starting manager")
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "problem running manager")
		return err
	}
	return nil
}

func loadBrokerDefaults(path string) (kafkaconfig.Options, error) {
	if strings.TrimSpace(path) == "" {
		return kafkaconfig.DefaultOptions(), nil
	}
	return kafkaconfig.LoadOptions(path)
}

func leaderElectionID() string {
	if val := strings.TrimSpace(os.Getenv(leaderKeyEnv)); val != "" {
		return val
	}
	return defaultLeaderKey
}
