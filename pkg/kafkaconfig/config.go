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

package kafkaconfig

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/novatechflow/kafka-operator/pkg/access"
	"github.com/novatechflow/kafka-operator/pkg/credentials"
	"github.com/novatechflow/kafka-operator/pkg/relation"
	"github.com/novatechflow/kafka-operator/pkg/topology"
	"github.com/novatechflow/kafka-operator/pkg/zookeeper"
)

const (
	scramMechanism = "SCRAM-SHA-512"
	aclAuthorizer  = "kafka.security.authorizer.AclAuthorizer"
)

// Inputs is the reconciled state the synthesizer derives configuration from.
type Inputs struct {
	// Unit is the local unit name, e.g. "kafka/0".
	Unit         string
	Membership   relation.Membership
	Zookeeper    zookeeper.Config
	Credentials  credentials.Internal
	Grants       []relation.ClientGrant
	PeerData     relation.Bag
	LogDirs      []string
	PlannedUnits int
}

// Config derives broker configuration for one unit. It holds no mutable state;
// every method is a pure function of the options and inputs.
type Config struct {
	opts Options
	in   Inputs
}

// New returns a synthesizer over opts and in.
func New(opts Options, in Inputs) *Config {
	return &Config{opts: opts, in: in}
}

// FromSnapshot gathers Inputs from a relation snapshot.
func FromSnapshot(opts Options, snap relation.Snapshot, creds credentials.Internal, plannedUnits int) *Config {
	return New(opts, Inputs{
		Unit:         snap.Unit,
		Membership:   snap.Membership(),
		Zookeeper:    zookeeper.Parse(snap.ZookeeperData()),
		Credentials:  creds,
		Grants:       snap.ClientGrants(),
		PeerData:     snap.PeerAppData(),
		LogDirs:      snap.StorageMounts(relation.LogDataStorage),
		PlannedUnits: plannedUnits,
	})
}

// ZookeeperConnected reports whether the coordination service relation is complete.
func (c *Config) ZookeeperConnected() bool {
	return c.in.Zookeeper.Valid()
}

// CredentialsReady reports whether both internal accounts have a secret.
func (c *Config) CredentialsReady() bool {
	return c.in.Credentials.Ready()
}

// ZookeeperConfig returns the validated coordination settings, or an empty map.
func (c *Config) ZookeeperConfig() map[string]string {
	return c.in.Zookeeper.Map()
}

// BrokerID returns the local unit ordinal.
func (c *Config) BrokerID() (int, bool) {
	if m, ok := c.in.Membership.Lookup(c.in.Unit); ok {
		return m.Ordinal, true
	}
	return relation.ParseOrdinal(c.in.Unit)
}

func (c *Config) localAddress() string {
	if m, ok := c.in.Membership.Lookup(c.in.Unit); ok {
		return m.Address
	}
	return ""
}

// LogDirs returns one directory per attached log-data volume.
func (c *Config) LogDirs() []string {
	return append([]string(nil), c.in.LogDirs...)
}

// SuperUsers returns the sorted principals with super-user rights.
func (c *Config) SuperUsers() []string {
	return access.SuperUsers(credentials.InternalUsers, c.in.Grants, c.in.PeerData)
}

// BootstrapServers lists host:port for every member with an address.
func (c *Config) BootstrapServers() []string {
	return topology.BootstrapServers(c.in.Membership)
}

// DefaultReplicationProperties renders replication defaults for the planned unit count.
func (c *Config) DefaultReplicationProperties() []string {
	return topology.ReplicationDefaults(c.in.PlannedUnits).Properties()
}

// AuthProperties renders the broker identity and coordination service wiring.
func (c *Config) AuthProperties() []string {
	props := make([]string, 0, 3)
	if id, ok := c.BrokerID(); ok {
		props = append(props, "broker.id="+strconv.Itoa(id))
	}
	if c.ZookeeperConnected() {
		props = append(props, "zookeeper.connect="+c.in.Zookeeper.Connect())
		if c.in.Zookeeper.TLS {
			props = append(props, "zookeeper.ssl.client.enable=true")
		}
	}
	return props
}

// ScramProperty is the JAAS directive the broker uses to authenticate to its peers.
// It is empty until the inter-broker secret exists.
func (c *Config) ScramProperty() string {
	password, ok := c.in.Credentials[credentials.InterBrokerUser]
	if !ok || password == "" {
		return ""
	}
	return fmt.Sprintf(
		`listener.name.%s.scram-sha-512.sasl.jaas.config=org.apache.kafka.common.security.scram.ScramLoginModule required username="%s" password="%s";`,
		strings.ToLower(topology.InternalListenerName), credentials.InterBrokerUser, password,
	)
}

// ClientLoginProperty is the server-side login module for the client listener.
// It carries no credentials: clients authenticate against the SCRAM users
// stored in the coordination service. It is empty while no client is related.
func (c *Config) ClientLoginProperty() string {
	if len(c.in.Grants) == 0 {
		return ""
	}
	return fmt.Sprintf(
		"listener.name.%s.scram-sha-512.sasl.jaas.config=org.apache.kafka.common.security.scram.ScramLoginModule required;",
		strings.ToLower(topology.ClientListenerName),
	)
}

func fixedDefaults() []string {
	return []string{
		"sasl.enabled.mechanisms=" + scramMechanism,
		"sasl.mechanism.inter.broker.protocol=" + scramMechanism,
		"authorizer.class.name=" + aclAuthorizer,
		"allow.everyone.if.no.acl.found=false",
	}
}

// ServerProperties renders the full server.properties directive list.
// Zero attached volumes omit log.dirs and leave the broker default in place.
func (c *Config) ServerProperties() []string {
	props := []string{"super.users=" + access.FormatSuperUsers(c.SuperUsers())}
	if dirs := c.LogDirs(); len(dirs) > 0 {
		props = append(props, "log.dirs="+strings.Join(dirs, ","))
	}
	props = append(props, topology.ListenerProperties(c.localAddress(), len(c.in.Grants) > 0)...)
	props = append(props, c.opts.Properties()...)
	if scram := c.ScramProperty(); scram != "" {
		props = append(props, scram)
	}
	if login := c.ClientLoginProperty(); login != "" {
		props = append(props, login)
	}
	props = append(props, c.DefaultReplicationProperties()...)
	props = append(props, c.AuthProperties()...)
	props = append(props, fixedDefaults()...)
	return c.applyExtra(props)
}

// applyExtra overrides unprotected keys in place and appends new keys sorted.
func (c *Config) applyExtra(props []string) []string {
	if len(c.opts.ExtraProperties) == 0 {
		return props
	}
	index := make(map[string]int, len(props))
	for i, p := range props {
		if key, _, ok := strings.Cut(p, "="); ok {
			index[key] = i
		}
	}
	for _, key := range c.opts.extraKeys() {
		if IsProtected(key) {
			continue
		}
		line := key + "=" + c.opts.ExtraProperties[key]
		if i, ok := index[key]; ok {
			props[i] = line
			continue
		}
		props = append(props, line)
	}
	return props
}

// Render returns the server.properties file contents.
func (c *Config) Render() string {
	return strings.Join(c.ServerProperties(), "\n") + "\n"
}

// ExtraArgs are the JVM arguments the broker process must be started with.
func (c *Config) ExtraArgs() []string {
	return []string{"-Djava.security.auth.login.config=" + c.opts.JAASPath()}
}

// KafkaOpts is the KAFKA_OPTS environment value.
func (c *Config) KafkaOpts() string {
	return strings.Join(c.ExtraArgs(), " ")
}

// JAASPath is the location JAASConfig must be written to.
func (c *Config) JAASPath() string {
	return c.opts.JAASPath()
}

// JAASConfig renders the login configuration used against the coordination
// service. It is empty until the coordination relation is complete.
func (c *Config) JAASConfig() string {
	if !c.ZookeeperConnected() {
		return ""
	}
	return fmt.Sprintf(`Client {
    org.apache.zookeeper.server.auth.DigestLoginModule required
    username="%s"
    password="%s";
};
`, c.in.Zookeeper.Username, c.in.Zookeeper.Password)
}
