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

package topology

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/novatechflow/kafka-operator/pkg/relation"
)

const (
	// InternalPort carries inter-broker traffic and bootstrap connections.
	InternalPort = 19092
	// ClientPort carries traffic from related client applications.
	ClientPort = 9092

	InternalListenerName = "INTERNAL_SASL_PLAINTEXT"
	ClientListenerName   = "SASL_PLAINTEXT"
	securityProtocol     = "SASL_PLAINTEXT"

	quorumSize = 3
)

// Replication holds the cluster-wide replication defaults.
type Replication struct {
	Partitions        int
	ReplicationFactor int
	MinInsyncReplicas int
}

// ReplicationDefaults is a step function of the unit count: below three units
// every topic keeps a single copy, from three on one failure is tolerated.
func ReplicationDefaults(units int) Replication {
	if units < 0 {
		panic(fmt.Sprintf("topology: negative unit count %d", units))
	}
	if units < quorumSize {
		return Replication{Partitions: 1, ReplicationFactor: 1, MinInsyncReplicas: 1}
	}
	return Replication{Partitions: 3, ReplicationFactor: 3, MinInsyncReplicas: 2}
}

// Properties renders the replication defaults as server properties.
func (r Replication) Properties() []string {
	return []string{
		fmt.Sprintf("default.replication.factor=%d", r.ReplicationFactor),
		fmt.Sprintf("num.partitions=%d", r.Partitions),
		fmt.Sprintf("transaction.state.log.replication.factor=%d", r.ReplicationFactor),
		fmt.Sprintf("offsets.topic.replication.factor=%d", r.ReplicationFactor),
		fmt.Sprintf("min.insync.replicas=%d", r.MinInsyncReplicas),
		fmt.Sprintf("transaction.state.log.min.isr=%d", r.MinInsyncReplicas),
	}
}

// Listener is one named broker listener.
type Listener struct {
	Name string
	Port int
}

// Bind is the listeners entry: all interfaces on the listener port.
func (l Listener) Bind() string {
	return fmt.Sprintf("%s://:%d", l.Name, l.Port)
}

// Advertised is the advertised.listeners entry for a unit address.
func (l Listener) Advertised(host string) string {
	return fmt.Sprintf("%s://%s", l.Name, net.JoinHostPort(host, strconv.Itoa(l.Port)))
}

// Listeners returns the internal listener and, when clients are related, the
// client listener.
func Listeners(hasClients bool) []Listener {
	out := []Listener{{Name: InternalListenerName, Port: InternalPort}}
	if hasClients {
		out = append(out, Listener{Name: ClientListenerName, Port: ClientPort})
	}
	return out
}

// ListenerProperties renders the listener directives for one unit. The
// advertised listeners always use the unit's own address and are omitted
// until that address is known.
func ListenerProperties(localAddress string, hasClients bool) []string {
	listeners := Listeners(hasClients)
	binds := make([]string, 0, len(listeners))
	protocols := make([]string, 0, len(listeners))
	advertised := make([]string, 0, len(listeners))
	for _, l := range listeners {
		binds = append(binds, l.Bind())
		protocols = append(protocols, l.Name+":"+securityProtocol)
		if localAddress != "" {
			advertised = append(advertised, l.Advertised(localAddress))
		}
	}
	props := []string{
		"listener.security.protocol.map=" + strings.Join(protocols, ","),
		"listeners=" + strings.Join(binds, ","),
	}
	if len(advertised) > 0 {
		props = append(props, "advertised.listeners="+strings.Join(advertised, ","))
	}
	props = append(props, "inter.broker.listener.name="+InternalListenerName)
	return props
}

// BootstrapServers returns one host:port entry on the internal port for every
// member that published an address.
func BootstrapServers(members relation.Membership) []string {
	addrs := members.Addresses()
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, net.JoinHostPort(addr, strconv.Itoa(InternalPort)))
	}
	return out
}
