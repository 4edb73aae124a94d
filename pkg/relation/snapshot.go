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

package relation

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

// Relation endpoint names understood by the readers.
const (
	PeerRelation      = "cluster"
	ZookeeperRelation = "zookeeper"
	ClientRelation    = "kafka-client"

	// LogDataStorage is the storage kind holding broker log directories.
	LogDataStorage = "log-data"

	privateAddressKey   = "private-address"
	extraUserRolesKey   = "extra-user-roles"
	topicKey            = "topic"
	consumerGroupPrefix = "consumer-group-prefix"
)

// Bag is a loosely-structured key/value document published on a relation.
// Missing keys read as unset rather than failing.
type Bag map[string]string

// Get returns the trimmed value for key and whether it is set to a non-empty value.
func (b Bag) Get(key string) (string, bool) {
	if b == nil {
		return "", false
	}
	val := strings.TrimSpace(b[key])
	return val, val != ""
}

// Value returns the trimmed value for key, or "" when unset.
func (b Bag) Value(key string) string {
	val, _ := b.Get(key)
	return val
}

// Clone returns an independent copy of the bag.
func (b Bag) Clone() Bag {
	out := make(Bag, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// WithPrefix returns the keys starting with prefix, sorted.
func (b Bag) WithPrefix(prefix string) []string {
	keys := make([]string, 0)
	for k := range b {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Relation is one relation as seen from the local application: the remote
// application's bag plus one bag per remote unit.
type Relation struct {
	ID       string
	Name     string
	App      string
	AppData  Bag
	UnitData map[string]Bag
}

// Snapshot is an immutable view of everything the local unit can observe in
// one reconciliation cycle.
type Snapshot struct {
	Unit      string
	App       string
	Relations []Relation
	Storage   map[string][]string
}

// Related returns the relations bound to the named endpoint, in snapshot order.
func (s Snapshot) Related(name string) []Relation {
	out := make([]Relation, 0)
	for _, rel := range s.Relations {
		if rel.Name == name {
			out = append(out, rel)
		}
	}
	return out
}

func (s Snapshot) peer() (Relation, bool) {
	for _, rel := range s.Relations {
		if rel.Name == PeerRelation {
			return rel, true
		}
	}
	return Relation{}, false
}

// PeerAppData returns the application bag shared by all units of the cluster.
func (s Snapshot) PeerAppData() Bag {
	rel, ok := s.peer()
	if !ok || rel.AppData == nil {
		return Bag{}
	}
	return rel.AppData.Clone()
}

// zookeeperRequiredKeys must all be set before a coordination relation is usable.
var zookeeperRequiredKeys = []string{"chroot", "username", "password", "uris"}

// ZookeeperComplete reports whether bag carries every field the brokers need
// from the coordination service.
func ZookeeperComplete(bag Bag) bool {
	for _, key := range zookeeperRequiredKeys {
		if _, ok := bag.Get(key); !ok {
			return false
		}
	}
	return true
}

// ZookeeperData returns the application bag of the first complete coordination
// service relation. Relations still missing fields are skipped; with none
// complete the bag is empty.
func (s Snapshot) ZookeeperData() Bag {
	for _, rel := range s.Related(ZookeeperRelation) {
		if ZookeeperComplete(rel.AppData) {
			return rel.AppData.Clone()
		}
	}
	return Bag{}
}

// StorageMounts returns the mount paths attached for the given storage kind.
func (s Snapshot) StorageMounts(kind string) []string {
	mounts := s.Storage[kind]
	out := make([]string, 0, len(mounts))
	for _, m := range mounts {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

// Membership lists the local unit and every peer unit of the cluster relation.
// A unit without peers sees a singleton. Units whose name carries no ordinal
// cannot be given a broker id; they are left out and logged.
func (s Snapshot) Membership() Membership {
	addrs := map[string]string{}
	if rel, ok := s.peer(); ok {
		for unit, bag := range rel.UnitData {
			addrs[unit] = bag.Value(privateAddressKey)
		}
	}
	if s.Unit != "" {
		if _, ok := addrs[s.Unit]; !ok {
			addrs[s.Unit] = ""
		}
	}
	members := make([]Member, 0, len(addrs))
	for unit, addr := range addrs {
		ordinal, ok := ParseOrdinal(unit)
		if !ok {
			slog.Warn("membership skips unit without ordinal", "unit", unit, "local", unit == s.Unit)
			continue
		}
		members = append(members, Member{Unit: unit, Ordinal: ordinal, Address: addr})
	}
	return NewMembership(members)
}

// ClientGrants returns one grant per client access relation.
func (s Snapshot) ClientGrants() []ClientGrant {
	rels := s.Related(ClientRelation)
	grants := make([]ClientGrant, 0, len(rels))
	for _, rel := range rels {
		grants = append(grants, GrantFromBag(rel.ID, rel.App, rel.AppData))
	}
	return grants
}

// ParseOrdinal extracts the trailing unit number from names like "kafka/3" or
// "kafka-broker-3".
func ParseOrdinal(unit string) (int, bool) {
	idx := strings.LastIndexAny(unit, "/-")
	if idx < 0 || idx == len(unit)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(unit[idx+1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
