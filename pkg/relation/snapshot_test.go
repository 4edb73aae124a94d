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
	"bytes"
	"log/slog"
	"reflect"
	"strings"
	"testing"
)

func testSnapshot() Snapshot {
	return Snapshot{
		Unit: "kafka/0",
		App:  "kafka",
		Relations: []Relation{
			{
				ID:   "0",
				Name: PeerRelation,
				App:  "kafka",
				AppData: Bag{
					"sync":               "fangorn",
					"super-user-gandalf": "1",
				},
				UnitData: map[string]Bag{
					"kafka/0": {"private-address": "treebeard"},
					"kafka/2": {"private-address": "shelob"},
					"kafka/1": {},
				},
			},
			{
				ID:      "3",
				Name:    ZookeeperRelation,
				App:     "zookeeper",
				AppData: Bag{"chroot": "/kafka", "username": "moria"},
			},
			{
				ID:      "7",
				Name:    ClientRelation,
				App:     "app",
				AppData: Bag{"extra-user-roles": "admin, Producer", "topic": "orders"},
			},
		},
		Storage: map[string][]string{
			LogDataStorage: {"/var/lib/kafka/0", " ", "/var/lib/kafka/1"},
		},
	}
}

func TestMembershipOrderedByOrdinal(t *testing.T) {
	members := testSnapshot().Membership().Members()
	if len(members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(members))
	}
	for i, m := range members {
		if m.Ordinal != i {
			t.Fatalf("member %d has ordinal %d", i, m.Ordinal)
		}
	}
	if members[2].Address != "shelob" {
		t.Fatalf("unexpected address for kafka/2: %q", members[2].Address)
	}
	if got := testSnapshot().Membership().Addresses(); len(got) != 2 {
		t.Fatalf("expected 2 published addresses, got %v", got)
	}
}

func TestMembershipSingletonWithoutPeers(t *testing.T) {
	snap := Snapshot{Unit: "kafka/4"}
	m := snap.Membership()
	if m.Size() != 1 {
		t.Fatalf("expected singleton membership, got %d", m.Size())
	}
	local, ok := m.Lookup("kafka/4")
	if !ok || local.Ordinal != 4 || local.Address != "" {
		t.Fatalf("unexpected local member: %+v", local)
	}
}

func TestMembershipLogsUnitsWithoutOrdinal(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	snap := Snapshot{
		Unit: "kafka/leader",
		Relations: []Relation{{
			ID:   "0",
			Name: PeerRelation,
			App:  "kafka",
			UnitData: map[string]Bag{
				"kafka/1": {"private-address": "shelob"},
			},
		}},
	}
	m := snap.Membership()
	if m.Size() != 1 {
		t.Fatalf("expected only the numbered peer, got %d", m.Size())
	}
	if _, ok := m.Lookup("kafka/leader"); ok {
		t.Fatalf("unit without ordinal must not get a broker id")
	}
	out := buf.String()
	if !strings.Contains(out, "unit=kafka/leader") || !strings.Contains(out, "local=true") {
		t.Fatalf("expected skipped local unit to be logged, got %q", out)
	}
}

func TestMembershipDeduplicatesUnits(t *testing.T) {
	m := NewMembership([]Member{
		{Unit: "kafka/1", Ordinal: 1},
		{Unit: "kafka/1", Ordinal: 1, Address: "a"},
		{Unit: "kafka/1", Ordinal: 1, Address: "b"},
	})
	if m.Size() != 1 {
		t.Fatalf("expected unique units, got %d", m.Size())
	}
	if got, _ := m.Lookup("kafka/1"); got.Address != "a" {
		t.Fatalf("expected first addressed entry to win, got %q", got.Address)
	}
}

func TestMissingRelationsReadAsEmpty(t *testing.T) {
	snap := Snapshot{Unit: "kafka/0"}
	if len(snap.ZookeeperData()) != 0 {
		t.Fatalf("expected empty zookeeper data")
	}
	if len(snap.PeerAppData()) != 0 {
		t.Fatalf("expected empty peer data")
	}
	if len(snap.ClientGrants()) != 0 {
		t.Fatalf("expected no grants")
	}
	if len(snap.StorageMounts(LogDataStorage)) != 0 {
		t.Fatalf("expected no storage")
	}
}

func TestZookeeperDataSkipsIncompleteRelations(t *testing.T) {
	snap := testSnapshot()
	if len(snap.ZookeeperData()) != 0 {
		t.Fatalf("expected partial relation to be ignored, got %v", snap.ZookeeperData())
	}
	complete := Bag{"chroot": "/kafka", "username": "moria", "password": "mellon", "uris": "zk-0:2181/kafka"}
	snap.Relations = append(snap.Relations,
		Relation{ID: "8", Name: ZookeeperRelation, App: "zk-empty", AppData: Bag{"chroot": "/kafka", "username": "moria", "password": " ", "uris": "zk-9:2181"}},
		Relation{ID: "9", Name: ZookeeperRelation, App: "zookeeper-b", AppData: complete},
	)
	got := snap.ZookeeperData()
	if !reflect.DeepEqual(got, complete) {
		t.Fatalf("expected first complete relation, got %v", got)
	}
	got["chroot"] = "changed"
	if snap.ZookeeperData().Value("chroot") != "/kafka" {
		t.Fatalf("zookeeper data mutated through reader")
	}
}

func TestReadersReturnCopies(t *testing.T) {
	snap := testSnapshot()
	peer := snap.PeerAppData()
	peer["sync"] = "changed"
	if snap.PeerAppData().Value("sync") != "fangorn" {
		t.Fatalf("peer data mutated through reader")
	}
}

func TestClientGrantParsing(t *testing.T) {
	grants := testSnapshot().ClientGrants()
	if len(grants) != 1 {
		t.Fatalf("expected 1 grant, got %d", len(grants))
	}
	g := grants[0]
	if !g.HasRole(RoleAdmin) || !g.HasRole(RoleProducer) || g.HasRole(RoleConsumer) {
		t.Fatalf("unexpected roles %v", g.RoleList())
	}
	if g.Username() != "relation-7" {
		t.Fatalf("unexpected username %q", g.Username())
	}
	if g.ConsumerGroupPrefix != "relation-7-" {
		t.Fatalf("unexpected group prefix %q", g.ConsumerGroupPrefix)
	}
	if g.Topic != "orders" {
		t.Fatalf("unexpected topic %q", g.Topic)
	}
}

func TestStorageMountsSkipsBlank(t *testing.T) {
	mounts := testSnapshot().StorageMounts(LogDataStorage)
	if len(mounts) != 2 {
		t.Fatalf("expected 2 mounts, got %v", mounts)
	}
}

func TestParseOrdinal(t *testing.T) {
	cases := map[string]int{"kafka/0": 0, "kafka/12": 12, "demo-broker-3": 3}
	for unit, want := range cases {
		got, ok := ParseOrdinal(unit)
		if !ok || got != want {
			t.Fatalf("ParseOrdinal(%q) = %d, %v", unit, got, ok)
		}
	}
	for _, unit := range []string{"", "kafka", "kafka/", "kafka/x"} {
		if _, ok := ParseOrdinal(unit); ok {
			t.Fatalf("expected %q to be rejected", unit)
		}
	}
}
