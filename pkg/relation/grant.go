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
	"sort"
	"strings"
)

// Capability roles a client application can request.
const (
	RoleAdmin    = "admin"
	RoleProducer = "producer"
	RoleConsumer = "consumer"
)

// ClientGrant is the access a client application requested over its relation.
type ClientGrant struct {
	RelationID          string
	App                 string
	Roles               map[string]struct{}
	Topic               string
	ConsumerGroupPrefix string
}

// GrantFromBag parses the requirer side of a client relation.
func GrantFromBag(relationID, app string, bag Bag) ClientGrant {
	grant := ClientGrant{
		RelationID: relationID,
		App:        app,
		Roles:      ParseRoles(bag.Value(extraUserRolesKey)),
		Topic:      bag.Value(topicKey),
	}
	grant.ConsumerGroupPrefix = bag.Value(consumerGroupPrefix)
	if grant.ConsumerGroupPrefix == "" {
		grant.ConsumerGroupPrefix = grant.Username() + "-"
	}
	return grant
}

// ParseRoles splits a comma-separated role list into a set.
func ParseRoles(raw string) map[string]struct{} {
	roles := make(map[string]struct{})
	for _, token := range strings.Split(raw, ",") {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		roles[token] = struct{}{}
	}
	return roles
}

// Username is the SCRAM user generated for the relation.
func (g ClientGrant) Username() string {
	return "relation-" + g.RelationID
}

// HasRole reports whether the role was requested.
func (g ClientGrant) HasRole(role string) bool {
	_, ok := g.Roles[role]
	return ok
}

// RoleList returns the requested roles, sorted.
func (g ClientGrant) RoleList() []string {
	out := make([]string, 0, len(g.Roles))
	for role := range g.Roles {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}
