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

package access

import (
	"sort"

	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/novatechflow/kafka-operator/pkg/relation"
)

// AnyHost is the host every generated ACL applies to.
const AnyHost = "*"

// ACL is one allow rule bound to a principal.
type ACL struct {
	ResourceType kmsg.ACLResourceType
	ResourceName string
	PatternType  kmsg.ACLResourcePatternType
	Principal    string
	Host         string
	Operation    kmsg.ACLOperation
	Permission   kmsg.ACLPermissionType
}

// Principal returns the Kafka principal of a SCRAM user.
func Principal(username string) string {
	return "User:" + username
}

func topicACL(topic, username string, op kmsg.ACLOperation) ACL {
	return ACL{
		ResourceType: kmsg.ACLResourceTypeTopic,
		ResourceName: topic,
		PatternType:  kmsg.ACLResourcePatternTypeLiteral,
		Principal:    Principal(username),
		Host:         AnyHost,
		Operation:    op,
		Permission:   kmsg.ACLPermissionTypeAllow,
	}
}

func groupACL(prefix, username string) ACL {
	return ACL{
		ResourceType: kmsg.ACLResourceTypeGroup,
		ResourceName: prefix,
		PatternType:  kmsg.ACLResourcePatternTypePrefixed,
		Principal:    Principal(username),
		Host:         AnyHost,
		Operation:    kmsg.ACLOperationRead,
		Permission:   kmsg.ACLPermissionTypeAllow,
	}
}

// DesiredACLs returns the rules a client relation is entitled to.
// Producers may create, write and describe the topic. Consumers may read and
// describe it and read any group under their consumer group prefix.
func DesiredACLs(grant relation.ClientGrant) []ACL {
	username := grant.Username()
	set := make(map[ACL]struct{})
	if grant.HasRole(relation.RoleProducer) && grant.Topic != "" {
		for _, op := range []kmsg.ACLOperation{kmsg.ACLOperationCreate, kmsg.ACLOperationWrite, kmsg.ACLOperationDescribe} {
			set[topicACL(grant.Topic, username, op)] = struct{}{}
		}
	}
	if grant.HasRole(relation.RoleConsumer) {
		if grant.Topic != "" {
			for _, op := range []kmsg.ACLOperation{kmsg.ACLOperationRead, kmsg.ACLOperationDescribe} {
				set[topicACL(grant.Topic, username, op)] = struct{}{}
			}
		}
		if grant.ConsumerGroupPrefix != "" {
			set[groupACL(grant.ConsumerGroupPrefix, username)] = struct{}{}
		}
	}
	return sortACLs(set)
}

// DiffACLs compares the rules currently held by a principal with the desired rules.
func DiffACLs(current, desired []ACL) (add, remove []ACL) {
	have := make(map[ACL]struct{}, len(current))
	for _, acl := range current {
		have[acl] = struct{}{}
	}
	want := make(map[ACL]struct{}, len(desired))
	for _, acl := range desired {
		want[acl] = struct{}{}
	}
	toAdd := make(map[ACL]struct{})
	for acl := range want {
		if _, ok := have[acl]; !ok {
			toAdd[acl] = struct{}{}
		}
	}
	toRemove := make(map[ACL]struct{})
	for acl := range have {
		if _, ok := want[acl]; !ok {
			toRemove[acl] = struct{}{}
		}
	}
	return sortACLs(toAdd), sortACLs(toRemove)
}

func sortACLs(set map[ACL]struct{}) []ACL {
	out := make([]ACL, 0, len(set))
	for acl := range set {
		out = append(out, acl)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Principal != b.Principal {
			return a.Principal < b.Principal
		}
		if a.ResourceType != b.ResourceType {
			return a.ResourceType < b.ResourceType
		}
		if a.ResourceName != b.ResourceName {
			return a.ResourceName < b.ResourceName
		}
		if a.PatternType != b.PatternType {
			return a.PatternType < b.PatternType
		}
		return a.Operation < b.Operation
	})
	return out
}

func (a ACL) String() string {
	return a.Principal + " " + a.Operation.String() + " " + a.ResourceType.String() + ":" + a.ResourceName
}
