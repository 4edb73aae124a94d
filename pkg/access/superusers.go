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
	"strings"
	"unicode"

	"github.com/novatechflow/kafka-operator/pkg/relation"
)

// ExtraSuperUserPrefix marks peer application keys that promote an extra principal.
const ExtraSuperUserPrefix = "super-user-"

// SuperUsers returns the sorted principals granted super-user rights: every internal
// account, the generated user of each client relation requesting the admin role and
// one principal per extra super-user key in the peer application data.
func SuperUsers(accounts []string, grants []relation.ClientGrant, peerData relation.Bag) []string {
	set := make(map[string]struct{})
	add := func(name string) {
		name = strings.TrimSpace(name)
		if !ValidPrincipalName(name) {
			return
		}
		set["User:"+name] = struct{}{}
	}
	for _, account := range accounts {
		add(account)
	}
	for _, grant := range grants {
		if grant.HasRole(relation.RoleAdmin) {
			add(grant.Username())
		}
	}
	for _, key := range peerData.WithPrefix(ExtraSuperUserPrefix) {
		add(strings.TrimPrefix(key, ExtraSuperUserPrefix))
	}
	out := make([]string, 0, len(set))
	for principal := range set {
		out = append(out, principal)
	}
	sort.Strings(out)
	return out
}

// ValidPrincipalName reports whether name can be placed in the super.users
// directive without changing its meaning. Separators, whitespace and control
// characters are rejected.
func ValidPrincipalName(name string) bool {
	if name == "" {
		return false
	}
	return strings.IndexFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r) || strings.ContainsRune(";,=", r)
	}) < 0
}

// FormatSuperUsers renders principals as the super.users directive value.
func FormatSuperUsers(principals []string) string {
	return strings.Join(principals, ";")
}
