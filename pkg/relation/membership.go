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

import "sort"

// Member is one unit of the cluster and the address it published.
type Member struct {
	Unit    string
	Ordinal int
	Address string
}

// Membership is the ordered set of cluster units, unique by unit name.
type Membership struct {
	members []Member
}

// NewMembership orders members by ordinal and drops duplicate unit names,
// keeping the first occurrence that carries an address.
func NewMembership(members []Member) Membership {
	byUnit := make(map[string]Member, len(members))
	for _, m := range members {
		if m.Unit == "" {
			continue
		}
		if existing, ok := byUnit[m.Unit]; ok && existing.Address != "" {
			continue
		}
		byUnit[m.Unit] = m
	}
	out := make([]Member, 0, len(byUnit))
	for _, m := range byUnit {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ordinal != out[j].Ordinal {
			return out[i].Ordinal < out[j].Ordinal
		}
		return out[i].Unit < out[j].Unit
	})
	return Membership{members: out}
}

// Size returns the number of units.
func (m Membership) Size() int { return len(m.members) }

// Members returns a copy of the ordered members.
func (m Membership) Members() []Member {
	return append([]Member(nil), m.members...)
}

// Lookup finds a unit by name.
func (m Membership) Lookup(unit string) (Member, bool) {
	for _, member := range m.members {
		if member.Unit == unit {
			return member, true
		}
	}
	return Member{}, false
}

// Addresses returns the published addresses in member order, skipping units
// that have not published one yet.
func (m Membership) Addresses() []string {
	out := make([]string, 0, len(m.members))
	for _, member := range m.members {
		if member.Address != "" {
			out = append(out, member.Address)
		}
	}
	return out
}
