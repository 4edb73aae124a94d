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
	"sort"
	"strings"
)

// PropertyDiff is the set difference between two renders.
type PropertyDiff struct {
	Added   []string
	Removed []string
}

// Empty reports whether the renders are equivalent.
func (d PropertyDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// DiffProperties compares two directive lists as sets. Ordering changes alone
// never require a broker restart.
func DiffProperties(previous, next []string) PropertyDiff {
	prev := toSet(previous)
	cur := toSet(next)
	var diff PropertyDiff
	for line := range cur {
		if _, ok := prev[line]; !ok {
			diff.Added = append(diff.Added, line)
		}
	}
	for line := range prev {
		if _, ok := cur[line]; !ok {
			diff.Removed = append(diff.Removed, line)
		}
	}
	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	return diff
}

// ParseProperties splits a rendered properties file into directives, dropping
// blank lines and comments.
func ParseProperties(text string) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// Redacted masks secret values so a diff can be logged.
func (d PropertyDiff) Redacted() PropertyDiff {
	return PropertyDiff{Added: redact(d.Added), Removed: redact(d.Removed)}
}

// RedactProperties masks secret values in a rendered properties file while
// keeping every line in place, so the result can leave the cluster.
func RedactProperties(text string) string {
	return strings.Join(redact(strings.Split(text, "\n")), "\n")
}

func redact(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.Contains(line, "password=") {
			key, _, _ := strings.Cut(line, "=")
			line = key + "=<redacted>"
		}
		out = append(out, line)
	}
	return out
}

func toSet(lines []string) map[string]struct{} {
	set := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		set[line] = struct{}{}
	}
	return set
}
