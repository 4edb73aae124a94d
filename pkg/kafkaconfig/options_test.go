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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseOptionsAppliesDefaults(t *testing.T) {
	opts, err := ParseOptions([]byte("compression_type: zstd\nauto_create_topics: true\n"))
	if err != nil {
		t.Fatalf("ParseOptions: %v", err)
	}
	if opts.CompressionType != "zstd" || !opts.AutoCreateTopics {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.LogRetentionMs != defaultLogRetentionMs || opts.ConfigDir != defaultConfigDir {
		t.Fatalf("expected defaults to survive, got %+v", opts)
	}
}

func TestParseOptionsRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"retention":   "log_retention_ms: -5\n",
		"compression": "compression_type: brotli\n",
		"offsets":     "offsets_retention_minutes: 0\n",
		"config dir":  "config_dir: relative/dir\n",
		"protected":   "extra_properties:\n  broker.id: \"7\"\n",
		"listener":    "extra_properties:\n  listener.name.internal.foo: bar\n",
		"value lf":    "extra_properties:\n  num.io.threads: \"8\\nsuper.users=User:mallory\"\n",
		"value cr":    "extra_properties:\n  num.io.threads: \"8\\rallow.everyone.if.no.acl.found=true\"\n",
		"yaml":        "log_retention_ms: [\n",
		"type":        "log_retention_ms: forever\n",
	}
	for name, doc := range cases {
		if _, err := ParseOptions([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadOptions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "options.yaml")
	doc := "log_retention_bytes: 1073741824\nextra_properties:\n  num.network.threads: \"8\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write options: %v", err)
	}
	opts, err := LoadOptions(path)
	if err != nil {
		t.Fatalf("LoadOptions: %v", err)
	}
	if opts.LogRetentionBytes != 1073741824 || opts.ExtraProperties["num.network.threads"] != "8" {
		t.Fatalf("unexpected options %+v", opts)
	}
	if _, err := LoadOptions(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestOptionsProperties(t *testing.T) {
	props := strings.Join(DefaultOptions().Properties(), "\n")
	for _, want := range []string{"log.retention.ms=604800000", "compression.type=producer", "auto.create.topics.enable=false"} {
		if !strings.Contains(props, want) {
			t.Fatalf("expected %q in %q", want, props)
		}
	}
}

func TestDiffProperties(t *testing.T) {
	prev := []string{"a=1", "b=2", "password=secret"}
	next := []string{"b=2", "a=2", "c=3"}
	diff := DiffProperties(prev, next)
	if strings.Join(diff.Added, ",") != "a=2,c=3" {
		t.Fatalf("unexpected added %v", diff.Added)
	}
	if strings.Join(diff.Removed, ",") != "a=1,password=secret" {
		t.Fatalf("unexpected removed %v", diff.Removed)
	}
	if got := diff.Redacted().Removed[1]; got != "password=<redacted>" {
		t.Fatalf("expected redaction, got %q", got)
	}
	if !DiffProperties([]string{"x=1", "y=2"}, []string{"y=2", "x=1"}).Empty() {
		t.Fatalf("reordering must not produce a diff")
	}
	if got := ParseProperties("# header\n\na=1\n  b=2  \n"); len(got) != 2 || got[1] != "b=2" {
		t.Fatalf("unexpected parse %v", got)
	}
}

func TestValidateRejectsMultilineValues(t *testing.T) {
	opts := DefaultOptions()
	opts.ExtraProperties = map[string]string{"num.io.threads": "8"}
	if err := opts.Validate(); err != nil {
		t.Fatalf("single-line value rejected: %v", err)
	}
	for _, value := range []string{"8\nsuper.users=User:mallory", "8\r\nallow.everyone.if.no.acl.found=true"} {
		opts.ExtraProperties = map[string]string{"num.io.threads": value}
		if err := opts.Validate(); err == nil {
			t.Fatalf("expected %q to be rejected", value)
		}
	}
	opts.ExtraProperties = map[string]string{" super.users ": "User:mallory"}
	if err := opts.Validate(); err == nil {
		t.Fatalf("expected padded protected key to be rejected")
	}
}
