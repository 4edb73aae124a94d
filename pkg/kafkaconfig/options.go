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
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Options are the operator-supplied knobs rendered into server properties.
type Options struct {
	LogRetentionMs          int64             `yaml:"log_retention_ms"`
	LogRetentionBytes       int64             `yaml:"log_retention_bytes"`
	LogSegmentBytes         int64             `yaml:"log_segment_bytes"`
	CompressionType         string            `yaml:"compression_type"`
	OffsetsRetentionMinutes int               `yaml:"offsets_retention_minutes"`
	AutoCreateTopics        bool              `yaml:"auto_create_topics"`
	ConfigDir               string            `yaml:"config_dir"`
	ExtraProperties         map[string]string `yaml:"extra_properties"`
}

const (
	defaultLogRetentionMs          = 604800000
	defaultLogSegmentBytes         = 1073741824
	defaultOffsetsRetentionMinutes = 10080
	defaultConfigDir               = "/etc/kafka"

	jaasFileName = "kafka-jaas.cfg"
)

var compressionTypes = map[string]struct{}{
	"gzip":         {},
	"snappy":       {},
	"lz4":          {},
	"zstd":         {},
	"uncompressed": {},
	"producer":     {},
}

// Keys owned by the synthesizer; extra properties may not set them.
var protectedKeys = map[string]struct{}{
	"broker.id":                            {},
	"zookeeper.connect":                    {},
	"zookeeper.ssl.client.enable":          {},
	"listeners":                            {},
	"advertised.listeners":                 {},
	"listener.security.protocol.map":       {},
	"inter.broker.listener.name":           {},
	"super.users":                          {},
	"log.dirs":                             {},
	"sasl.enabled.mechanisms":              {},
	"sasl.mechanism.inter.broker.protocol": {},
	"authorizer.class.name":                {},
	"allow.everyone.if.no.acl.found":       {},
}

// DefaultOptions returns the knobs used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		LogRetentionMs:          defaultLogRetentionMs,
		LogRetentionBytes:       -1,
		LogSegmentBytes:         defaultLogSegmentBytes,
		CompressionType:         "producer",
		OffsetsRetentionMinutes: defaultOffsetsRetentionMinutes,
		ConfigDir:               defaultConfigDir,
	}
}

// LoadOptions reads YAML knobs from path on top of the defaults.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("read options: %w", err)
	}
	return ParseOptions(data)
}

// ParseOptions decodes YAML knobs on top of the defaults and validates them.
func ParseOptions(data []byte) (Options, error) {
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("parse options: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate rejects malformed knobs.
func (o Options) Validate() error {
	if o.LogRetentionMs < -1 {
		return fmt.Errorf("log_retention_ms must be -1 or greater, got %d", o.LogRetentionMs)
	}
	if o.LogRetentionBytes < -1 {
		return fmt.Errorf("log_retention_bytes must be -1 or greater, got %d", o.LogRetentionBytes)
	}
	if o.LogSegmentBytes < 14 {
		return fmt.Errorf("log_segment_bytes must be at least 14, got %d", o.LogSegmentBytes)
	}
	if _, ok := compressionTypes[o.CompressionType]; !ok {
		return fmt.Errorf("compression_type %q is not supported", o.CompressionType)
	}
	if o.OffsetsRetentionMinutes <= 0 {
		return fmt.Errorf("offsets_retention_minutes must be positive, got %d", o.OffsetsRetentionMinutes)
	}
	if !path.IsAbs(o.ConfigDir) {
		return fmt.Errorf("config_dir must be an absolute path, got %q", o.ConfigDir)
	}
	for raw, value := range o.ExtraProperties {
		key := strings.TrimSpace(raw)
		if key == "" || strings.ContainsAny(key, "=:\r\n") {
			return fmt.Errorf("extra property key %q is invalid", key)
		}
		if IsProtected(key) {
			return fmt.Errorf("extra property %q is managed by the operator", key)
		}
		if strings.ContainsAny(value, "\r\n") {
			return fmt.Errorf("extra property %q value must be a single line", key)
		}
	}
	return nil
}

// IsProtected reports whether key is owned by the synthesizer.
func IsProtected(key string) bool {
	if _, ok := protectedKeys[key]; ok {
		return true
	}
	return strings.HasPrefix(key, "listener.name.")
}

// Properties renders the knobs as server properties.
func (o Options) Properties() []string {
	return []string{
		"log.retention.ms=" + strconv.FormatInt(o.LogRetentionMs, 10),
		"log.retention.bytes=" + strconv.FormatInt(o.LogRetentionBytes, 10),
		"log.segment.bytes=" + strconv.FormatInt(o.LogSegmentBytes, 10),
		"compression.type=" + o.CompressionType,
		"offsets.retention.minutes=" + strconv.Itoa(o.OffsetsRetentionMinutes),
		"auto.create.topics.enable=" + strconv.FormatBool(o.AutoCreateTopics),
	}
}

// JAASPath is where the broker reads its JAAS login configuration.
func (o Options) JAASPath() string {
	dir := o.ConfigDir
	if dir == "" {
		dir = defaultConfigDir
	}
	return path.Join(dir, jaasFileName)
}

func (o Options) extraKeys() []string {
	keys := make([]string, 0, len(o.ExtraProperties))
	for key := range o.ExtraProperties {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
