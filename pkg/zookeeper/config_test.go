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

package zookeeper

import (
	"testing"

	"github.com/novatechflow/kafka-operator/pkg/relation"
)

func validBag() relation.Bag {
	return relation.Bag{
		"chroot":    "/kafka",
		"username":  "moria",
		"password":  "mellon",
		"endpoints": "1.1.1.1,2.2.2.2",
		"uris":      "1.1.1.1:2181/kafka,2.2.2.2:2181/kafka",
		"tls":       "disabled",
	}
}

func TestParseValidConfig(t *testing.T) {
	cfg := Parse(validBag())
	if !cfg.Valid() {
		t.Fatalf("expected valid config")
	}
	if got := cfg.Connect(); got != "1.1.1.1:2181,2.2.2.2:2181/kafka" {
		t.Fatalf("unexpected connect string %q", got)
	}
	m := cfg.Map()
	if m[ConnectKey] != cfg.Connect() {
		t.Fatalf("map connect mismatch: %q", m[ConnectKey])
	}
	if len(cfg.Endpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %v", cfg.Endpoints)
	}
}

func TestParseRejectsMissingFields(t *testing.T) {
	for _, key := range []string{"chroot", "username", "password", "uris"} {
		bag := validBag()
		delete(bag, key)
		cfg := Parse(bag)
		if cfg.Valid() {
			t.Fatalf("expected invalid config without %s", key)
		}
		if len(cfg.Map()) != 0 {
			t.Fatalf("expected empty map without %s, got %v", key, cfg.Map())
		}
		if cfg.Connect() != "" {
			t.Fatalf("expected empty connect without %s", key)
		}
	}
}

func TestParseRejectsBlankFields(t *testing.T) {
	bag := validBag()
	bag["password"] = "  "
	if Parse(bag).Valid() {
		t.Fatalf("expected blank password to invalidate config")
	}
	bag = validBag()
	bag["uris"] = " , "
	if Parse(bag).Valid() {
		t.Fatalf("expected empty uri list to invalidate config")
	}
}

func TestParseEndpointsAndTLSOptional(t *testing.T) {
	bag := validBag()
	delete(bag, "endpoints")
	bag["tls"] = "enabled"
	cfg := Parse(bag)
	if !cfg.Valid() {
		t.Fatalf("expected endpoints to be optional")
	}
	if !cfg.TLS {
		t.Fatalf("expected tls enabled")
	}
	if cfg.Map()[TLSKey] != "enabled" {
		t.Fatalf("unexpected tls value %q", cfg.Map()[TLSKey])
	}
}

func TestConnectAppliesChrootOnce(t *testing.T) {
	bag := validBag()
	bag["uris"] = "1.1.1.1:2181,2.2.2.2:2181/kafka"
	if got := Parse(bag).Connect(); got != "1.1.1.1:2181,2.2.2.2:2181/kafka" {
		t.Fatalf("unexpected connect for partially chrooted uris: %q", got)
	}
	bag["uris"] = "1.1.1.1:2181/kafka/kafka"
	if got := Parse(bag).Connect(); got != "1.1.1.1:2181/kafka" {
		t.Fatalf("expected chroot applied once, got %q", got)
	}
}

func TestZeroConfig(t *testing.T) {
	var cfg Config
	if cfg.Valid() || cfg.Connect() != "" || len(cfg.Map()) != 0 {
		t.Fatalf("zero config should be empty")
	}
}
