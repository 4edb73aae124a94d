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

// Package zookeeper validates the coordination service relation before any
// of it is used to configure brokers.
package zookeeper

import (
	"strings"

	"github.com/novatechflow/kafka-operator/pkg/relation"
)

// Relation keys published by the coordination service.
const (
	ChrootKey    = "chroot"
	UsernameKey  = "username"
	PasswordKey  = "password"
	EndpointsKey = "endpoints"
	URIsKey      = "uris"
	TLSKey       = "tls"
	ConnectKey   = "connect"
)

// Config is a fully populated coordination service relation. The zero value
// means "not connected".
type Config struct {
	Chroot    string
	Username  string
	Password  string
	Endpoints []string
	URIs      []string
	TLS       bool
}

// Parse returns the relation as a Config only when every required field is
// present. Partial data yields the zero Config.
func Parse(bag relation.Bag) Config {
	if !relation.ZookeeperComplete(bag) {
		return Config{}
	}
	uris := splitList(bag.Value(URIsKey))
	if len(uris) == 0 {
		return Config{}
	}
	return Config{
		Chroot:    bag.Value(ChrootKey),
		Username:  bag.Value(UsernameKey),
		Password:  bag.Value(PasswordKey),
		Endpoints: splitList(bag.Value(EndpointsKey)),
		URIs:      uris,
		TLS:       strings.EqualFold(bag.Value(TLSKey), "enabled"),
	}
}

// Valid reports whether the config came from a complete relation.
func (c Config) Valid() bool {
	return c.Chroot != "" && c.Username != "" && c.Password != "" && len(c.URIs) > 0
}

// Connect renders the zookeeper.connect value: hosts joined by commas with the
// chroot applied once at the end, however many URIs already carried it.
func (c Config) Connect() string {
	if !c.Valid() {
		return ""
	}
	hosts := make([]string, 0, len(c.URIs))
	for _, uri := range c.URIs {
		host := strings.TrimSpace(uri)
		for strings.HasSuffix(host, c.Chroot) && host != c.Chroot {
			host = strings.TrimSuffix(host, c.Chroot)
		}
		if host != "" {
			hosts = append(hosts, host)
		}
	}
	return strings.Join(hosts, ",") + c.Chroot
}

// Map returns the relation fields plus the derived connect string, or an
// empty map when the config is not valid.
func (c Config) Map() map[string]string {
	if !c.Valid() {
		return map[string]string{}
	}
	tls := "disabled"
	if c.TLS {
		tls = "enabled"
	}
	return map[string]string{
		ChrootKey:    c.Chroot,
		UsernameKey:  c.Username,
		PasswordKey:  c.Password,
		EndpointsKey: strings.Join(c.Endpoints, ","),
		URIsKey:      strings.Join(c.URIs, ","),
		TLSKey:       tls,
		ConnectKey:   c.Connect(),
	}
}

func splitList(raw string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
