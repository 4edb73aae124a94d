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

package operator

import (
	"reflect"
	"testing"
	"time"
)

func TestClientRequeueDelay(t *testing.T) {
	t.Setenv(operatorClientRequeueEnv, "")
	if got := clientRequeueDelay(); got != defaultClientRequeue {
		t.Fatalf("expected default, got %v", got)
	}
	t.Setenv(operatorClientRequeueEnv, "12")
	if got := clientRequeueDelay(); got != 12*time.Second {
		t.Fatalf("expected 12s, got %v", got)
	}
	t.Setenv(operatorClientRequeueEnv, "-3")
	if got := clientRequeueDelay(); got != defaultClientRequeue {
		t.Fatalf("expected default for negative values, got %v", got)
	}
}

func TestParseEnvEndpoints(t *testing.T) {
	t.Setenv(operatorCredentialEndpointsEnv, " http://a:2379, ,http://b:2379 ")
	got := parseEnvEndpoints(operatorCredentialEndpointsEnv)
	if !reflect.DeepEqual(got, []string{"http://a:2379", "http://b:2379"}) {
		t.Fatalf("unexpected endpoints %v", got)
	}
	t.Setenv(operatorEtcdSilenceLogsEnv, "Yes")
	if !parseBoolEnv(operatorEtcdSilenceLogsEnv) {
		t.Fatalf("expected yes to parse as true")
	}
}
