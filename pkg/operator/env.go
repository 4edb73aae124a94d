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
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	operatorBrokerImageEnv         = "KAFKA_OPERATOR_BROKER_IMAGE"
	operatorBrokerPullPolicyEnv    = "KAFKA_OPERATOR_BROKER_IMAGE_PULL_POLICY"
	operatorBrokerHomeEnv          = "KAFKA_OPERATOR_BROKER_HOME"
	operatorEtcdSilenceLogsEnv     = "KAFKA_OPERATOR_ETCD_SILENCE_LOGS"
	operatorCredentialEndpointsEnv = "KAFKA_OPERATOR_CREDENTIAL_ETCD_ENDPOINTS"
	operatorArchiveEndpointEnv     = "KAFKA_OPERATOR_ARCHIVE_S3_ENDPOINT"
	operatorArchiveCreateBucketEnv = "KAFKA_OPERATOR_ARCHIVE_CREATE_BUCKET"
	operatorClientRequeueEnv       = "KAFKA_OPERATOR_CLIENT_REQUEUE_SECONDS"

	defaultClientRequeue = 30 * time.Second
)

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func parseBoolEnv(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseEnvEndpoints(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	return cleanEndpoints(strings.Split(raw, ","))
}

func cleanEndpoints(list []string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func clientRequeueDelay() time.Duration {
	raw := strings.TrimSpace(os.Getenv(operatorClientRequeueEnv))
	if raw == "" {
		return defaultClientRequeue
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		return defaultClientRequeue
	}
	return time.Duration(parsed) * time.Second
}
