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
	"context"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"github.com/twmb/franz-go/pkg/sasl/scram"
	"golang.org/x/crypto/pbkdf2"

	"github.com/novatechflow/kafka-operator/pkg/relation"
)

const (
	// MechanismSCRAMSHA512 is the wire value of SCRAM-SHA-512 in AlterUserSCRAMCredentials.
	MechanismSCRAMSHA512 int8 = 2
	// DefaultSCRAMIterations matches the broker minimum for SCRAM-SHA-512.
	DefaultSCRAMIterations int32 = 4096

	saltLength = 32
)

// Admin provisions SCRAM users and ACLs through the Kafka admin protocol.
type Admin struct {
	client     kmsg.Requestor
	logger     *slog.Logger
	iterations int32
	salt       func() ([]byte, error)
}

// AdminOption customises an Admin.
type AdminOption func(*Admin)

// WithAdminLogger sets the logger used for provisioning messages.
func WithAdminLogger(logger *slog.Logger) AdminOption {
	return func(a *Admin) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithIterations overrides the SCRAM iteration count.
func WithIterations(iterations int32) AdminOption {
	return func(a *Admin) {
		if iterations > 0 {
			a.iterations = iterations
		}
	}
}

// NewAdmin wraps a requestor, typically a *kgo.Client.
func NewAdmin(client kmsg.Requestor, opts ...AdminOption) *Admin {
	a := &Admin{
		client:     client,
		logger:     slog.Default(),
		iterations: DefaultSCRAMIterations,
		salt:       randomSalt,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AdminClientConfig describes how to reach the cluster as the admin account.
type AdminClientConfig struct {
	Brokers     []string
	Username    string
	Password    string
	DialTimeout time.Duration
}

// NewAdminClient dials the cluster with SCRAM-SHA-512 and returns an Admin plus a close func.
func NewAdminClient(cfg AdminClientConfig, opts ...AdminOption) (*Admin, func(), error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil, errors.New("admin client requires at least one broker")
	}
	kopts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.SASL(scram.Auth{User: cfg.Username, Pass: cfg.Password}.AsSha512Mechanism()),
	}
	if cfg.DialTimeout > 0 {
		kopts = append(kopts, kgo.DialTimeout(cfg.DialTimeout))
	}
	cl, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create kafka admin client: %w", err)
	}
	return NewAdmin(cl, opts...), cl.Close, nil
}

// ListACLs returns every ACL bound to principal.
func (a *Admin) ListACLs(ctx context.Context, principal string) ([]ACL, error) {
	req := kmsg.NewPtrDescribeACLsRequest()
	req.ResourceType = kmsg.ACLResourceTypeAny
	req.ResourcePatternType = kmsg.ACLResourcePatternTypeAny
	req.Principal = kmsg.StringPtr(principal)
	req.Operation = kmsg.ACLOperationAny
	req.PermissionType = kmsg.ACLPermissionTypeAny
	resp, err := req.RequestWith(ctx, a.client)
	if err != nil {
		return nil, fmt.Errorf("describe acls for %s: %w", principal, err)
	}
	if err := responseError(resp.ErrorCode, resp.ErrorMessage); err != nil {
		return nil, fmt.Errorf("describe acls for %s: %w", principal, err)
	}
	set := make(map[ACL]struct{})
	for _, resource := range resp.Resources {
		for _, entry := range resource.ACLs {
			set[ACL{
				ResourceType: resource.ResourceType,
				ResourceName: resource.ResourceName,
				PatternType:  resource.ResourcePatternType,
				Principal:    entry.Principal,
				Host:         entry.Host,
				Operation:    entry.Operation,
				Permission:   entry.PermissionType,
			}] = struct{}{}
		}
	}
	return sortACLs(set), nil
}

// CreateACLs adds the given rules.
func (a *Admin) CreateACLs(ctx context.Context, acls []ACL) error {
	if len(acls) == 0 {
		return nil
	}
	req := kmsg.NewPtrCreateACLsRequest()
	for _, acl := range acls {
		creation := kmsg.NewCreateACLsRequestCreation()
		creation.ResourceType = acl.ResourceType
		creation.ResourceName = acl.ResourceName
		creation.ResourcePatternType = acl.PatternType
		creation.Principal = acl.Principal
		creation.Host = acl.Host
		creation.Operation = acl.Operation
		creation.PermissionType = acl.Permission
		req.Creations = append(req.Creations, creation)
	}
	resp, err := req.RequestWith(ctx, a.client)
	if err != nil {
		return fmt.Errorf("create acls: %w", err)
	}
	var errs []error
	for i, result := range resp.Results {
		if err := responseError(result.ErrorCode, result.ErrorMessage); err != nil && i < len(acls) {
			errs = append(errs, fmt.Errorf("create acl %s: %w", acls[i], err))
		}
	}
	return errors.Join(errs...)
}

// DeleteACLs removes the given rules, matching each one exactly.
func (a *Admin) DeleteACLs(ctx context.Context, acls []ACL) error {
	if len(acls) == 0 {
		return nil
	}
	req := kmsg.NewPtrDeleteACLsRequest()
	for _, acl := range acls {
		filter := kmsg.NewDeleteACLsRequestFilter()
		filter.ResourceType = acl.ResourceType
		filter.ResourceName = kmsg.StringPtr(acl.ResourceName)
		filter.ResourcePatternType = acl.PatternType
		filter.Principal = kmsg.StringPtr(acl.Principal)
		filter.Host = kmsg.StringPtr(acl.Host)
		filter.Operation = acl.Operation
		filter.PermissionType = acl.Permission
		req.Filters = append(req.Filters, filter)
	}
	resp, err := req.RequestWith(ctx, a.client)
	if err != nil {
		return fmt.Errorf("delete acls: %w", err)
	}
	var errs []error
	for i, result := range resp.Results {
		if err := responseError(result.ErrorCode, result.ErrorMessage); err != nil && i < len(acls) {
			errs = append(errs, fmt.Errorf("delete acl %s: %w", acls[i], err))
		}
	}
	return errors.Join(errs...)
}

// UpsertSCRAM creates or replaces the SCRAM-SHA-512 credential of user.
func (a *Admin) UpsertSCRAM(ctx context.Context, user, password string) error {
	salt, err := a.salt()
	if err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	upsert := kmsg.NewAlterUserSCRAMCredentialsRequestUpsertion()
	upsert.Name = user
	upsert.Mechanism = MechanismSCRAMSHA512
	upsert.Iterations = a.iterations
	upsert.Salt = salt
	upsert.SaltedPassword = SaltedPassword(password, salt, a.iterations)
	req := kmsg.NewPtrAlterUserSCRAMCredentialsRequest()
	req.Upsertions = append(req.Upsertions, upsert)
	return a.alterSCRAM(ctx, req, user)
}

// DeleteSCRAM removes the SCRAM-SHA-512 credential of user. A missing credential is not an error.
func (a *Admin) DeleteSCRAM(ctx context.Context, user string) error {
	deletion := kmsg.NewAlterUserSCRAMCredentialsRequestDeletion()
	deletion.Name = user
	deletion.Mechanism = MechanismSCRAMSHA512
	req := kmsg.NewPtrAlterUserSCRAMCredentialsRequest()
	req.Deletions = append(req.Deletions, deletion)
	err := a.alterSCRAM(ctx, req, user)
	if errors.Is(err, kerr.ResourceNotFound) {
		return nil
	}
	return err
}

func (a *Admin) alterSCRAM(ctx context.Context, req *kmsg.AlterUserSCRAMCredentialsRequest, user string) error {
	resp, err := req.RequestWith(ctx, a.client)
	if err != nil {
		return fmt.Errorf("alter scram credentials for %s: %w", user, err)
	}
	for _, result := range resp.Results {
		if err := responseError(result.ErrorCode, result.ErrorMessage); err != nil {
			return fmt.Errorf("alter scram credentials for %s: %w", result.User, err)
		}
	}
	return nil
}

// SyncClient makes the cluster match a client grant: its user exists with password
// and it holds exactly the ACLs its roles entitle it to.
func (a *Admin) SyncClient(ctx context.Context, grant relation.ClientGrant, password string) error {
	username := grant.Username()
	if err := a.UpsertSCRAM(ctx, username, password); err != nil {
		return err
	}
	current, err := a.ListACLs(ctx, Principal(username))
	if err != nil {
		return err
	}
	add, remove := DiffACLs(current, DesiredACLs(grant))
	if err := a.CreateACLs(ctx, add); err != nil {
		return err
	}
	if err := a.DeleteACLs(ctx, remove); err != nil {
		return err
	}
	if len(add) > 0 || len(remove) > 0 {
		a.logger.Info("client acls updated", "user", username, "added", len(add), "removed", len(remove), "roles", strings.Join(grant.RoleList(), ","))
	}
	return nil
}

// RemoveClient drops every ACL and the SCRAM credential of a client grant.
func (a *Admin) RemoveClient(ctx context.Context, grant relation.ClientGrant) error {
	username := grant.Username()
	current, err := a.ListACLs(ctx, Principal(username))
	if err != nil {
		return err
	}
	if err := a.DeleteACLs(ctx, current); err != nil {
		return err
	}
	if err := a.DeleteSCRAM(ctx, username); err != nil {
		return err
	}
	a.logger.Info("client removed", "user", username, "acls", len(current))
	return nil
}

// SaltedPassword derives the SCRAM-SHA-512 salted password.
func SaltedPassword(password string, salt []byte, iterations int32) []byte {
	return pbkdf2.Key([]byte(password), salt, int(iterations), sha512.Size, sha512.New)
}

func randomSalt() ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

func responseError(code int16, message *string) error {
	err := kerr.ErrorForCode(code)
	if err == nil {
		return nil
	}
	if message != nil && *message != "" {
		return fmt.Errorf("%w: %s", err, *message)
	}
	return err
}
