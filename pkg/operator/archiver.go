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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awscredentials "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"

	kafkav1alpha1 "github.com/novatechflow/kafka-operator/api/v1alpha1"
)

const (
	s3AccessKeyEnv     = "KAFKA_OPERATOR_S3_ACCESS_KEY"
	s3SecretKeyEnv     = "KAFKA_OPERATOR_S3_SECRET_KEY"
	s3SessionTokenEnv  = "KAFKA_OPERATOR_S3_SESSION_TOKEN"
	awsAccessKeyEnv    = "AWS_ACCESS_KEY_ID"
	awsSecretKeyEnv    = "AWS_SECRET_ACCESS_KEY"
	awsSessionTokenEnv = "AWS_SESSION_TOKEN"

	latestObject = "LATEST"
)

var errBucketMissing = errors.New("bucket missing")

type archiveS3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// archiveTarget is the resolved S3 location and credentials for one cluster.
type archiveTarget struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// ConfigArchiver uploads every distinct broker configuration render to S3,
// keyed by its content hash, and moves a LATEST pointer to it.
type ConfigArchiver struct {
	Client client.Client
	newAPI func(ctx context.Context, target archiveTarget) (archiveS3API, error)
}

// NewConfigArchiver returns an archiver that reads credential Secrets through c.
func NewConfigArchiver(c client.Client) *ConfigArchiver {
	return &ConfigArchiver{Client: c, newAPI: newArchiveS3API}
}

func newArchiveS3API(ctx context.Context, target archiveTarget) (archiveS3API, error) {
	if target.Region == "" {
		return nil, errors.New("s3 region required")
	}
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(target.Region),
	}
	if target.AccessKeyID != "" && target.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			awscredentials.NewStaticCredentialsProvider(target.AccessKeyID, target.SecretAccessKey, target.SessionToken)))
	}
	if target.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:           target.Endpoint,
					PartitionID:   "aws",
					SigningRegion: target.Region,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		loadOpts = append(loadOpts, config.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = target.Endpoint != ""
	}), nil
}

// Archive uploads files under <prefix>/<namespace>/<cluster>/<hash>/ and then
// points LATEST at hash. Files are uploaded before the pointer moves.
func (a *ConfigArchiver) Archive(ctx context.Context, cluster *kafkav1alpha1.KafkaCluster, hash string, files map[string]string) error {
	if cluster.Spec.Archive == nil {
		return nil
	}
	err := a.archive(ctx, cluster, hash, files)
	if err != nil {
		operatorArchiveResults.WithLabelValues("error").Inc()
		return err
	}
	operatorArchiveResults.WithLabelValues("success").Inc()
	return nil
}

func (a *ConfigArchiver) archive(ctx context.Context, cluster *kafkav1alpha1.KafkaCluster, hash string, files map[string]string) error {
	target, err := a.resolveTarget(ctx, cluster)
	if err != nil {
		return err
	}
	api, err := a.newAPI(ctx, target)
	if err != nil {
		return err
	}
	if parseBoolEnv(operatorArchiveCreateBucketEnv) {
		if err := ensureBucket(ctx, api, target); err != nil {
			return err
		}
	}
	base := archiveBase(target, cluster)
	for _, name := range sortedKeys(files) {
		if err := putObject(ctx, api, target.Bucket, path.Join(base, hash, name), []byte(files[name])); err != nil {
			return err
		}
	}
	return putObject(ctx, api, target.Bucket, path.Join(base, latestObject), []byte(hash))
}

func archiveBase(target archiveTarget, cluster *kafkav1alpha1.KafkaCluster) string {
	parts := []string{cluster.Namespace, cluster.Name}
	if prefix := strings.Trim(target.Prefix, "/"); prefix != "" {
		parts = append([]string{prefix}, parts...)
	}
	return path.Join(parts...)
}

func (a *ConfigArchiver) resolveTarget(ctx context.Context, cluster *kafkav1alpha1.KafkaCluster) (archiveTarget, error) {
	spec := cluster.Spec.Archive
	target := archiveTarget{
		Bucket:   strings.TrimSpace(spec.Bucket),
		Region:   strings.TrimSpace(spec.Region),
		Endpoint: strings.TrimSpace(os.Getenv(operatorArchiveEndpointEnv)),
		Prefix:   spec.Prefix,
	}
	if target.Bucket == "" {
		return target, errors.New("archive bucket is not configured")
	}
	if target.Endpoint == "" {
		target.Endpoint = strings.TrimSpace(spec.Endpoint)
	}
	ref := strings.TrimSpace(spec.CredentialsSecretRef)
	if ref == "" {
		return target, nil
	}
	secret := &corev1.Secret{}
	if err := a.Client.Get(ctx, client.ObjectKey{Namespace: cluster.Namespace, Name: ref}, secret); err != nil {
		if apierrors.IsNotFound(err) {
			return target, fmt.Errorf("s3 credentials secret %s not found", ref)
		}
		return target, err
	}
	target.AccessKeyID = firstSecretValue(secret, s3AccessKeyEnv, awsAccessKeyEnv)
	target.SecretAccessKey = firstSecretValue(secret, s3SecretKeyEnv, awsSecretKeyEnv)
	target.SessionToken = firstSecretValue(secret, s3SessionTokenEnv, awsSessionTokenEnv)
	return target, nil
}

func firstSecretValue(secret *corev1.Secret, keys ...string) string {
	for _, key := range keys {
		if val, ok := secret.Data[key]; ok {
			trimmed := strings.TrimSpace(string(val))
			if trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func ensureBucket(ctx context.Context, api archiveS3API, target archiveTarget) error {
	if err := headBucket(ctx, api, target.Bucket); err == nil {
		return nil
	} else if !errors.Is(err, errBucketMissing) {
		return err
	}
	input := &s3.CreateBucketInput{Bucket: aws.String(target.Bucket)}
	if target.Region != "" && target.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(target.Region),
		}
	}
	if _, err := api.CreateBucket(ctx, input); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
				return nil
			}
		}
		return fmt.Errorf("create bucket %s: %w", target.Bucket, err)
	}
	return nil
}

func headBucket(ctx context.Context, api archiveS3API, bucket string) error {
	_, err := api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchBucket" {
			return errBucketMissing
		}
	}
	return fmt.Errorf("head bucket %s: %w", bucket, err)
}

func putObject(ctx context.Context, api archiveS3API, bucket, key string, body []byte) error {
	_, err := api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}
