// Package archive mirrors completed materializations to S3-compatible
// object storage.
//
// The archive is an optional sink: after a file has been renamed into
// place locally, the same payload is uploaded under the destination path
// as object key. A failed upload never undoes the local materialization
// and never affects other connections; it is logged and the client's file
// remains available on local disk.
//
// Object keys mirror the destination path with the leading "/" stripped
// and an optional configured prefix, so the bucket contents stay
// human-readable and a local tree can be reconstructed from the bucket.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds the S3 connection settings for the archive sink.
type Config struct {
	// Region is the AWS region (required).
	Region string

	// Bucket is the target bucket; it must already exist (required).
	Bucket string

	// KeyPrefix is prepended to every object key.
	KeyPrefix string

	// Endpoint overrides the S3 endpoint for MinIO, Localstack and other
	// compatible stores. Forces path-style addressing.
	Endpoint string

	// AccessKeyID and SecretAccessKey select static credentials. When
	// empty, the default AWS credential chain applies.
	AccessKeyID     string
	SecretAccessKey string
}

// Archiver uploads completed files to object storage.
type Archiver struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// New builds an Archiver from config. It does not touch the network; the
// first Store call surfaces connectivity problems.
func New(ctx context.Context, cfg Config) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("archive: region is required")
	}

	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(cfg.Region))

	if cfg.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck
				return aws.Endpoint{
					URL:               cfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		provider := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(provider))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("archive: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	return &Archiver{
		client:    client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

// Store uploads payload under the object key derived from dstPath.
func (a *Archiver) Store(ctx context.Context, dstPath string, payload []byte) error {
	key := a.ObjectKey(dstPath)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(payload),
	})
	if err != nil {
		return fmt.Errorf("archive %q to s3://%s/%s: %w", dstPath, a.bucket, key, err)
	}
	return nil
}

// ObjectKey maps a destination path to its object key.
func (a *Archiver) ObjectKey(dstPath string) string {
	key := strings.TrimPrefix(path.Clean(strings.ReplaceAll(dstPath, "\\", "/")), "/")
	if a.keyPrefix != "" {
		key = strings.TrimSuffix(a.keyPrefix, "/") + "/" + key
	}
	return key
}
