// Package s3blob stores execution exports and record archives in
// S3-compatible object storage (AWS S3, MinIO, R2) via AWS SDK v2.
package s3blob

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig holds the connection settings for the object store.
type ClientConfig struct {
	// Endpoint overrides the AWS endpoint for S3-compatible providers.
	Endpoint string
	Region   string
	Bucket   string

	AccessKey string
	SecretKey string

	// UseSSL picks the scheme when Endpoint has none.
	UseSSL bool
	// ForcePathStyle puts the bucket in the path, as MinIO expects.
	ForcePathStyle bool
}

// Client wraps the SDK client together with the bucket every reader and
// writer in this package operates on.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New builds a Client with static credentials.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(normaliseEndpoint(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return &Client{s3: client, bucket: cfg.Bucket}, nil
}

// Health issues HeadBucket to verify access to the bucket.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("s3blob: head bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// normaliseEndpoint prefixes a scheme when endpoint has none.
func normaliseEndpoint(endpoint string, useSSL bool) string {
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
