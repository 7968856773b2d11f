package reliability

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStoreConfig configures the S3-compatible bucket backups ship to.
// Endpoint is set for S3-compatible providers (Cloudflare R2, MinIO,
// Backblaze B2); leave empty to use AWS S3 itself.
type ObjectStoreConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// ObjectStoreClient wraps an S3-compatible client with the narrow
// upload/list/delete surface the backup service needs, generalizing the
// teacher's R2Client (Cloudflare-specific) to any S3-compatible endpoint
// via aws-sdk-go-v2's custom base-endpoint option.
type ObjectStoreClient struct {
	client *s3.Client
	bucket string
}

// NewObjectStoreClient builds a client from static credentials and an
// optional custom endpoint.
func NewObjectStoreClient(ctx context.Context, cfg ObjectStoreConfig) (*ObjectStoreClient, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load object store config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &ObjectStoreClient{client: client, bucket: cfg.Bucket}, nil
}

// Upload streams an object of known size to the bucket under key, using
// the multipart manager so large archives don't have to fit in memory.
func (c *ObjectStoreClient) Upload(ctx context.Context, key string, body io.Reader, size int64) error {
	uploader := manager.NewUploader(c.client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// ObjectInfo is one listed bucket entry.
type ObjectInfo struct {
	Key  string
	Size int64
}

// List returns every object whose key carries the given prefix.
func (c *ObjectStoreClient) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			info := ObjectInfo{Key: *obj.Key}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			out = append(out, info)
		}
	}
	return out, nil
}

// Delete removes one object by key.
func (c *ObjectStoreClient) Delete(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
