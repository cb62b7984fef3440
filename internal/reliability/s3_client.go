// Package reliability provides backup and maintenance services for the tender store.
package reliability

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/aristath/tender/internal/config"
)

// S3Client stores backup archives in an S3-compatible bucket
type S3Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	log      zerolog.Logger
}

// NewS3Client creates a client from backup configuration.
// Static credentials are used when configured; otherwise the default AWS chain applies.
func NewS3Client(ctx context.Context, cfg config.BackupConfig, log zerolog.Logger) (*S3Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return newS3Client(client, cfg.Bucket, cfg.Prefix, log), nil
}

func newS3Client(client *s3.Client, bucket, prefix string, log zerolog.Logger) *S3Client {
	return &S3Client{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
		log:      log.With().Str("component", "s3_client").Logger(),
	}
}

// Bucket returns the configured bucket name
func (c *S3Client) Bucket() string {
	return c.bucket
}

// Upload streams body to <prefix><name>
func (c *S3Client) Upload(ctx context.Context, name string, body io.Reader) error {
	key := c.prefix + name
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	c.log.Debug().Str("key", key).Msg("Uploaded object")
	return nil
}

// List returns objects under <prefix><namePrefix> sorted by key.
// Returned keys have the client prefix stripped.
func (c *S3Client) List(ctx context.Context, namePrefix string) ([]types.Object, error) {
	fullPrefix := c.prefix + namePrefix
	var objects []types.Object
	var token *string
	for {
		out, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(c.bucket),
			Prefix:            aws.String(fullPrefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", fullPrefix, err)
		}
		for _, obj := range out.Contents {
			if obj.Key != nil {
				obj.Key = aws.String(strings.TrimPrefix(aws.ToString(obj.Key), c.prefix))
			}
			objects = append(objects, obj)
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}

	sort.Slice(objects, func(i, j int) bool {
		return aws.ToString(objects[i].Key) < aws.ToString(objects[j].Key)
	})
	return objects, nil
}

// Delete removes <prefix><name>
func (c *S3Client) Delete(ctx context.Context, name string) error {
	key := c.prefix + name
	if _, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
