// Package storage wraps the object store the switch deposits archives into.
// Moves are copy-then-delete and folder moves are per-object, so neither is
// atomic; the pipeline recovers from partial moves by re-checking on retry.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// Client is a thin wrapper over the S3 API scoped to the operations the
// pipeline needs.
type Client struct {
	s3  *s3.Client
	log *slog.Logger
}

// New builds a storage client. endpoint overrides the service URL for local
// stacks and is empty in real deployments.
func New(awsCfg aws.Config, endpoint string, logger *slog.Logger) *Client {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &Client{s3: client, log: logger}
}

// Exists reports whether the object is present. A missing key is a clean
// false, not an error.
func (c *Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey") {
			return false, nil
		}
		return false, fmt.Errorf("failed to head object %s: %w", key, err)
	}
	return true, nil
}

// Download fetches an object's full contents.
func (c *Client) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body %s: %w", key, err)
	}
	return data, nil
}

// Upload writes an object.
func (c *Client) Upload(ctx context.Context, bucket, key string, body []byte) error {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}
	return nil
}

// Delete removes an object.
func (c *Client) Delete(ctx context.Context, bucket, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// List returns every object key under prefix.
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list prefix %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Move relocates one object via copy-then-delete.
func (c *Client) Move(ctx context.Context, bucket, srcKey, dstKey string) error {
	_, err := c.s3.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(bucket),
		CopySource: aws.String(bucket + "/" + srcKey),
		Key:        aws.String(dstKey),
	})
	if err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", srcKey, dstKey, err)
	}
	if err := c.Delete(ctx, bucket, srcKey); err != nil {
		return fmt.Errorf("copied %s but failed to delete the source: %w", srcKey, err)
	}
	c.log.Debug("object moved", "from", srcKey, "to", dstKey)
	return nil
}

// MoveFolder relocates every object under srcPrefix to dstPrefix, keeping
// the relative layout.
func (c *Client) MoveFolder(ctx context.Context, bucket, srcPrefix, dstPrefix string) error {
	keys, err := c.List(ctx, bucket, srcPrefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		dst := dstPrefix + strings.TrimPrefix(key, srcPrefix)
		if err := c.Move(ctx, bucket, key, dst); err != nil {
			return err
		}
	}
	c.log.Debug("folder moved", "from", srcPrefix, "to", dstPrefix, "objects", len(keys))
	return nil
}
