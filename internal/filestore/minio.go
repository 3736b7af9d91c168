// Package filestore checks opaque file references against an S3-compatible
// object store. File bytes are never read.
package filestore

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

type MinioChecker struct {
	client *minio.Client
	bucket string
}

func NewMinioChecker(opts Options) (*MinioChecker, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioChecker{client: client, bucket: opts.Bucket}, nil
}

// Exists reports whether fileID names an object in the bucket.
func (c *MinioChecker) Exists(ctx context.Context, fileID string) (bool, error) {
	objectName := strings.TrimPrefix(fileID, "/")
	if objectName == "" {
		return false, nil
	}
	_, err := c.client.StatObject(ctx, c.bucket, objectName, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || (resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket") {
		return false, nil
	}
	return false, fmt.Errorf("stat object %s: %w", objectName, err)
}
