package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArtifactConfig locates the object store exported reports are copied to.
type ArtifactConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	Region    string `mapstructure:"region" yaml:"region"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
	// Formats lists the exports uploaded for every completed scan.
	Formats []string `mapstructure:"formats" yaml:"formats"`
}

// Uploader stores rendered reports in a MinIO/S3 bucket.
type Uploader struct {
	client *minio.Client
	bucket string
	region string
	prefix string

	mu    sync.Mutex
	ready bool
}

// NewUploader builds an uploader for cfg. No network call is made until the
// first upload, which also creates the bucket if it does not exist.
func NewUploader(cfg ArtifactConfig) (*Uploader, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("artifacts: endpoint and bucket are required")
	}
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("artifacts: creating client: %w", err)
	}
	return &Uploader{client: cli, bucket: cfg.Bucket, region: cfg.Region, prefix: cfg.Prefix}, nil
}

// Key is the object key a report for scanID in format f is stored under.
func (u *Uploader) Key(scanID string, f Format) string {
	return path.Join(u.prefix, scanID, "report"+f.Ext())
}

// Upload renders doc in format f and stores it, returning the object URL.
func (u *Uploader) Upload(ctx context.Context, doc Document, f Format) (string, error) {
	data, contentType, err := Export(doc, f)
	if err != nil {
		return "", err
	}
	if err := u.ensureBucket(ctx); err != nil {
		return "", err
	}

	key := u.Key(doc.ScanID, f)
	_, err = u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("artifacts: uploading %s: %w", key, err)
	}
	return fmt.Sprintf("%s/%s/%s", u.client.EndpointURL(), u.bucket, key), nil
}

// ensureBucket creates the bucket on first use. A failed attempt is retried
// on the next upload.
func (u *Uploader) ensureBucket(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ready {
		return nil
	}
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("artifacts: checking bucket %s: %w", u.bucket, err)
	}
	if !exists {
		if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{Region: u.region}); err != nil {
			return fmt.Errorf("artifacts: creating bucket %s: %w", u.bucket, err)
		}
	}
	u.ready = true
	return nil
}
