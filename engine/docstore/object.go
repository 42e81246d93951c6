package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/AlphaAgentAI/alphaagent-mvp/engine/domain"
)

// ObjectConfig configures the S3-compatible object store backend.
type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// Object is a Store backed by an S3-compatible object API. The same
// documents written to the share over NFS/SMB are readable here as objects;
// the engine does not care which path they arrived by.
type Object struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewObject creates an object store client.
func NewObject(cfg ObjectConfig) (*Object, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("docstore: object endpoint and credentials are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("docstore: object client %s: %w", cfg.Endpoint, err)
	}
	return &Object{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// List enumerates objects under the configured prefix.
func (s *Object) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	opts := minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true}
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("docstore: list bucket %s: %w", s.bucket, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		entries = append(entries, Entry{
			Key:  strings.TrimPrefix(obj.Key, s.prefix),
			Size: obj.Size,
		})
	}
	return entries, nil
}

// Read fetches one object's bytes.
func (s *Object) Read(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.prefix+key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("docstore: get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("docstore: get object %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("docstore: get object %s: %w", key, err)
	}
	return data, nil
}
