// Package download saves the export files of an analysis to disk.
package download

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Veraticus/susa-must-flow/internal/common"
	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/service"
)

// FileName returns the file name part of a storage key.
func FileName(key string) string {
	name := key
	if i := strings.LastIndex(key, "/"); i >= 0 {
		name = key[i+1:]
	}
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `\`) {
		return "download"
	}
	return name
}

// Source retrieves the content behind a storage key.
type Source interface {
	Fetch(ctx context.Context, taskID, key string, dst io.Writer) (int64, error)
}

// GatewaySource downloads through the backend's download endpoint.
type GatewaySource struct {
	gateway service.Gateway
}

// NewGatewaySource creates a source backed by the REST API.
func NewGatewaySource(gw service.Gateway) *GatewaySource {
	return &GatewaySource{gateway: gw}
}

// Fetch implements Source.
func (s *GatewaySource) Fetch(ctx context.Context, taskID, key string, dst io.Writer) (int64, error) {
	return s.gateway.DownloadResult(ctx, taskID, FileName(key), dst)
}

// ObjectStoreConfig locates the bucket holding analysis exports.
type ObjectStoreConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// ObjectStore reads exports straight from S3-compatible storage.
type ObjectStore struct {
	client *minio.Client
	bucket string
}

// NewObjectStore creates an object store source.
func NewObjectStore(cfg ObjectStoreConfig) (*ObjectStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: objectstore.endpoint and objectstore.bucket are required", common.ErrMissingConfig)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return &ObjectStore{client: client, bucket: cfg.Bucket}, nil
}

// Fetch implements Source. The task id is implied by the key.
func (s *ObjectStore) Fetch(ctx context.Context, _ string, key string, dst io.Writer) (int64, error) {
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", key, err)
	}
	defer func() { _ = object.Close() }()

	info, err := object.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", key, err)
	}

	n, err := io.Copy(dst, object)
	if err != nil {
		return n, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if n != info.Size {
		return n, fmt.Errorf("incomplete download of %s: expected %d bytes, received %d", key, info.Size, n)
	}
	return n, nil
}

var (
	_ Source = (*GatewaySource)(nil)
	_ Source = (*ObjectStore)(nil)
)

// requested returns the kinds that have a storage key, in display order.
func requested(files model.ResultFiles, kinds []model.ExportKind) []model.ExportKind {
	want := make(map[model.ExportKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var out []model.ExportKind
	for _, k := range model.AllExportKinds {
		if (len(kinds) == 0 || want[k]) && files.Key(k) != "" {
			out = append(out, k)
		}
	}
	return out
}
