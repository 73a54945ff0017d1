package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"driveprov/internal/config"
	"driveprov/internal/model"
)

// Object layout inside the bucket. Names are path-escaped so they stay a single key segment.
//
//	containers/<name>/<container-id>          one empty object per container
//	documents/<document-id>                    document body, name in user metadata
//	members/<container-id>/<name>/<doc-id>     one empty object per membership edge
const (
	containersPrefix = "containers/"
	documentsPrefix  = "documents/"
	membersPrefix    = "members/"

	spreadsheetContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// minioStorage implements Store on an S3-compatible backend (MinIO, AWS S3, etc.).
// Listing order is lexicographic by key, which is the store-defined order for Find*.
type minioStorage struct {
	client *minio.Client
	bucket string
}

var _ Store = (*minioStorage)(nil)

// NewMinIO creates a new S3-compatible Store backed by MinIO.
// It validates connectivity and ensures the bucket exists (creates it if missing).
func NewMinIO(cfg config.MinIOConfig) (Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &minioStorage{client: cli, bucket: cfg.Bucket}, nil
}

func containerPrefix(name string) string {
	return containersPrefix + url.PathEscape(name) + "/"
}

func memberPrefix(containerID, name string) string {
	return membersPrefix + containerID + "/" + url.PathEscape(name) + "/"
}

// listIDs returns the last key segment of every object under prefix.
func (m *minioStorage) listIDs(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ids []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		ids = append(ids, path.Base(obj.Key))
	}
	return ids, nil
}

func (m *minioStorage) putEmpty(ctx context.Context, key, contentType string, meta map[string]string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(nil), 0, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: meta,
	})
	return err
}

func (m *minioStorage) FindContainers(ctx context.Context, name string) ([]model.Container, error) {
	ids, err := m.listIDs(ctx, containerPrefix(name))
	if err != nil {
		return nil, storeErr("find containers", err)
	}
	out := make([]model.Container, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Container{ID: id, Name: name})
	}
	return out, nil
}

func (m *minioStorage) CreateContainer(ctx context.Context, name string) (model.Container, error) {
	c := model.Container{ID: uuid.NewString(), Name: name}
	if err := m.putEmpty(ctx, containerPrefix(name)+c.ID, "application/x-directory", nil); err != nil {
		return model.Container{}, storeErr("create container", err)
	}
	return c, nil
}

func (m *minioStorage) FindDocuments(ctx context.Context, c model.Container, name string) ([]model.Document, error) {
	ids, err := m.listIDs(ctx, memberPrefix(c.ID, name))
	if err != nil {
		return nil, storeErr("find documents", err)
	}
	out := make([]model.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Document{ID: id, Name: name})
	}
	return out, nil
}

// CreateDocument writes the root membership edge before the document body, so a body
// never exists without an edge. If the body write fails the edge is rolled back.
func (m *minioStorage) CreateDocument(ctx context.Context, name string) (model.Document, error) {
	d := model.Document{ID: uuid.NewString(), Name: name}
	edge := memberPrefix(RootID, name) + d.ID
	if err := m.putEmpty(ctx, edge, "", nil); err != nil {
		return model.Document{}, storeErr("create document", err)
	}
	if err := m.putEmpty(ctx, documentsPrefix+d.ID, spreadsheetContentType, map[string]string{"name": name}); err != nil {
		_ = m.client.RemoveObject(ctx, m.bucket, edge, minio.RemoveObjectOptions{})
		return model.Document{}, storeErr("create document", err)
	}
	return d, nil
}

func (m *minioStorage) Root(context.Context) (model.Container, error) {
	return model.Container{ID: RootID, Name: m.bucket}, nil
}

func (m *minioStorage) AddToContainer(ctx context.Context, d model.Document, c model.Container) error {
	return storeErr("add to container", m.putEmpty(ctx, memberPrefix(c.ID, d.Name)+d.ID, "", nil))
}

func (m *minioStorage) RemoveFromContainer(ctx context.Context, d model.Document, c model.Container) error {
	err := m.client.RemoveObject(ctx, m.bucket, memberPrefix(c.ID, d.Name)+d.ID, minio.RemoveObjectOptions{})
	return storeErr("remove from container", err)
}
