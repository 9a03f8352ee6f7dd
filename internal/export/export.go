// Package export uploads baseline snapshots to S3-compatible object storage.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"gfimx/internal/baseline"
	"gfimx/internal/config"
	"gfimx/internal/fault"
)

// ObjectStore is the subset of *minio.Client used by the exporter.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Snapshot is the document written for one export.
type Snapshot struct {
	Agent      string            `json:"agent"`
	ExportedAt time.Time         `json:"exported_at"`
	Count      int               `json:"count"`
	Records    []baseline.Record `json:"records"`
}

// Exporter writes snapshots under baselines/<agent>/ in one bucket.
type Exporter struct {
	store  ObjectStore
	bucket string
	agent  string
	now    func() time.Time
}

// New connects to the endpoint in cfg.Export.
func New(cfg *config.Config) (*Exporter, error) {
	if !cfg.ExportEnabled() {
		return nil, fault.Wrap(fault.ErrConfiguration, "export", "connect", "export.endpoint is not set", nil)
	}
	mc, err := minio.New(cfg.Export.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Export.AccessKey, cfg.Export.SecretKey, ""),
		Secure: cfg.Export.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return NewWithStore(mc, cfg.Export.Bucket, cfg.Agent.Name), nil
}

// NewWithStore builds an exporter on an existing object store.
func NewWithStore(store ObjectStore, bucket, agent string) *Exporter {
	return &Exporter{store: store, bucket: bucket, agent: agent, now: time.Now}
}

// ObjectKey returns the key a snapshot taken at t is stored under.
func ObjectKey(agent string, t time.Time) string {
	return path.Join("baselines", agent, t.UTC().Format("20060102T150405Z")+".json")
}

// EnsureBucket creates the bucket when it does not exist.
func (e *Exporter) EnsureBucket(ctx context.Context) error {
	exists, err := e.store.BucketExists(ctx, e.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := e.store.MakeBucket(ctx, e.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// Export uploads records as one JSON snapshot and returns its object key.
func (e *Exporter) Export(ctx context.Context, records []baseline.Record) (string, error) {
	if err := e.EnsureBucket(ctx); err != nil {
		return "", err
	}
	snap := Snapshot{Agent: e.agent, ExportedAt: e.now().UTC(), Count: len(records), Records: records}
	if snap.Records == nil {
		snap.Records = []baseline.Record{}
	}
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	key := ObjectKey(e.agent, snap.ExportedAt)
	_, err = e.store.PutObject(ctx, e.bucket, key, bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	return key, nil
}
