package export

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"gfimx/internal/baseline"
	"gfimx/internal/config"
	"gfimx/internal/fault"
)

type fakeStore struct {
	buckets map[string]bool
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{buckets: map[string]bool{}, objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeStore) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeStore) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeStore) PutObject(_ context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if int64(len(data)) != size {
		return minio.UploadInfo{}, errors.New("size mismatch")
	}
	f.objects[bucket+"/"+object] = data
	f.types[bucket+"/"+object] = opts.ContentType
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func TestExportWritesSnapshot(t *testing.T) {
	store := newFakeStore()
	e := NewWithStore(store, "snapshots", "web-01")
	e.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	records := []baseline.Record{{Path: "/etc/hosts", Hash: "abc", Perms: 0o644}}
	key, err := e.Export(context.Background(), records)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if key != "baselines/web-01/20260304T050607Z.json" {
		t.Fatalf("key = %q", key)
	}
	if !store.buckets["snapshots"] {
		t.Fatal("bucket not created")
	}
	var snap Snapshot
	if err := json.Unmarshal(store.objects["snapshots/"+key], &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Agent != "web-01" || snap.Count != 1 || snap.Records[0].Path != "/etc/hosts" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if store.types["snapshots/"+key] != "application/json" {
		t.Fatal("content type not set")
	}
}

func TestExportEmptyBaseline(t *testing.T) {
	store := newFakeStore()
	store.buckets["b"] = true
	key, err := NewWithStore(store, "b", "a").Export(context.Background(), nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(store.objects["b/"+key], &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Records == nil || snap.Count != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestExportUploadFailure(t *testing.T) {
	store := newFakeStore()
	store.putErr = errors.New("denied")
	if _, err := NewWithStore(store, "b", "a").Export(context.Background(), nil); err == nil {
		t.Fatal("expected upload error")
	}
}

func TestNewRequiresEndpoint(t *testing.T) {
	cfg := config.Default()
	cfg.Export.Endpoint = ""
	if _, err := New(&cfg); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("New = %v, want configuration error", err)
	}
}
