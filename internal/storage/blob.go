package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob" // GCS driver
	_ "gocloud.dev/blob/s3blob"  // S3 driver
)

// BlobStore writes output files to a gocloud bucket.
type BlobStore struct {
	bucket *blob.Bucket
	base   string // URI of the bucket root, e.g. gs://name
	prefix string
}

// NewGCSStore creates a new GCS store.
// Uses Application Default Credentials (ADC) for authentication.
func NewGCSStore(ctx context.Context, bucketName, prefix string) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, fmt.Sprintf("gs://%s", bucketName))
	if err != nil {
		return nil, fmt.Errorf("open GCS bucket %s: %w", bucketName, err)
	}
	return NewBlobStore(bucket, "gs://"+bucketName, prefix), nil
}

// NewS3Store creates a new S3-compatible store.
// Works with AWS S3, Backblaze B2, Cloudflare R2, and MinIO.
func NewS3Store(ctx context.Context, bucketName, prefix, endpoint, region string) (*BlobStore, error) {
	bucketURL := fmt.Sprintf("s3://%s", bucketName)

	params := url.Values{}
	if region != "" {
		params.Set("region", region)
	}
	if endpoint != "" {
		params.Set("endpoint", endpoint)
		params.Set("s3ForcePathStyle", "true")
	}
	if len(params) > 0 {
		bucketURL = bucketURL + "?" + params.Encode()
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open S3 bucket %s: %w", bucketName, err)
	}
	return NewBlobStore(bucket, "s3://"+bucketName, prefix), nil
}

// NewBlobStore wraps an opened bucket. base is used to build URIs.
func NewBlobStore(bucket *blob.Bucket, base, prefix string) *BlobStore {
	return &BlobStore{bucket: bucket, base: strings.TrimSuffix(base, "/"), prefix: prefix}
}

func (s *BlobStore) key(key string) string { return s.prefix + key }

// Write writes data under key.
func (s *BlobStore) Write(ctx context.Context, key string, data []byte) error {
	return s.put(ctx, s.key(key), data)
}

func (s *BlobStore) put(ctx context.Context, path string, data []byte) error {
	w, err := s.bucket.NewWriter(ctx, path, nil)
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", path, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", path, err)
	}
	return nil
}

// Exists checks if key is present.
func (s *BlobStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.bucket.Exists(ctx, s.key(key))
}

// URI returns the canonical URI for the given key.
func (s *BlobStore) URI(key string) string {
	return fmt.Sprintf("%s/%s", s.base, s.key(key))
}

// Close releases the bucket connection.
func (s *BlobStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

// WriteTemp writes data to a temporary key next to key.
func (s *BlobStore) WriteTemp(ctx context.Context, key string, data []byte) (string, error) {
	tempKey := s.key(key) + ".tmp." + uuid.New().String()
	if err := s.put(ctx, tempKey, data); err != nil {
		return "", err
	}
	return tempKey, nil
}

// Finalize copies temp objects to their final keys, then deletes them.
func (s *BlobStore) Finalize(ctx context.Context, tempKeys, finalKeys []string) error {
	if len(tempKeys) != len(finalKeys) {
		return fmt.Errorf("expected %d temp keys, got %d", len(finalKeys), len(tempKeys))
	}
	for i, tempKey := range tempKeys {
		finalKey := s.key(finalKeys[i])
		if err := s.copyObject(ctx, tempKey, finalKey); err != nil {
			s.Abort(ctx, tempKeys)
			return fmt.Errorf("finalize %s -> %s: %w", tempKey, finalKey, err)
		}
	}
	for _, tempKey := range tempKeys {
		s.bucket.Delete(ctx, tempKey) // ignore errors
	}
	return nil
}

func (s *BlobStore) copyObject(ctx context.Context, srcKey, dstKey string) error {
	r, err := s.bucket.NewReader(ctx, srcKey, nil)
	if err != nil {
		return fmt.Errorf("open source %s: %w", srcKey, err)
	}
	defer r.Close()

	w, err := s.bucket.NewWriter(ctx, dstKey, nil)
	if err != nil {
		return fmt.Errorf("create destination %s: %w", dstKey, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("copy to %s: %w", dstKey, err)
	}
	return w.Close()
}

// Abort removes temporary files without publishing.
func (s *BlobStore) Abort(ctx context.Context, tempKeys []string) error {
	var lastErr error
	for _, key := range tempKeys {
		if err := s.bucket.Delete(ctx, key); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Head returns metadata about a stored object.
func (s *BlobStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	attrs, err := s.bucket.Attributes(ctx, s.key(key))
	if err != nil {
		return nil, fmt.Errorf("get attributes for %s: %w", key, err)
	}
	return &ObjectInfo{
		Key:     key,
		Size:    attrs.Size,
		ETag:    attrs.ETag,
		ModTime: attrs.ModTime,
	}, nil
}

// List returns all keys with the given prefix, relative to the store prefix.
func (s *BlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.bucket.List(&blob.ListOptions{Prefix: s.key(prefix)})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		if obj.IsDir || strings.Contains(obj.Key, ".tmp.") {
			continue
		}
		keys = append(keys, strings.TrimPrefix(obj.Key, s.prefix))
	}
	return keys, nil
}

// Verify BlobStore implements AtomicStore.
var _ AtomicStore = (*BlobStore)(nil)
