// Package storage publishes the output files of a run to a local directory
// or an object store bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrOutputExists is returned by Publish when overwriting is disabled and a
// target key is already present.
var ErrOutputExists = errors.New("output already exists")

// Store abstracts writing output files.
type Store interface {
	// Write writes data under key, replacing any existing object.
	Write(ctx context.Context, key string, data []byte) error

	// Exists checks if key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// URI returns the canonical URI for the given key.
	// For local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path
	URI(key string) string

	// Close releases any resources.
	Close() error
}

// AtomicStore extends Store with a two step publish, so a run never leaves
// a mix of old and new outputs behind.
type AtomicStore interface {
	Store

	// WriteTemp writes data to a temporary location next to key.
	// Returns the temp key that can be passed to Finalize.
	WriteTemp(ctx context.Context, key string, data []byte) (tempKey string, err error)

	// Finalize moves temp files to their canonical keys. finalKeys[i] is the
	// destination of tempKeys[i].
	// For object stores this is copy+delete; for local filesystem it's rename.
	Finalize(ctx context.Context, tempKeys, finalKeys []string) error

	// Abort removes temporary files without publishing.
	Abort(ctx context.Context, tempKeys []string) error

	// Head returns metadata about a stored object.
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key     string
	Size    int64
	ETag    string // MD5 for S3/GCS, empty for local
	ModTime time.Time
}

// Config configures the storage backend.
type Config struct {
	Backend string // "local" | "gcs" | "s3"

	// Local filesystem
	LocalDir string

	// GCS or S3 (also works for B2, R2, MinIO)
	Bucket   string
	Endpoint string // custom S3 endpoint for B2/MinIO/R2
	Region   string

	// Common
	Prefix string // path prefix within bucket or local dir, e.g. "opsd/2019-06-05/"
}

// New creates a storage backend based on configuration.
// All supported backends (local, gcs, s3) implement AtomicStore.
func New(ctx context.Context, cfg Config) (AtomicStore, error) {
	switch cfg.Backend {
	case "local":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		return NewLocalStore(cfg.LocalDir, cfg.Prefix)
	case "gcs":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("Bucket required for gcs backend")
		}
		return NewGCSStore(ctx, cfg.Bucket, cfg.Prefix)
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("Bucket required for s3 backend")
		}
		return NewS3Store(ctx, cfg.Bucket, cfg.Prefix, cfg.Endpoint, cfg.Region)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// Object is one file to publish.
type Object struct {
	Key  string
	Data []byte
}

// PublishResult lists the published objects.
type PublishResult struct {
	Keys  []string
	URIs  []string
	Bytes int64
}

// Publish writes every object to a temporary key and then finalizes them
// together. If overwrite is false and any key exists, nothing is written.
func Publish(ctx context.Context, s AtomicStore, objs []Object, overwrite bool) (*PublishResult, error) {
	if !overwrite {
		for _, o := range objs {
			exists, err := s.Exists(ctx, o.Key)
			if err != nil {
				return nil, fmt.Errorf("check %s: %w", o.Key, err)
			}
			if exists {
				return nil, fmt.Errorf("%w: %s", ErrOutputExists, s.URI(o.Key))
			}
		}
	}

	res := &PublishResult{}
	tempKeys := make([]string, 0, len(objs))
	for _, o := range objs {
		tmp, err := s.WriteTemp(ctx, o.Key, o.Data)
		if err != nil {
			s.Abort(ctx, tempKeys)
			return nil, fmt.Errorf("write %s: %w", o.Key, err)
		}
		tempKeys = append(tempKeys, tmp)
		res.Keys = append(res.Keys, o.Key)
		res.URIs = append(res.URIs, s.URI(o.Key))
		res.Bytes += int64(len(o.Data))
	}
	if err := s.Finalize(ctx, tempKeys, res.Keys); err != nil {
		return nil, err
	}
	return res, nil
}
