package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // local directories
	_ "gocloud.dev/blob/gcsblob"  // GCS driver
	_ "gocloud.dev/blob/s3blob"   // S3 driver

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/catalog"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/logging"
)

// DefaultMinSize is the size below which raw files are skipped.
const DefaultMinSize = 128

// Fetcher reads raw files from a bucket laid out as {source}/{variable}/{file}.
// The bucket URL selects the driver: file:///path, gs://bucket, s3://bucket.
type Fetcher struct {
	bucket  *blob.Bucket
	decoder *Decoder
	minSize int64
	log     *slog.Logger
}

// NewFetcher opens the bucket at bucketURL.
func NewFetcher(ctx context.Context, bucketURL string, minSize int64) (*Fetcher, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open raw bucket %s: %w", bucketURL, err)
	}
	return newFetcher(bucket, minSize)
}

// NewFetcherFromBucket wraps an already opened bucket.
func NewFetcherFromBucket(bucket *blob.Bucket, minSize int64) (*Fetcher, error) {
	return newFetcher(bucket, minSize)
}

func newFetcher(bucket *blob.Bucket, minSize int64) (*Fetcher, error) {
	decoder, err := NewDecoder()
	if err != nil {
		bucket.Close()
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	return &Fetcher{
		bucket:  bucket,
		decoder: decoder,
		minSize: minSize,
		log:     logging.Component("fetcher"),
	}, nil
}

// List returns the raw files of e in key order, including those too small
// to read.
func (f *Fetcher) List(ctx context.Context, e *catalog.Entry) ([]Object, error) {
	iter := f.bucket.List(&blob.ListOptions{Prefix: Prefix(e)})

	var objs []Object
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", Prefix(e), err)
		}
		if obj.IsDir || !Matches(e, obj.Key) {
			continue
		}
		objs = append(objs, Object{Key: obj.Key, Size: obj.Size})
	}
	SortObjects(objs)
	return objs, nil
}

// Fetch reads every raw file of e. Files below the minimum size are logged
// and skipped.
func (f *Fetcher) Fetch(ctx context.Context, e *catalog.Entry) ([]File, error) {
	objs, err := f.List(ctx, e)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		f.log.Warn("no raw files found", "source", e.Source, "variable", e.Variable, "prefix", Prefix(e))
		return nil, nil
	}

	files := make([]File, 0, len(objs))
	for _, obj := range objs {
		file, err := f.Read(ctx, e, obj)
		if errors.Is(err, ErrFileTooSmall) {
			f.log.Info("skipping file, probably empty", "key", obj.Key, "bytes", obj.Size)
			continue
		}
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

// Read reads one object, decompressing it if needed.
func (f *Fetcher) Read(ctx context.Context, e *catalog.Entry, obj Object) (File, error) {
	file := File{Entry: e, Key: obj.Key, Size: obj.Size}
	if obj.Size < f.minSize {
		return file, readError(file, ErrFileTooSmall)
	}
	data, err := f.bucket.ReadAll(ctx, obj.Key)
	if err != nil {
		return file, readError(file, err)
	}
	if IsCompressed(obj.Key) || e.Compression == catalog.CompressionZstd {
		data, err = f.decoder.Decompress(data)
		if err != nil {
			return file, readError(file, err)
		}
	}
	file.Data = data
	return file, nil
}

// Close releases resources.
func (f *Fetcher) Close() error {
	if f.decoder != nil {
		f.decoder.Close()
	}
	if f.bucket != nil {
		return f.bucket.Close()
	}
	return nil
}
