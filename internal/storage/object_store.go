package storage

import (
	"context"
	"io"
)

// ObjectStore is where model weight artifacts live. Workers pull a model's
// directory down once, before first use; the loaded weights then stay
// resident for the life of the worker process.
type ObjectStore interface {
	CreateBucket(ctx context.Context, bucket string) error

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	DownloadDir(ctx context.Context, bucket, prefix, dest string, overwrite bool) error

	UploadDir(ctx context.Context, bucket, prefix, src string) error
}
