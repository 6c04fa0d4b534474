package storage

import (
	"context"
	"io"
	"time"
)

// CompletedPart identifies one acknowledged part of a multipart upload.
type CompletedPart struct {
	PartNumber int32  `json:"partNumber"`
	ETag       string `json:"etag"`
}

// ObjectStore is the uniform adapter over the object storage backend. Put
// overwrites; Delete of an absent key succeeds; all other operations are
// idempotent.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Head returns the object size in bytes.
	Head(ctx context.Context, key string) (int64, error)
	// List returns the keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	SignGetURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	SignPutURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)

	CreateMultipartUpload(ctx context.Context, key, contentType string) (uploadID string, err error)
	SignUploadPartURL(ctx context.Context, key, uploadID string, partNumber int32, ttl time.Duration) (string, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []CompletedPart) (location string, err error)
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
}
