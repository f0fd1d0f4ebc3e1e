package main

import (
	"context"
	"errors"
	"io"
	"time"
)

// errBucketExists is returned by CreateBucket when the caller already owns the bucket.
var errBucketExists = errors.New("bucket already exists")

// objectStore is the part of the S3 API the upload run needs.
type objectStore interface {
	CreateBucket(ctx context.Context, bucket string) error
	PutObject(ctx context.Context, req *putRequest) error
	// ListObjects returns every object of the bucket, following pagination.
	ListObjects(ctx context.Context, bucket string) ([]objectInfo, error)
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// putRequest describes one object upload. Blank optional fields are left out of the request.
// checksum is the base64 digest of body for checksumAlgorithm. checksumSHA256 is the explicit
// SHA-256 header value and wins over the algorithm's checksum: S3 takes a single checksum per object.
type putRequest struct {
	bucket, key       string
	body              io.ReadSeeker
	size              int64
	contentType       string
	checksumAlgorithm string
	checksum          string
	checksumSHA256    string
	sse               string
}

type objectInfo struct {
	Key                string
	Size               int64
	ETag               string
	LastModified       time.Time
	StorageClass       string
	ChecksumAlgorithms []string
}
