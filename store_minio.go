package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/encrypt"
)

const awsEndpoint = "s3.amazonaws.com"

var minioChecksums = map[string]minio.ChecksumType{
	"CRC32":     minio.ChecksumCRC32,
	"CRC32C":    minio.ChecksumCRC32C,
	"SHA1":      minio.ChecksumSHA1,
	"SHA256":    minio.ChecksumSHA256,
	"CRC64NVME": minio.ChecksumCRC64NVME,
}

// minioStore talks to S3 through the MinIO client.
type minioStore struct {
	client         *minio.Client
	region         string
	validateChecks bool
}

func newMinioStore(opts *options) (*minioStore, error) {
	host, secure, err := parseEndpoint(opts.Endpoint)
	if err != nil {
		return nil, err
	}

	lookup := minio.BucketLookupAuto
	if opts.PathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(host, &minio.Options{
		Creds: credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
			&credentials.FileAWSCredentials{Profile: opts.Profile},
		}),
		Secure:          secure,
		Region:          opts.Region,
		BucketLookup:    lookup,
		Transport:       httpTransport(opts.InsecureTLS),
		TrailingHeaders: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	return &minioStore{
		client:         client,
		region:         opts.Region,
		validateChecks: opts.ResponseChecksumValidation == whenSupported,
	}, nil
}

// parseEndpoint splits an endpoint URL into the host MinIO wants and whether to use TLS.
// A bare host means TLS; a blank endpoint means AWS.
func parseEndpoint(raw string) (host string, secure bool, err error) {
	if raw == "" {
		return awsEndpoint, true, nil
	}
	if !strings.Contains(raw, "://") {
		return strings.TrimSuffix(raw, "/"), true, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("%w: endpoint: %v", errInvalidOption, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("%w: endpoint %q has no host", errInvalidOption, raw)
	}

	switch u.Scheme {
	case "https":
		return u.Host, true, nil
	case "http":
		return u.Host, false, nil
	default:
		return "", false, fmt.Errorf("%w: endpoint scheme %q", errInvalidOption, u.Scheme)
	}
}

func (s *minioStore) CreateBucket(ctx context.Context, bucket string) error {
	err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region})
	if err != nil && errorCode(err) == "BucketAlreadyOwnedByYou" {
		return fmt.Errorf("%s: %w", bucket, errBucketExists)
	}

	return err
}

func (s *minioStore) PutObject(ctx context.Context, req *putRequest) error {
	opts, err := minioPutOptions(req)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, req.bucket, req.key, req.body, req.size, opts)

	return err
}

// minioPutOptions maps a putRequest to MinIO options. A precomputed checksum goes out as a
// header; MinIO only computes one itself, as a trailer, when none was given.
func minioPutOptions(req *putRequest) (opts minio.PutObjectOptions, err error) {
	opts.ContentType = req.contentType

	if req.checksumSHA256 != "" {
		opts.UserMetadata = map[string]string{minio.ChecksumSHA256.Key(): req.checksumSHA256}
	} else if req.checksumAlgorithm != "" {
		ct, ok := minioChecksums[req.checksumAlgorithm]
		if !ok {
			return opts, fmt.Errorf("%w: unsupported checksum algorithm %q", errInvalidOption, req.checksumAlgorithm)
		}
		if req.checksum != "" {
			opts.UserMetadata = map[string]string{ct.Key(): req.checksum}
		} else {
			opts.Checksum = ct
		}
	}

	switch req.sse {
	case sseAES256:
		opts.ServerSideEncryption = encrypt.NewSSE()
	case sseKMS:
		if opts.ServerSideEncryption, err = encrypt.NewSSEKMS("", nil); err != nil {
			return opts, fmt.Errorf("server side encryption: %w", err)
		}
	}

	return opts, nil
}

func (s *minioStore) ListObjects(ctx context.Context, bucket string) ([]objectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var objs []objectInfo
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return objs, obj.Err
		}
		objs = append(objs, objectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         strings.Trim(obj.ETag, `"`),
			LastModified: obj.LastModified,
			StorageClass: obj.StorageClass,
		})
	}

	return objs, nil
}

func (s *minioStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if s.validateChecks {
		opts.Set("x-amz-checksum-mode", "ENABLED")
	}

	obj, err := s.client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, err
	}

	// GetObject is lazy, errors like NoSuchKey only show up on the first read or Stat.
	if _, err = obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, err
	}

	return obj, nil
}
