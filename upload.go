package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// sequence runs the upload-then-verify steps against one store. Each step logs its
// own failure and the run goes on.
type sequence struct {
	store objectStore
	opts  *options
	cache *uploadCache
	log   *slog.Logger
}

// report is what a run found out. errs collects every failure of the run.
type report struct {
	key      string
	local    checksums
	uploaded bool
	skipped  bool
	objects  []objectReport
	errs     *multierror.Error
}

type objectReport struct {
	objectInfo
	sums     checksums
	err      error
	compared bool
	matched  bool
}

func (r *report) fail(err error) {
	r.errs = multierror.Append(r.errs, err)
}

func (r *report) err() error {
	return r.errs.ErrorOrNil()
}

func (r *report) listed(key string) bool {
	for _, o := range r.objects {
		if o.Key == key {
			return true
		}
	}

	return false
}

func (s *sequence) run(ctx context.Context, src *sourceFile) *report {
	r := &report{key: src.key}

	s.logSettings()
	if s.opts.CreateBucket {
		s.createBucket(ctx, r)
	}
	r.local = s.localChecksums(src)
	s.upload(ctx, src, r)
	if s.opts.Verify {
		s.verify(ctx, r)
	}

	return r
}

func (s *sequence) logSettings() {
	s.log.Info("Upload settings",
		"backend", s.opts.Backend,
		"checksum_algorithm", s.opts.ChecksumAlgorithm,
		"request_checksum_calculation", s.opts.RequestChecksumCalculation,
		"response_checksum_validation", s.opts.ResponseChecksumValidation,
		"chunked_encoding", s.opts.ChunkedEncoding,
		"with_sha_header", s.opts.WithSHAHeader,
		"checksum_encoding", s.opts.ChecksumEncoding,
		"dummy_checksum", s.opts.DummyChecksum,
		"server_side_encryption", s.opts.ServerSideEncryption,
	)
	if s.opts.ChunkedEncoding {
		s.log.Warn("Chunked encoding is picked by the client library and cannot be forced, ignoring")
	}
}

func (s *sequence) createBucket(ctx context.Context, r *report) {
	bucket := s.opts.BucketName
	s.log.Info("Creating bucket", "bucket", bucket)

	err := s.store.CreateBucket(ctx, bucket)
	switch {
	case err == nil:
		s.log.Info("Bucket created", "bucket", bucket)
	case errors.Is(err, errBucketExists):
		s.log.Info("Bucket already exists", "bucket", bucket)
	default:
		s.log.Error("Error creating bucket", "bucket", bucket, "code", errorCode(err), "error", err)
		r.fail(fmt.Errorf("creating bucket %s: %w", bucket, err))
	}
}

// localChecksums reads the file once per algorithm. A failed digest stays blank.
func (s *sequence) localChecksums(src *sourceFile) (sums checksums) {
	var err error
	if sums.SHA256, err = fileSHA256(src.fpath); err != nil {
		s.log.Error("Error calculating checksum", "algorithm", "SHA256", "path", src.fpath, "error", err)
	} else {
		s.log.Info("Local checksum", "algorithm", "SHA256", "value", sums.SHA256)
	}

	if sums.MD5, err = fileMD5(src.fpath); err != nil {
		s.log.Error("Error calculating checksum", "algorithm", "MD5", "path", src.fpath, "error", err)
	} else {
		s.log.Info("Local checksum", "algorithm", "MD5", "value", sums.MD5)
	}

	return
}

// checksumHeaderValue returns the value to send as SHA-256 checksum header, blank for none.
func (s *sequence) checksumHeaderValue(local checksums) string {
	if !s.opts.WithSHAHeader {
		return ""
	}
	if s.opts.DummyChecksum {
		return dummyChecksum
	}
	if local.SHA256 == "" {
		s.log.Warn("No local SHA256, uploading without checksum header")
		return ""
	}

	val, err := checksumHeader(local.SHA256, s.opts.ChecksumEncoding)
	if err != nil {
		s.log.Error("Error encoding checksum header", "error", err)
		return ""
	}

	return val
}

// algorithmChecksum computes the configured algorithm's checksum of the file. The algorithm is
// always named; a blank value leaves computing it to the client library.
func (s *sequence) algorithmChecksum(src *sourceFile) (algorithm, value string) {
	algorithm = s.opts.ChecksumAlgorithm
	if algorithm == "" {
		return
	}

	var err error
	if value, err = fileChecksum(src.fpath, algorithm); err != nil {
		s.log.Error("Error calculating checksum", "algorithm", algorithm, "path", src.fpath, "error", err)
		return algorithm, ""
	}
	s.log.Debug("Local checksum", "algorithm", algorithm, "value", value)

	return
}

func (s *sequence) upload(ctx context.Context, src *sourceFile, r *report) {
	if s.cache != nil && r.local.MD5 != "" && s.cache.unchanged(src.key, r.local.MD5) {
		r.skipped = true
		s.log.Info("File unchanged since last upload, skipping", "key", src.key, "cache", s.cache.fname)
		return
	}

	f, err := src.open()
	if err != nil {
		s.log.Error("Error opening file", "path", src.fpath, "error", err)
		r.fail(fmt.Errorf("opening %s: %w", src.fpath, err))
		return
	}
	defer func() {
		_ = f.Close()
	}()

	req := &putRequest{
		bucket:         s.opts.BucketName,
		key:            src.key,
		body:           f,
		size:           src.size,
		contentType:    src.contentType,
		checksumSHA256: s.checksumHeaderValue(r.local),
		sse:            s.opts.ServerSideEncryption,
	}
	req.checksumAlgorithm, req.checksum = s.algorithmChecksum(src)

	s.log.Info("Uploading file", "key", req.key, "size", humanSize(req.size), "content_type", req.contentType,
		"checksum_algorithm", req.checksumAlgorithm, "checksum", req.checksum, "checksum_header", req.checksumSHA256)
	if err = s.store.PutObject(ctx, req); err != nil {
		s.log.Error("Error uploading file", "key", req.key, "code", errorCode(err), "error", err)
		r.fail(fmt.Errorf("uploading %s: %w", req.key, err))
		return
	}

	r.uploaded = true
	s.log.Info("File uploaded", "key", req.key)

	if s.cache != nil && r.local.MD5 != "" {
		if err = s.cache.record(src.key, r.local.MD5); err != nil {
			s.log.Error("Caching failed", "cache", s.cache.fname, "error", err)
			r.fail(fmt.Errorf("updating cache: %w", err))
		}
	}
}

// verify lists the bucket and downloads every object to hash it again.
func (s *sequence) verify(ctx context.Context, r *report) {
	bucket := s.opts.BucketName
	s.log.Info("Listing objects", "bucket", bucket)

	objs, err := s.store.ListObjects(ctx, bucket)
	if err != nil {
		s.log.Error("Error listing objects", "bucket", bucket, "code", errorCode(err), "error", err)
		r.fail(fmt.Errorf("listing %s: %w", bucket, err))
		return
	}

	for _, obj := range objs {
		r.objects = append(r.objects, s.verifyObject(ctx, obj, r))
	}
	s.log.Info("Objects listed", "bucket", bucket, "count", len(objs))

	if (r.uploaded || r.skipped) && !r.listed(r.key) {
		s.log.Error("Uploaded object missing from listing", "bucket", bucket, "key", r.key)
		r.fail(fmt.Errorf("%s missing from %s listing", r.key, bucket))
	}
}

func (s *sequence) verifyObject(ctx context.Context, obj objectInfo, r *report) (res objectReport) {
	res.objectInfo = obj
	attrs := []any{
		"key", obj.Key,
		"size", humanSize(obj.Size),
		"etag", obj.ETag,
		"storage_class", obj.StorageClass,
		"last_modified", obj.LastModified,
	}
	// Only the aws backend's listing carries the checksum algorithms.
	if len(obj.ChecksumAlgorithms) > 0 {
		attrs = append(attrs, "checksum_algorithms", strings.Join(obj.ChecksumAlgorithms, ","))
	}
	s.log.Info("Object", attrs...)

	body, err := s.store.GetObject(ctx, s.opts.BucketName, obj.Key)
	if err != nil {
		res.err = err
		s.log.Error("Error getting object", "key", obj.Key, "code", errorCode(err), "error", err)
		r.fail(fmt.Errorf("getting %s: %w", obj.Key, err))
		return
	}
	defer func() {
		_ = body.Close()
	}()

	sums, n, err := streamChecksums(body)
	if err != nil {
		res.err = err
		s.log.Error("Error reading object", "key", obj.Key, "error", err)
		r.fail(fmt.Errorf("reading %s: %w", obj.Key, err))
		return
	}
	res.sums = sums
	s.log.Info("Remote checksum", "key", obj.Key, "md5", sums.MD5, "sha256", sums.SHA256)
	if n != obj.Size {
		s.log.Warn("Downloaded size differs from listing", "key", obj.Key, "listed", obj.Size, "downloaded", n)
	}

	if obj.Key != r.key || r.local.empty() {
		return
	}

	res.compared = true
	res.matched = (r.local.SHA256 == "" || r.local.SHA256 == sums.SHA256) &&
		(r.local.MD5 == "" || r.local.MD5 == sums.MD5)
	if res.matched {
		s.log.Info("Checksum verified", "key", obj.Key)
	} else {
		s.log.Error("Checksum mismatch", "key", obj.Key,
			"local_sha256", r.local.SHA256, "remote_sha256", sums.SHA256,
			"local_md5", r.local.MD5, "remote_md5", sums.MD5)
		r.fail(fmt.Errorf("checksum mismatch for %s", obj.Key))
	}

	return
}
