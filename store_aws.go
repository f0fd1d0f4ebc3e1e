package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/credentials/ec2rolecreds"
	"github.com/aws/aws-sdk-go/aws/ec2metadata"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// defaultRegion is used when neither options nor environment name one; the SDK refuses to sign without.
const defaultRegion = "us-east-1"

// awsStore talks to S3 through the AWS SDK.
type awsStore struct {
	svc            s3iface.S3API
	region         string
	validateChecks bool
}

func newAWSStore(opts *options) (*awsStore, error) {
	region := firstNonEmpty(opts.Region, defaultRegion)
	awsCfg := aws.NewConfig().
		WithRegion(region).
		WithS3ForcePathStyle(opts.PathStyle).
		WithMaxRetries(opts.MaxRetries).
		WithHTTPClient(&http.Client{Transport: httpTransport(opts.InsecureTLS)})
	if opts.Endpoint != "" {
		awsCfg.WithEndpoint(opts.Endpoint)
	}
	if opts.RequestChecksumCalculation == whenRequired {
		awsCfg.DisableComputeChecksums = aws.Bool(true)
	}
	if opts.ResponseChecksumValidation == whenRequired {
		awsCfg.WithS3DisableContentMD5Validation(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("creating a new session with aws config: %w", err)
	}

	creds := credentials.NewChainCredentials(
		[]credentials.Provider{
			&credentials.EnvProvider{},
			&credentials.SharedCredentialsProvider{Profile: opts.Profile},
			&ec2rolecreds.EC2RoleProvider{Client: ec2metadata.New(sess)},
		})
	if _, err = creds.Get(); err != nil {
		return nil, fmt.Errorf("unable to initialize AWS credentials: %w", err)
	}

	return newAWSStoreWithClient(s3.New(sess, &aws.Config{Credentials: creds}), region, opts), nil
}

func newAWSStoreWithClient(svc s3iface.S3API, region string, opts *options) *awsStore {
	return &awsStore{
		svc:            svc,
		region:         region,
		validateChecks: opts.ResponseChecksumValidation == whenSupported,
	}
}

func (s *awsStore) CreateBucket(ctx context.Context, bucket string) error {
	in := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if s.region != "" && s.region != defaultRegion {
		in.CreateBucketConfiguration = &s3.CreateBucketConfiguration{LocationConstraint: aws.String(s.region)}
	}

	_, err := s.svc.CreateBucketWithContext(ctx, in)
	if err != nil && errorCode(err) == s3.ErrCodeBucketAlreadyOwnedByYou {
		return fmt.Errorf("%s: %w", bucket, errBucketExists)
	}

	return err
}

func (s *awsStore) PutObject(ctx context.Context, req *putRequest) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(req.bucket),
		Key:           aws.String(req.key),
		Body:          req.body,
		ContentLength: aws.Int64(req.size),
	}
	if req.contentType != "" {
		in.ContentType = aws.String(req.contentType)
	}
	setChecksum(in, req)
	if req.sse != "" && req.sse != sseNone {
		in.ServerSideEncryption = aws.String(req.sse)
	}

	_, err := s.svc.PutObjectWithContext(ctx, in)

	return err
}

// setChecksum fills the checksum fields of in. The SDK never computes a flexible checksum
// itself, so the algorithm is only named when its value goes along.
func setChecksum(in *s3.PutObjectInput, req *putRequest) {
	if req.checksumSHA256 != "" {
		in.ChecksumSHA256 = aws.String(req.checksumSHA256)
		if req.checksumAlgorithm == s3.ChecksumAlgorithmSha256 {
			in.ChecksumAlgorithm = aws.String(req.checksumAlgorithm)
		}
		return
	}
	if req.checksumAlgorithm == "" || req.checksum == "" {
		return
	}

	val := aws.String(req.checksum)
	switch req.checksumAlgorithm {
	case s3.ChecksumAlgorithmCrc32:
		in.ChecksumCRC32 = val
	case s3.ChecksumAlgorithmCrc32c:
		in.ChecksumCRC32C = val
	case s3.ChecksumAlgorithmSha1:
		in.ChecksumSHA1 = val
	case s3.ChecksumAlgorithmSha256:
		in.ChecksumSHA256 = val
	case "CRC64NVME":
		in.ChecksumCRC64NVME = val
	default:
		return
	}
	in.ChecksumAlgorithm = aws.String(req.checksumAlgorithm)
}

func (s *awsStore) ListObjects(ctx context.Context, bucket string) (objs []objectInfo, err error) {
	in := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	err = s.svc.ListObjectsV2PagesWithContext(ctx, in, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, o := range page.Contents {
			objs = append(objs, objectInfo{
				Key:                aws.StringValue(o.Key),
				Size:               aws.Int64Value(o.Size),
				ETag:               strings.Trim(aws.StringValue(o.ETag), `"`),
				LastModified:       aws.TimeValue(o.LastModified),
				StorageClass:       aws.StringValue(o.StorageClass),
				ChecksumAlgorithms: aws.StringValueSlice(o.ChecksumAlgorithm),
			})
		}
		return true
	})

	return
}

func (s *awsStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	in := &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}
	if s.validateChecks {
		in.ChecksumMode = aws.String(s3.ChecksumModeEnabled)
	}

	out, err := s.svc.GetObjectWithContext(ctx, in)
	if err != nil {
		return nil, err
	}

	return out.Body, nil
}
