package archive

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"drivescope/internal/inspect"
)

// S3Archive is an S3-backed implementation of the Archive interface. Bundle
// items are stored under <prefix>/sessions/<sessionID>/<name>. Uploads go
// through the transfer manager so large ledger snapshots stream in parts.
type S3Archive struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Archive creates an S3 archive. With an empty access key the default
// AWS credential chain is used; otherwise the given static key pair is.
func NewS3Archive(ctx context.Context, bucket, prefix, region, accessKey, secretKey string) (*S3Archive, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	if accessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Archive{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}, nil
}

func (a *S3Archive) bundleKey(sessionID, name string) string {
	return path.Join(a.prefix, "sessions", sessionID, name)
}

// PutBundle stores a named bundle item for a session.
func (a *S3Archive) PutBundle(sessionID string, name string, r io.Reader, size int64) error {
	_, err := a.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.bundleKey(sessionID, name)),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("uploading bundle item %q: %w", name, err)
	}
	return nil
}

// GetBundle retrieves a named bundle item and writes it to w.
func (a *S3Archive) GetBundle(sessionID string, name string, w io.Writer) error {
	out, err := a.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.bundleKey(sessionID, name)),
	})
	if err != nil {
		return fmt.Errorf("fetching bundle item %q for session %s: %w", name, sessionID, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading bundle item: %w", err)
	}
	return nil
}

// ValidateSetup verifies the bucket is reachable with the configured credentials.
func (a *S3Archive) ValidateSetup() error {
	_, err := a.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", a.bucket, err)
	}
	return nil
}

// Compile-time check that S3Archive implements the Archive interface
var _ inspect.Archive = (*S3Archive)(nil)
