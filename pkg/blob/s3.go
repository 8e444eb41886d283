package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"maturity-hq/steward/pkg/governance"
)

// S3Config configures an S3 or S3-compatible sink.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // non-empty for S3-compatible services; enables path-style addressing
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Sink stores artifacts as objects in a bucket.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Sink creates an S3 sink. Static credentials are used when both keys
// are set; otherwise the default AWS credential chain applies.
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket cannot be empty")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Sink{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: slog.Default().With("component", "blob.s3", "bucket", cfg.Bucket),
	}, nil
}

func (s *S3Sink) objectKey(p string) (string, error) {
	key, err := cleanKey(p)
	if err != nil {
		return "", err
	}
	if s.prefix != "" {
		key = path.Join(s.prefix, key)
	}
	return key, nil
}

// Put uploads data to p. The returned location is the sink-relative path.
func (s *S3Sink) Put(ctx context.Context, p string, data []byte) (governance.ArtifactRef, error) {
	key, err := s.objectKey(p)
	if err != nil {
		return governance.ArtifactRef{}, governance.NewValidationError("path", err.Error())
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return governance.ArtifactRef{}, governance.NewTransientStoreError("s3", "put_object", err)
	}

	loc, _ := cleanKey(p)
	return governance.ArtifactRef{
		Location: loc,
		Size:     int64(len(data)),
		Checksum: Checksum(data),
	}, nil
}

// Delete removes an object. S3 reports success for missing keys.
func (s *S3Sink) Delete(ctx context.Context, ref governance.ArtifactRef) error {
	key, err := s.objectKey(ref.Location)
	if err != nil {
		return governance.NewValidationError("location", err.Error())
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return governance.NewTransientStoreError("s3", "delete_object", err)
	}
	return nil
}

// DeleteExpired removes up to limit export objects last modified at or
// before cutoff.
func (s *S3Sink) DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	prefix := "exports/"
	if s.prefix != "" {
		prefix = path.Join(s.prefix, "exports") + "/"
	}

	var expired []types.ObjectIdentifier
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
scan:
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, governance.NewTransientStoreError("s3", "list_objects", err)
		}
		for _, obj := range page.Contents {
			if obj.LastModified == nil || obj.LastModified.After(cutoff) {
				continue
			}
			expired = append(expired, types.ObjectIdentifier{Key: obj.Key})
			if limit > 0 && len(expired) >= limit {
				break scan
			}
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	var n int64
	// DeleteObjects accepts at most 1000 keys per request.
	for start := 0; start < len(expired); start += 1000 {
		end := min(start+1000, len(expired))
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: expired[start:end], Quiet: aws.Bool(true)},
		})
		if err != nil {
			return n, governance.NewTransientStoreError("s3", "delete_objects", err)
		}
		n += int64(end-start) - int64(len(out.Errors))
		for _, e := range out.Errors {
			s.logger.Warn("failed to delete expired artifact", "key", aws.ToString(e.Key), "error", aws.ToString(e.Message))
		}
	}
	s.logger.Info("expired artifacts removed", "count", n, "cutoff", cutoff)
	return n, nil
}
