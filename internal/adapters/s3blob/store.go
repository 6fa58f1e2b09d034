// Package s3blob stores criteria sheets in an S3-compatible bucket
// (AWS S3, MinIO, or the hosted backend's S3 endpoint).
package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"lender_directory/internal/adapters/observability"
	"lender_directory/internal/domain"
)

type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, for MinIO or other S3-compatible hosts
	PathStyle       bool
	PublicBaseURL   string // optional; prefix for public object URLs
	AccessKeyID     string // optional (falls back to default credentials chain)
	SecretAccessKey string
}

// Store implements domain.BlobStore over a single bucket.
type Store struct {
	client *s3.Client
	bucket string
	public string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newWithClient(client, cfg, region), nil
}

func newWithClient(client *s3.Client, cfg Config, region string) *Store {
	public := strings.TrimRight(cfg.PublicBaseURL, "/")
	if public == "" {
		switch {
		case cfg.Endpoint != "":
			public = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
		default:
			public = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
		}
	}
	return &Store{client: client, bucket: cfg.Bucket, public: public}
}

// Upload writes a new object; an existing object under name is a constraint
// violation, never overwritten.
func (s *Store) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	err := s.upload(ctx, name, data, contentType)
	observability.ObserveBlob("upload", err)
	if err != nil {
		return "", err
	}
	return name, nil
}

func (s *Store) upload(ctx context.Context, name string, data []byte, contentType string) error {
	if name == "" {
		return fmt.Errorf("blob name: %w", domain.ErrValidation)
	}
	exists, err := s.exists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("blob %s: %w", name, domain.ErrConstraint)
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(name),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return mapErr(fmt.Sprintf("put %s", name), err)
	}
	return nil
}

func (s *Store) PublicURL(name string) string {
	return s.public + "/" + url.PathEscape(name)
}

// Delete removes the object; a missing object is ErrNotFound.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.delete(ctx, name)
	observability.ObserveBlob("delete", err)
	return err
}

func (s *Store) delete(ctx context.Context, name string) error {
	exists, err := s.exists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("blob %s: %w", name, domain.ErrNotFound)
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(name)})
	return mapErr(fmt.Sprintf("delete %s", name), err)
}

func (s *Store) exists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(name)})
	if err == nil {
		return true, nil
	}
	err = mapErr(fmt.Sprintf("head %s", name), err)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		switch code := re.HTTPStatusCode(); {
		case code == http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		case code == http.StatusConflict || code == http.StatusPreconditionFailed:
			return fmt.Errorf("%s: %w", op, domain.ErrConstraint)
		case code >= 500 || code == http.StatusTooManyRequests:
			return fmt.Errorf("%s: %w: %v", op, domain.ErrUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
