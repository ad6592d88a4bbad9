package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	appConfig "github.com/kendall-kelly/support-relay-api/config"
)

// ObjectStorage stores uploaded support images and hands out stable URLs for them
type ObjectStorage interface {
	PutObject(ctx context.Context, key, contentType string, body []byte) error
	PublicURL(key string) string
}

// S3Service stores objects in a single S3 bucket
type S3Service struct {
	client        *s3.Client
	bucket        string
	region        string
	publicBaseURL string
}

var _ ObjectStorage = (*S3Service)(nil)

// NewS3Service creates an S3 client for the configured bucket. Static
// credentials are used when both keys are set, otherwise the default AWS
// credential chain applies (instance roles, shared config).
func NewS3Service(ctx context.Context, cfg *appConfig.Config) (*S3Service, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AWSAccessKeyID,
			cfg.AWSSecretAccessKey,
			"",
		)))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Service{
		client:        s3.NewFromConfig(awsConfig),
		bucket:        cfg.AWSS3Bucket,
		region:        cfg.AWSRegion,
		publicBaseURL: strings.TrimRight(cfg.AWSS3PublicBaseURL, "/"),
	}, nil
}

// PutObject uploads body under key
func (s *S3Service) PutObject(ctx context.Context, key, contentType string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=3600"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

// PublicURL returns the URL clients and Telegram fetch the object from.
// The bucket (or the CDN in front of it) must allow public reads of support images.
func (s *S3Service) PublicURL(key string) string {
	return objectURL(s.publicBaseURL, s.bucket, s.region, key)
}

func objectURL(publicBaseURL, bucket, region, key string) string {
	if publicBaseURL != "" {
		return publicBaseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key)
}
