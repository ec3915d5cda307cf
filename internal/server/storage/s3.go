package storage

import (
	"bytes"
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Function seams so tests can exercise error paths without an S3 backend.
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in)
	}
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
		return c.DeleteObject(ctx, in)
	}
)

// S3Config carries the settings for an S3-compatible backend (AWS S3 or
// MinIO with a custom base endpoint).
type S3Config struct {
	RootUser      string
	RootPassword  string
	Bucket        string
	Region        string
	BaseEndpoint  string
	PresignExpiry time.Duration
}

// S3Storage implements ObjectStorage over the AWS SDK v2 S3 client.
type S3Storage struct {
	cfg S3Config
}

var _ ObjectStorage = (*S3Storage)(nil)

// NewS3Storage constructs an S3Storage with the given settings. A zero
// PresignExpiry defaults to 15 minutes.
func NewS3Storage(cfg S3Config) *S3Storage {
	if cfg.PresignExpiry == 0 {
		cfg.PresignExpiry = 15 * time.Minute
	}
	return &S3Storage{cfg: cfg}
}

func (s *S3Storage) client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.cfg.RootUser,
			s.cfg.RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.cfg.BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

// PresignUpload returns a presigned PUT URL for the given key.
func (s *S3Storage) PresignUpload(ctx context.Context, key, contentType string, length int64) (*PresignedURL, error) {
	client, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	req, err := presignPutObject(newS3PresignClient(client), ctx, &s3.PutObjectInput{
		Bucket:        &s.cfg.Bucket,
		Key:           &key,
		ContentType:   &contentType,
		ContentLength: &length,
	}, s3.WithPresignExpires(s.cfg.PresignExpiry))
	if err != nil {
		return nil, err
	}

	headers := map[string]string{"Content-Type": contentType}
	return &PresignedURL{URL: req.URL, Headers: headers, ExpiresIn: s.cfg.PresignExpiry}, nil
}

// PresignDownload returns a presigned GET URL for the given key.
func (s *S3Storage) PresignDownload(ctx context.Context, key string) (*PresignedURL, error) {
	client, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: &s.cfg.Bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.cfg.PresignExpiry))
	if err != nil {
		return nil, err
	}

	return &PresignedURL{URL: req.URL, ExpiresIn: s.cfg.PresignExpiry}, nil
}

// Put writes the object server-side.
func (s *S3Storage) Put(ctx context.Context, key, contentType string, data []byte) error {
	client, err := s.client(ctx)
	if err != nil {
		return err
	}

	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket:      &s.cfg.Bucket,
		Key:         &key,
		ContentType: &contentType,
		Body:        bytes.NewReader(data),
	})
	return err
}

// Delete removes the object.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	client, err := s.client(ctx)
	if err != nil {
		return err
	}

	_, err = deleteObject(client, ctx, &s3.DeleteObjectInput{
		Bucket: &s.cfg.Bucket,
		Key:    &key,
	})
	return err
}
