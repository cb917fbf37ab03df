// Package storage provides the object store collaborator: Cloudflare R2
// accessed through the S3 API. Image references produced here are opaque
// strings to the rest of the system.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnsupportedContentType is returned for upload types outside the
// allowed evidence image set
var ErrUnsupportedContentType = errors.New("unsupported content type")

// allowed evidence image content types, mapped to object key extensions
var contentTypeExt = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// Config holds object store configuration
type Config struct {
	Bucket          string
	Region          string
	BaseEndpoint    string
	PublicBaseURL   string
	AccessKeyID     string
	SecretAccessKey string
	PresignTTL      time.Duration
}

// Store wraps the S3 client for R2 uploads and downloads
type Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	cfg       Config
	logger    *zap.Logger
}

// PresignedUpload is an upload target handed to the client
type PresignedUpload struct {
	UploadURL string `json:"upload_url"`
	PublicURL string `json:"public_url"`
	Key       string `json:"key"`
	ExpiresIn int64  `json:"expires_in"`
}

// New creates a new object store client
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
	})

	return &Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// PresignUpload generates a presigned PUT target for an evidence image.
// Only jpeg/png/webp uploads are accepted.
func (s *Store) PresignUpload(ctx context.Context, filename, contentType string) (*PresignedUpload, error) {
	ext, ok := contentTypeExt[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, contentType)
	}

	key := fmt.Sprintf("uploads/%s.%s", uuid.NewString(), ext)

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.cfg.PresignTTL))
	if err != nil {
		s.logger.Error("Failed to presign upload",
			zap.String("filename", filename),
			zap.Error(err))
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	s.logger.Info("Presigned upload",
		zap.String("key", key),
		zap.String("content_type", contentType))

	return &PresignedUpload{
		UploadURL: req.URL,
		PublicURL: strings.TrimSuffix(s.cfg.PublicBaseURL, "/") + "/" + key,
		Key:       key,
		ExpiresIn: int64(s.cfg.PresignTTL.Seconds()),
	}, nil
}

// Put stores object bytes directly and returns the public reference.
// Client uploads normally go through PresignUpload; this is the server-side
// path for tooling and tests.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if _, ok := contentTypeExt[contentType]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContentType, contentType)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}

	return strings.TrimSuffix(s.cfg.PublicBaseURL, "/") + "/" + key, nil
}

// Get fetches object bytes and content type for a stored image reference.
// The reference may be a bare key or a public URL minted by PresignUpload.
func (s *Store) Get(ctx context.Context, ref string) ([]byte, string, error) {
	key, err := s.keyFromRef(ref)
	if err != nil {
		return nil, "", err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read object %s: %w", key, err)
	}

	contentType := "image/jpeg"
	if out.ContentType != nil && *out.ContentType != "" {
		contentType = *out.ContentType
	}

	return data, contentType, nil
}

// keyFromRef strips the public base URL, or the URL host part, from a
// reference, leaving the object key.
func (s *Store) keyFromRef(ref string) (string, error) {
	if !strings.Contains(ref, "://") {
		return ref, nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("malformed image reference %q: %w", ref, err)
	}

	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", fmt.Errorf("image reference %q has no object key", ref)
	}
	return key, nil
}
