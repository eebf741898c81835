// Package objectstore issues time-limited upload and download URLs for photo
// and contract objects. Only object keys are ever persisted.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/jesadaho/asset-ace-sub000/internal/config"
)

// ErrUnsupportedContentType is returned for uploads other than images and PDFs.
var ErrUnsupportedContentType = errors.New("unsupported content type")

// Upload is a presigned PUT target.
type Upload struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Gateway is the object storage collaborator.
type Gateway interface {
	PresignUpload(ctx context.Context, filename, contentType string) (*Upload, error)
	PresignDownload(ctx context.Context, key string) (string, error)
}

type presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*presignedRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*presignedRequest, error)
}

// presignedRequest mirrors the fields of v4.PresignedHTTPRequest we use.
type presignedRequest struct {
	URL string
}

// s3Presigner adapts *s3.PresignClient to presigner.
type s3Presigner struct {
	client *s3.PresignClient
}

func (p s3Presigner) PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*presignedRequest, error) {
	req, err := p.client.PresignPutObject(ctx, params, optFns...)
	if err != nil {
		return nil, err
	}
	return &presignedRequest{URL: req.URL}, nil
}

func (p s3Presigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*presignedRequest, error) {
	req, err := p.client.PresignGetObject(ctx, params, optFns...)
	if err != nil {
		return nil, err
	}
	return &presignedRequest{URL: req.URL}, nil
}

// S3Gateway presigns against an S3-compatible bucket.
type S3Gateway struct {
	bucket      string
	presign     presigner
	uploadTTL   time.Duration
	downloadTTL time.Duration
	now         func() time.Time
}

// NewS3Gateway loads AWS configuration and builds a presigning gateway.
func NewS3Gateway(ctx context.Context, cfg config.StorageConfig) (*S3Gateway, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("objectstore: bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Gateway{
		bucket:      cfg.Bucket,
		presign:     s3Presigner{client: s3.NewPresignClient(client)},
		uploadTTL:   cfg.UploadTTL(),
		downloadTTL: cfg.DownloadTTL(),
		now:         time.Now,
	}, nil
}

// PresignUpload allocates a fresh key and returns a PUT URL for it.
func (g *S3Gateway) PresignUpload(ctx context.Context, filename, contentType string) (*Upload, error) {
	folder, err := folderFor(contentType)
	if err != nil {
		return nil, err
	}

	key := NewKey(folder, filename, g.now())
	req, err := g.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(g.uploadTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	return &Upload{Key: key, URL: req.URL, ExpiresAt: g.now().Add(g.uploadTTL)}, nil
}

// PresignDownload returns a GET URL for key.
func (g *S3Gateway) PresignDownload(ctx context.Context, key string) (string, error) {
	req, err := g.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(g.downloadTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}
	return req.URL, nil
}

// NewKey builds "<folder>/<uuid>-<unix><ext>" keeping only the original extension.
func NewKey(folder, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) > 8 || strings.ContainsAny(ext, "/\\ ") {
		ext = ""
	}
	return fmt.Sprintf("%s/%s-%d%s", folder, uuid.New().String(), now.Unix(), ext)
}

func folderFor(contentType string) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return "photos", nil
	case ct == "application/pdf":
		return "contracts", nil
	default:
		return "", ErrUnsupportedContentType
	}
}

// ResolveURL presigns a single key. It returns "" when there is no store, no
// key, or presigning fails.
func ResolveURL(ctx context.Context, g Gateway, key string) string {
	if g == nil || key == "" {
		return ""
	}
	url, err := g.PresignDownload(ctx, key)
	if err != nil {
		return ""
	}
	return url
}

// ResolveURLs presigns every key, skipping ones that fail.
func ResolveURLs(ctx context.Context, g Gateway, keys []string) []string {
	if g == nil || len(keys) == 0 {
		return nil
	}
	urls := make([]string, 0, len(keys))
	for _, key := range keys {
		url, err := g.PresignDownload(ctx, key)
		if err != nil {
			continue
		}
		urls = append(urls, url)
	}
	return urls
}
