package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"
)

type uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Mirror copies expiring Notion file URLs (page covers) into durable
// storage and derives a thumbnail alongside the original.
type Mirror struct {
	httpClient *http.Client
	local      uploader
	s3         uploader
	maxBytes   int64
	thumbWidth int
}

// Options configures the mirror; an empty S3Bucket selects local output.
type Options struct {
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3PathStyle     bool
	OutputDir       string
	DownloadTimeout time.Duration
	MaxBytes        int64
	ThumbWidth      int
}

// New constructs the mirror and chooses an uploader (local or S3).
func New(ctx context.Context, opts Options) (*Mirror, error) {
	if opts.DownloadTimeout == 0 {
		opts.DownloadTimeout = 30 * time.Second
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "./media"
	}
	if opts.MaxBytes == 0 {
		opts.MaxBytes = 25 * 1024 * 1024
	}
	if opts.ThumbWidth == 0 {
		opts.ThumbWidth = 480
	}

	var s3Upload uploader
	if opts.S3Bucket != "" {
		client, err := newS3Client(ctx, opts)
		if err != nil {
			return nil, err
		}
		s3Upload = &s3Uploader{client: client, bucket: opts.S3Bucket}
	}

	return &Mirror{
		httpClient: &http.Client{Timeout: opts.DownloadTimeout},
		local:      &localUploader{baseDir: opts.OutputDir},
		s3:         s3Upload,
		maxBytes:   opts.MaxBytes,
		thumbWidth: opts.ThumbWidth,
	}, nil
}

func newS3Client(ctx context.Context, opts Options) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.S3Region),
	}
	if opts.S3Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               opts.S3Endpoint,
					HostnameImmutable: opts.S3PathStyle,
					SigningRegion:     opts.S3Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		loadOpts = append(loadOpts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = opts.S3PathStyle
	}), nil
}

// MirrorCover downloads the source image, stores the original plus a
// thumbnail, and returns the stored location of the original.
func (m *Mirror) MirrorCover(ctx context.Context, pageID, sourceURL string) (string, error) {
	data, contentType, err := m.download(ctx, sourceURL)
	if err != nil {
		return "", err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode cover: %w", err)
	}

	up := m.uploader()
	ext := extensionFor(format, contentType)

	stored, err := up.Upload(ctx, coverKey(pageID, "cover."+ext), data, contentType)
	if err != nil {
		return "", fmt.Errorf("upload cover: %w", err)
	}

	thumb := imaging.Fit(img, m.thumbWidth, m.thumbWidth, imaging.Lanczos)
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	if _, err := up.Upload(ctx, coverKey(pageID, "thumb.jpg"), buf.Bytes(), "image/jpeg"); err != nil {
		return "", fmt.Errorf("upload thumbnail: %w", err)
	}

	return stored, nil
}

func (m *Mirror) uploader() uploader {
	if m.s3 != nil {
		return m.s3
	}
	return m.local
}

func (m *Mirror) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download cover: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", fmt.Errorf("download cover: status %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, m.maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, "", fmt.Errorf("read cover: %w", err)
	}
	if int64(len(body)) > m.maxBytes {
		return nil, "", fmt.Errorf("cover too large (>%d bytes)", m.maxBytes)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func coverKey(pageID, name string) string {
	return filepath.ToSlash(filepath.Join("covers", sanitize(pageID), name))
}

func sanitize(s string) string {
	s = filepath.Clean(s)
	s = strings.TrimPrefix(s, string(filepath.Separator))
	s = strings.ReplaceAll(s, "..", "")
	return s
}

func extensionFor(format, contentType string) string {
	switch strings.ToLower(format) {
	case "png":
		return "png"
	case "gif":
		return "gif"
	}
	if strings.Contains(strings.ToLower(contentType), "png") {
		return "png"
	}
	return "jpg"
}

var errNoUploader = errors.New("no uploader configured")

type localUploader struct {
	baseDir string
}

func (l *localUploader) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	if l == nil {
		return "", errNoUploader
	}
	path := filepath.Join(l.baseDir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

type s3Uploader struct {
	client *s3.Client
	bucket string
}

func (s *s3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
