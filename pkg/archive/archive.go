// Package archive uploads session artifacts to an S3-compatible store.
package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	minioCreds "github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Timeout   time.Duration
}

// Store writes objects under <bucket>/<prefix>/.
type Store struct {
	cfg    Config
	prefix string
	log    *zap.Logger
}

func New(cfg Config, prefix string, log *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("object storage endpoint is not configured")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("object storage bucket is not configured")
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("object storage credentials are not configured")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Store{cfg: cfg, prefix: strings.Trim(prefix, "/"), log: log.Named("archive")}, nil
}

func (s *Store) client() (*minio.Client, error) {
	return minio.New(strings.TrimSpace(s.cfg.Endpoint), &minio.Options{
		Creds:  minioCreds.NewStaticV4(strings.TrimSpace(s.cfg.AccessKey), strings.TrimSpace(s.cfg.SecretKey), ""),
		Secure: s.cfg.UseSSL,
	})
}

// Key is the object name of a local file.
func (s *Store) Key(file string) string {
	return path.Join(s.prefix, filepath.Base(file))
}

func contentType(file string) string {
	switch filepath.Ext(file) {
	case ".csv":
		return "text/csv"
	case ".prom":
		return "text/plain; version=0.0.4"
	default:
		return "application/octet-stream"
	}
}

// Upload puts every file, continuing past failures.
func (s *Store) Upload(ctx context.Context, files ...string) error {
	client, err := s.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var failed error
	for _, f := range files {
		if err := s.put(ctx, client, f); err != nil {
			failed = multierr.Append(failed, fmt.Errorf("upload %s: %w", f, err))
			continue
		}
		s.log.Info("uploaded", zap.String("bucket", s.cfg.Bucket), zap.String("key", s.Key(f)))
	}
	return failed
}

func (s *Store) put(ctx context.Context, client *minio.Client, file string) error {
	fh, err := os.Open(file)
	if err != nil {
		return err
	}
	defer fh.Close()
	info, err := fh.Stat()
	if err != nil {
		return err
	}
	_, err = client.PutObject(ctx, s.cfg.Bucket, s.Key(file), fh, info.Size(), minio.PutObjectOptions{
		ContentType: contentType(file),
	})
	return err
}
