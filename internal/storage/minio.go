package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/testforge/a11yforge/internal/config"
	"github.com/testforge/a11yforge/internal/domain"
)

// MinIOConfig contains MinIO connection settings
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	Region          string
	Prefix          string
}

// MinIOConfigFrom converts storage settings
func MinIOConfigFrom(cfg config.StorageConfig) MinIOConfig {
	return MinIOConfig{
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKey,
		SecretAccessKey: cfg.SecretKey,
		UseSSL:          cfg.UseSSL,
		BucketName:      cfg.Bucket,
		Region:          cfg.Region,
		Prefix:          cfg.Prefix,
	}
}

// MinIOMirror copies a finished run's artifacts and corrected assets to
// object storage under <prefix>/<run id>/
type MinIOMirror struct {
	client     *minio.Client
	bucketName string
	prefix     string
	logger     *zap.Logger
}

// NewMinIOMirror creates a new MinIO client
func NewMinIOMirror(cfg MinIOConfig, logger *zap.Logger) (*MinIOMirror, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	return &MinIOMirror{
		client:     client,
		bucketName: cfg.BucketName,
		prefix:     cfg.Prefix,
		logger:     logger.Named("minio"),
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (m *MinIOMirror) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucketName)
	if err != nil {
		return fmt.Errorf("checking bucket existence: %w", err)
	}

	if !exists {
		err = m.client.MakeBucket(ctx, m.bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}
	}

	return nil
}

// Upload uploads any object and returns its S3 URI
func (m *MinIOMirror) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	reader := bytes.NewReader(data)

	_, err := m.client.PutObject(ctx, m.bucketName, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("uploading object: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", m.bucketName, key), nil
}

// Download downloads an object
func (m *MinIOMirror) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting object: %w", err)
	}
	defer obj.Close()

	return io.ReadAll(obj)
}

// RunKey returns the object key of a file belonging to a run
func (m *MinIOMirror) RunKey(runID uuid.UUID, parts ...string) string {
	return path.Join(append([]string{m.prefix, runID.String()}, parts...)...)
}

// MirrorRun uploads every artifact and every file of the output tree.
// Upload failures are collected; the remaining files are still tried.
func (m *MinIOMirror) MirrorRun(ctx context.Context, runID uuid.UUID, ws *Workspace) ([]string, error) {
	var uploaded []string
	var failed int

	roots := []struct {
		dir  string
		name string
	}{
		{ws.Layout.ArtifactDir, "artifacts"},
		{ws.Layout.OutputDir, "after"},
	}

	for _, root := range roots {
		files, err := listFiles(root.dir)
		if err != nil {
			return uploaded, fmt.Errorf("listing %s: %w", root.dir, err)
		}

		for _, rel := range files {
			data, err := os.ReadFile(filepath.Join(root.dir, filepath.FromSlash(rel)))
			if err != nil {
				failed++
				m.logger.Warn("skipping unreadable file", zap.String("file", rel), zap.Error(err))
				continue
			}

			uri, err := m.Upload(ctx, m.RunKey(runID, root.name, rel), data, contentType(rel))
			if err != nil {
				failed++
				m.logger.Warn("upload failed", zap.String("file", rel), zap.Error(err))
				continue
			}
			uploaded = append(uploaded, uri)
		}
	}

	m.logger.Info("mirrored run",
		zap.String("run_id", runID.String()),
		zap.Int("uploaded", len(uploaded)),
		zap.Int("failed", failed),
	)

	if failed > 0 {
		return uploaded, domain.ErrArtifact("mirror", fmt.Errorf("%d of %d uploads failed", failed, failed+len(uploaded)))
	}
	return uploaded, nil
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
