package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"badgerland/internal/models"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const reportTimeLayout = "20060102T150405Z"

// ReportArchiver keeps a copy of every batch job report.
type ReportArchiver interface {
	Archive(ctx context.Context, report *models.JobReport) (string, error)
}

// ObjectStore is the subset of the MinIO client the archive needs.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type minioArchive struct {
	store  ObjectStore
	bucket string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func NewMinioClient(cfg StorageConfig) (*minio.Client, error) {
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
}

// NewReportArchive creates the bucket if needed and returns an archive writing into it.
func NewReportArchive(ctx context.Context, store ObjectStore, bucket string) (ReportArchiver, error) {
	a := &minioArchive{store: store, bucket: bucket}
	if err := a.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *minioArchive) ensureBucket(ctx context.Context) error {
	found, err := a.store.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if !found {
		if err := a.store.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", a.bucket, err)
		}
	}
	return nil
}

// ReportObjectName is reports/<job>/<started-at>.json with the start time in UTC.
func ReportObjectName(report *models.JobReport) string {
	return fmt.Sprintf("reports/%s/%s.json", report.Job, report.StartedAt.UTC().Format(reportTimeLayout))
}

func (a *minioArchive) Archive(ctx context.Context, report *models.JobReport) (string, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	name := ReportObjectName(report)
	_, err = a.store.PutObject(ctx, a.bucket, name, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", name, err)
	}
	return name, nil
}
