package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"authgate/api/internal/config"
	"authgate/api/internal/models"
)

// ArchiveStore writes expired auth-history batches to an S3-compatible
// bucket before they are pruned from the database.
type ArchiveStore struct {
	client *minio.Client
	cfg    config.ArchiveConfig
}

func NewArchiveStore(cfg config.ArchiveConfig) (*ArchiveStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &ArchiveStore{
		client: client,
		cfg:    cfg,
	}, nil
}

func (s *ArchiveStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", s.cfg.Bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.cfg.Bucket, err)
		}
	}
	return nil
}

type archivedRecord struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	DeviceID   string `json:"device_id"`
	Outcome    string `json:"outcome"`
	OccurredAt string `json:"occurred_at"`
}

// PutBatch uploads one JSON-lines object named by the batch key.
func (s *ArchiveStore) PutBatch(ctx context.Context, key string, records []models.AuthHistoryRecord) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		entry := archivedRecord{
			ID:         rec.ID,
			UserID:     rec.UserID,
			DeviceID:   rec.DeviceID,
			Outcome:    string(rec.Outcome),
			OccurredAt: rec.OccurredAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
	}

	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "application/x-ndjson",
	})
	if err != nil {
		return fmt.Errorf("put batch %s: %w", key, err)
	}
	return nil
}
