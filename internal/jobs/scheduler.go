package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"authgate/api/internal/config"
	"authgate/api/internal/models"
	"authgate/api/internal/retry"
	"authgate/api/internal/storage"
)

const archiveBatchSize = 1000

// HistoryArchiveSource is the slice of the history store the archival
// job needs.
type HistoryArchiveSource interface {
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.AuthHistoryRecord, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler runs the nightly audit archival: history past the
// retention window is exported to the object store, then pruned.
type Scheduler struct {
	cron    *cron.Cron
	history HistoryArchiveSource
	archive *storage.ArchiveStore
	cfg     config.ArchiveConfig
	retry   retry.Config
	log     zerolog.Logger
}

func NewScheduler(history HistoryArchiveSource, archive *storage.ArchiveStore, cfg config.ArchiveConfig, retryCfg retry.Config, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		history: history,
		archive: archive,
		cfg:     cfg,
		retry:   retryCfg,
		log:     log,
	}
}

func (s *Scheduler) Start() error {
	if !s.cfg.Enabled || s.archive == nil {
		s.log.Info().Msg("audit archival disabled")
		return nil
	}

	if _, err := s.cron.AddFunc("0 3 * * *", s.runArchive); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("archive job did not finish before shutdown")
	}
}

func (s *Scheduler) runArchive() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := s.ArchiveOnce(ctx); err != nil {
		s.log.Error().Err(err).Msg("audit archival failed")
	}
}

// ArchiveOnce exports everything past the retention cutoff in batches
// and prunes the exported rows. Upload failures abort before anything
// is deleted; losing audit data is worse than archiving late.
func (s *Scheduler) ArchiveOnce(ctx context.Context) error {
	cutoff := time.Now().Add(-s.cfg.Retention)

	for batch := 0; ; batch++ {
		records, err := s.history.ListOlderThan(ctx, cutoff, archiveBatchSize)
		if err != nil {
			return fmt.Errorf("list expired history: %w", err)
		}
		if len(records) == 0 {
			break
		}

		key := fmt.Sprintf("auth-history/%s/batch-%04d.ndjson", cutoff.UTC().Format("2006-01-02"), batch)
		err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
			return s.archive.PutBatch(ctx, key, records)
		})
		if err != nil {
			return fmt.Errorf("upload batch %s: %w", key, err)
		}

		deleted, err := s.history.DeleteOlderThan(ctx, records[len(records)-1].OccurredAt.Add(time.Nanosecond))
		if err != nil {
			return fmt.Errorf("prune archived history: %w", err)
		}

		s.log.Info().
			Str("key", key).
			Int("records", len(records)).
			Int64("deleted", deleted).
			Msg("audit batch archived")

		if len(records) < archiveBatchSize {
			break
		}
	}

	return nil
}
