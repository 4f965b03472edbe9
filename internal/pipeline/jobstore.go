package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/mediaforge/mediaforge/internal/database"
)

// ErrNotFound is returned when a job id does not exist anywhere.
var ErrNotFound = errors.New("job not found")

// JobStore persists job records; the durable copy is the system-of-record
// for status queries after a restart.
type JobStore struct {
	db     *gorm.DB
	logger hclog.Logger
}

func NewJobStore(db *gorm.DB, logger hclog.Logger) *JobStore {
	return &JobStore{db: db, logger: logger.Named("job-store")}
}

// Save upserts the full job record.
func (s *JobStore) Save(job *database.ProcessingJob) error {
	return s.db.Save(job).Error
}

// Get loads one job by id.
func (s *JobStore) Get(id string) (*database.ProcessingJob, error) {
	var job database.ProcessingJob
	if err := s.db.First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ListByStatus returns jobs in any of the given statuses, oldest first.
func (s *JobStore) ListByStatus(statuses ...database.JobStatus) ([]*database.ProcessingJob, error) {
	var jobs []*database.ProcessingJob
	err := s.db.Where("status IN ?", statuses).Order("created_at ASC").Find(&jobs).Error
	return jobs, err
}

// DeleteOlderThan removes terminal jobs whose last update predates cutoff.
func (s *JobStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res := s.db.Where("status IN ? AND updated_at < ?",
		[]database.JobStatus{database.JobStatusCompleted, database.JobStatusFailed}, cutoff).
		Delete(&database.ProcessingJob{})
	return res.RowsAffected, res.Error
}

// StartRetentionSweep deletes aged-out terminal jobs once a day until the
// context is cancelled.
func (s *JobStore) StartRetentionSweep(ctx context.Context, retention time.Duration) {
	if retention <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.DeleteOlderThan(time.Now().Add(-retention))
				if err != nil {
					s.logger.Warn("retention sweep failed", "error", err)
				} else if n > 0 {
					s.logger.Info("retention sweep removed aged jobs", "count", n)
				}
			}
		}
	}()
}
