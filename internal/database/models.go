package database

import (
	"encoding/json"
	"time"

	"github.com/mediaforge/mediaforge/internal/media"
)

// JobStatus represents the lifecycle status of a processing job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobType distinguishes video and audio pipelines
type JobType string

const (
	JobTypeVideo JobType = "video"
	JobTypeAudio JobType = "audio"
)

// ProcessingJob is the durable record of a transcoding job. The scheduler
// owns the in-memory copy for the job's lifetime; the persisted row is the
// system of record for status queries after a restart.
type ProcessingJob struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ContentID string    `gorm:"index;type:varchar(64);not null" json:"content_id"`
	UserID    string    `gorm:"index;type:varchar(64)" json:"user_id"`
	Type      JobType   `gorm:"type:varchar(16);not null" json:"type"`
	Status    JobStatus `gorm:"type:varchar(32);not null;index" json:"status"`
	Progress  int       `gorm:"not null" json:"progress"` // 0-100

	// Original input file
	InputKey string `gorm:"type:varchar(512)" json:"input_key"`
	InputURL string `gorm:"type:varchar(1024);not null" json:"input_url"`

	// JSON columns
	Metadata string `gorm:"type:text" json:"-"` // probed media.Metadata
	Outputs  string `gorm:"type:text" json:"-"` // []media.Output
	Options  string `gorm:"type:text" json:"-"` // media.Options

	Error      string    `gorm:"type:text" json:"error,omitempty"`
	RetryCount int       `gorm:"not null" json:"retry_count"`
	CreatedAt  time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

// TableName returns the table name for GORM
func (ProcessingJob) TableName() string {
	return "processing_jobs"
}

// GetMetadata deserializes the probed metadata
func (j *ProcessingJob) GetMetadata() (*media.Metadata, error) {
	if j.Metadata == "" {
		return nil, nil
	}
	var meta media.Metadata
	if err := json.Unmarshal([]byte(j.Metadata), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// SetMetadata serializes the probed metadata
func (j *ProcessingJob) SetMetadata(meta *media.Metadata) error {
	if meta == nil {
		j.Metadata = ""
		return nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	j.Metadata = string(data)
	return nil
}

// GetOutputs deserializes the rendition list
func (j *ProcessingJob) GetOutputs() ([]media.Output, error) {
	if j.Outputs == "" {
		return nil, nil
	}
	var outputs []media.Output
	if err := json.Unmarshal([]byte(j.Outputs), &outputs); err != nil {
		return nil, err
	}
	return outputs, nil
}

// SetOutputs serializes the rendition list
func (j *ProcessingJob) SetOutputs(outputs []media.Output) error {
	if len(outputs) == 0 {
		j.Outputs = ""
		return nil
	}
	data, err := json.Marshal(outputs)
	if err != nil {
		return err
	}
	j.Outputs = string(data)
	return nil
}

// GetOptions deserializes the processing options
func (j *ProcessingJob) GetOptions() (media.Options, error) {
	var opts media.Options
	if j.Options == "" {
		return opts, nil
	}
	err := json.Unmarshal([]byte(j.Options), &opts)
	return opts, err
}

// SetOptions serializes the processing options
func (j *ProcessingJob) SetOptions(opts media.Options) error {
	data, err := json.Marshal(opts)
	if err != nil {
		return err
	}
	j.Options = string(data)
	return nil
}

// IsTerminal reports whether the job reached a final state
func (j *ProcessingJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
