package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mediaforge/mediaforge/internal/database"
	"github.com/mediaforge/mediaforge/internal/media"
	"github.com/mediaforge/mediaforge/internal/pipeline"
	"github.com/mediaforge/mediaforge/internal/streaming"
)

// submitJobRequest is the submission body shared by video and audio jobs.
type submitJobRequest struct {
	ContentID string        `json:"content_id"`
	UserID    string        `json:"user_id"`
	InputKey  string        `json:"input_key"`
	InputURL  string        `json:"input_url" binding:"required"`
	Options   media.Options `json:"options"`
}

func (s *Server) submitVideoJob(c *gin.Context) {
	s.submitJob(c, database.JobTypeVideo)
}

func (s *Server) submitAudioJob(c *gin.Context) {
	s.submitJob(c, database.JobTypeAudio)
}

func (s *Server) submitJob(c *gin.Context, jobType database.JobType) {
	var req submitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := s.scheduler.Submit(c.Request.Context(), pipeline.SubmitRequest{
		ContentID: req.ContentID,
		UserID:    req.UserID,
		Type:      jobType,
		InputKey:  req.InputKey,
		InputURL:  req.InputURL,
		Options:   req.Options,
	})
	switch {
	case errors.Is(err, pipeline.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue is full, retry later"})
	case errors.Is(err, pipeline.ErrShuttingDown):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server is shutting down"})
	case errors.Is(err, media.ErrProbeFailed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusAccepted, job)
	}
}

func (s *Server) getJob(c *gin.Context) {
	job, err := s.scheduler.GetJob(c.Param("id"))
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) cancelJob(c *gin.Context) {
	err := s.scheduler.CancelJob(c.Param("id"))
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) queueStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"queue": s.scheduler.Stats(),
		"load":  s.load.Sample(),
	})
}

// buildManifest returns a playback manifest for a completed job, tuned
// to the delivery options in the request body. When the caller names a
// tracked session, its predicted bandwidth overrides the reported one.
func (s *Server) buildManifest(c *gin.Context) {
	job, err := s.scheduler.GetJob(c.Param("id"))
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if job.Status != database.JobStatusCompleted {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "job has no playable outputs yet",
			"status": job.Status,
		})
		return
	}

	var opts streaming.DeliveryOptions
	if err := c.ShouldBindJSON(&opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if session := c.Query("session"); session != "" {
		if predicted := s.optimizer.PredictBandwidth(session); predicted > 0 {
			opts.DownlinkBPS = predicted
		}
	}

	outputs, err := job.GetOutputs()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	meta, err := job.GetMetadata()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	manifest := s.optimizer.BuildManifest(outputs, streaming.ManifestMetadata{
		Duration:    meta.Duration,
		ContentType: string(job.Type),
		ArtistID:    job.UserID,
		ContentID:   job.ContentID,
	}, opts)

	c.JSON(http.StatusOK, gin.H{
		"manifest":    manifest,
		"recommended": s.optimizer.RecommendQuality(manifest.Qualities, opts),
		"preloading":  s.optimizer.GeneratePreloadingStrategy(manifest, opts),
	})
}

type bandwidthRequest struct {
	BitsPerSecond float64 `json:"bits_per_second" binding:"required"`
}

func (s *Server) trackBandwidth(c *gin.Context) {
	var req bandwidthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session := c.Param("session")
	s.optimizer.TrackBandwidth(session, streaming.BandwidthSample{BitsPerSecond: req.BitsPerSecond})
	c.JSON(http.StatusOK, gin.H{
		"session":   session,
		"predicted": s.optimizer.PredictBandwidth(session),
	})
}
