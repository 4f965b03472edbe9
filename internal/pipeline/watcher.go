package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"

	"github.com/mediaforge/mediaforge/internal/config"
	"github.com/mediaforge/mediaforge/internal/database"
	"github.com/mediaforge/mediaforge/internal/media"
)

var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".mov": true, ".avi": true, ".webm": true,
}

var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".m4a": true, ".aac": true, ".ogg": true,
}

// Watcher submits a transcode job for every media file dropped into the
// configured ingest directory.
type Watcher struct {
	dir       string
	scheduler *Scheduler
	logger    hclog.Logger
	fs        *fsnotify.Watcher

	mu       sync.Mutex
	settling map[string]bool
}

func NewWatcher(cfg config.IngestConfig, scheduler *Scheduler, logger hclog.Logger) (*Watcher, error) {
	if err := os.MkdirAll(cfg.WatchDir, 0755); err != nil {
		return nil, err
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(cfg.WatchDir); err != nil {
		fs.Close()
		return nil, err
	}
	return &Watcher{
		dir:       cfg.WatchDir,
		scheduler: scheduler,
		logger:    logger.Named("ingest-watcher"),
		fs:        fs,
		settling:  make(map[string]bool),
	}, nil
}

// Start consumes filesystem events until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		defer w.fs.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.fs.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				w.handle(ctx, event.Name)
			case err, ok := <-w.fs.Errors:
				if !ok {
					return
				}
				w.logger.Warn("watch error", "error", err)
			}
		}
	}()
	w.logger.Info("watching ingest directory", "dir", w.dir)
}

// handle settles each candidate in its own goroutine so one large file
// still being copied in never stalls ingestion of other drops. A path
// already being settled is left to its running goroutine.
func (w *Watcher) handle(ctx context.Context, path string) {
	ext := strings.ToLower(filepath.Ext(path))
	var jobType database.JobType
	switch {
	case videoExtensions[ext]:
		jobType = database.JobTypeVideo
	case audioExtensions[ext]:
		jobType = database.JobTypeAudio
	default:
		return
	}

	w.mu.Lock()
	if w.settling[path] {
		w.mu.Unlock()
		return
	}
	w.settling[path] = true
	w.mu.Unlock()

	go func() {
		defer func() {
			w.mu.Lock()
			delete(w.settling, path)
			w.mu.Unlock()
		}()
		w.ingest(ctx, path, jobType)
	}()
}

func (w *Watcher) ingest(ctx context.Context, path string, jobType database.JobType) {
	if !w.waitSettled(ctx, path) {
		return
	}

	ext := strings.ToLower(filepath.Ext(path))
	contentID := strings.TrimSuffix(filepath.Base(path), ext)
	_, err := w.scheduler.Submit(ctx, SubmitRequest{
		ContentID: contentID,
		Type:      jobType,
		InputKey:  filepath.Base(path),
		InputURL:  path,
		Options: media.Options{
			EnableHLS:        jobType == database.JobTypeVideo,
			GenerateWaveform: jobType == database.JobTypeAudio,
		},
	})
	switch {
	case errors.Is(err, ErrQueueFull):
		w.logger.Warn("ingest skipped, queue full", "path", path)
	case errors.Is(err, ErrShuttingDown):
	case err != nil:
		w.logger.Error("ingest submission failed", "path", path, "error", err)
	default:
		w.logger.Info("ingested file", "path", path, "type", jobType)
	}
}

// waitSettled polls the file size until it stops growing, so a job is not
// submitted while the file is still being copied in.
func (w *Watcher) waitSettled(ctx context.Context, path string) bool {
	var lastSize int64 = -1
	for i := 0; i < 60; i++ {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(500 * time.Millisecond):
		}

		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		if info.Size() == lastSize && info.Size() > 0 {
			return true
		}
		lastSize = info.Size()
	}
	w.logger.Warn("file never settled, skipping", "path", path)
	return false
}
