package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/mediaforge/mediaforge/internal/config"
	"github.com/mediaforge/mediaforge/internal/database"
)

func TestWatcherSubmitsDroppedFile(t *testing.T) {
	proc := &fakeProcessor{}
	sched, store, _ := newTestScheduler(t, testQueueConfig(), proc)

	dir := t.TempDir()
	watcher, err := NewWatcher(config.IngestConfig{Enabled: true, WatchDir: dir}, sched, hclog.NewNullLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher.Start(ctx)

	path := filepath.Join(dir, "episode-01.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not really mpeg4"), 0644))

	waitForLong(t, "ingested job completed", func() bool {
		jobs, err := store.ListByStatus(database.JobStatusCompleted)
		return err == nil && len(jobs) == 1 && jobs[0].ContentID == "episode-01"
	})
}

func TestWatcherIgnoresNonMediaFiles(t *testing.T) {
	proc := &fakeProcessor{}
	sched, store, _ := newTestScheduler(t, testQueueConfig(), proc)

	dir := t.TempDir()
	watcher, err := NewWatcher(config.IngestConfig{Enabled: true, WatchDir: dir}, sched, hclog.NewNullLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "track.mp3"), []byte("audio"), 0644))

	waitForLong(t, "only the audio file queued", func() bool {
		jobs, err := store.ListByStatus(
			database.JobStatusQueued, database.JobStatusProcessing, database.JobStatusCompleted)
		return err == nil && len(jobs) == 1 && jobs[0].Type == database.JobTypeAudio
	})
}

func TestWatcherSettlesFilesIndependently(t *testing.T) {
	proc := &fakeProcessor{}
	sched, store, _ := newTestScheduler(t, testQueueConfig(), proc)

	dir := t.TempDir()
	watcher, err := NewWatcher(config.IngestConfig{Enabled: true, WatchDir: dir}, sched, hclog.NewNullLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher.Start(ctx)

	// One file keeps growing for the whole test, as if a large copy were
	// still in flight.
	growing := filepath.Join(dir, "still-copying.mp4")
	require.NoError(t, os.WriteFile(growing, []byte("x"), 0644))
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		f, err := os.OpenFile(growing, os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return
		}
		defer f.Close()
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				f.Write([]byte("more"))
			}
		}
	}()

	// A fully formed file dropped afterwards must still be ingested.
	ready := filepath.Join(dir, "ready.mkv")
	require.NoError(t, os.WriteFile(ready, []byte("complete file"), 0644))

	waitForLong(t, "ready file ingested while the other still copies", func() bool {
		jobs, err := store.ListByStatus(database.JobStatusCompleted)
		if err != nil {
			return false
		}
		for _, j := range jobs {
			if j.ContentID == "ready" {
				return true
			}
		}
		return false
	})
}

// waitForLong allows for the watcher's settle polling interval.
func waitForLong(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
