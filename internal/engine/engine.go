// Package engine produces media renditions by driving an external encoder.
// Given an input file and processing options it selects a quality ladder,
// encodes one rendition per rung, generates thumbnails, preview clips and
// waveform images, and uploads every artifact to blob storage. A single
// rendition's failure is logged and skipped so its siblings still complete.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mediaforge/mediaforge/internal/config"
	"github.com/mediaforge/mediaforge/internal/media"
	"github.com/mediaforge/mediaforge/internal/storage"
)

// ProgressFunc receives coarse completion milestones in [0,100].
type ProgressFunc = func(percent int)

// Engine turns one input file into a set of uploaded renditions.
type Engine struct {
	runner      Runner
	prober      *media.Prober
	store       storage.BlobStore
	logger      hclog.Logger
	ffmpeg      string
	tempDir     string
	thumbCount  int
	segmentSecs int
}

// defaultThumbnailCount applies when neither the job options nor the
// configuration name a count.
const defaultThumbnailCount = 3

// New creates a transcoding engine backed by the given runner and blob store.
func New(cfg config.TranscodingConfig, runner Runner, prober *media.Prober, store storage.BlobStore, logger hclog.Logger) *Engine {
	ffmpeg := cfg.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "mediaforge")
	}
	thumbCount := cfg.ThumbnailCount
	if thumbCount <= 0 {
		thumbCount = defaultThumbnailCount
	}
	return &Engine{
		runner:      runner,
		prober:      prober,
		store:       store,
		logger:      logger.Named("engine"),
		ffmpeg:      ffmpeg,
		tempDir:     tempDir,
		thumbCount:  thumbCount,
		segmentSecs: cfg.SegmentDuration,
	}
}

// Shutdown force-kills any encoder process still running after the job
// contexts were cancelled.
func (e *Engine) Shutdown() {
	e.runner.KillAll()
}

// ExtractMetadata probes the input file.
func (e *Engine) ExtractMetadata(ctx context.Context, path string) (*media.Metadata, error) {
	return e.prober.Probe(ctx, path)
}

// ProcessVideo encodes the ladder selected for the input and uploads every
// artifact under outputPrefix. At least one rendition is always attempted;
// the lowest rung serves as fallback when the input is smaller than every
// requested quality. An error is returned only when no video rendition
// could be produced at all.
func (e *Engine) ProcessVideo(ctx context.Context, inputPath, outputPrefix string, meta *media.Metadata, opts media.Options, progress ProgressFunc) ([]media.Output, error) {
	report := progressOrNoop(progress)
	report(10)

	workDir, err := e.makeWorkDir()
	if err != nil {
		return nil, err
	}

	var outputs []media.Output

	thumbCount := opts.Thumbnails
	if thumbCount == 0 {
		thumbCount = e.thumbCount
	}
	if thumbCount > 0 {
		thumbs, err := e.GenerateThumbnails(ctx, inputPath, outputPrefix, thumbCount, meta)
		if err != nil {
			e.logger.Warn("thumbnail generation failed", "input", inputPath, "error", err)
		} else {
			outputs = append(outputs, thumbs...)
		}
		report(20)
	}

	if !opts.SkipPreview {
		preview, err := e.GeneratePreview(ctx, inputPath, outputPrefix)
		if err != nil {
			e.logger.Warn("preview generation failed", "input", inputPath, "error", err)
		} else {
			outputs = append(outputs, *preview)
		}
		report(30)
	}

	inputHeight := 0
	frameRate := frameRateOrDefault(meta)
	if meta != nil {
		inputHeight = meta.Height
	}
	ladder := SelectVideoLadder(inputHeight, opts.Qualities)

	var renditionsOK int
	var lastErr error
	for i, preset := range ladder {
		if err := ctx.Err(); err != nil {
			return outputs, err
		}

		out, err := e.encodeRendition(ctx, workDir, inputPath, outputPrefix, preset, frameRate, opts)
		if err != nil {
			e.logger.Error("rendition failed, skipping quality",
				"quality", preset.Name, "input", inputPath, "error", err)
			lastErr = err
		} else {
			outputs = append(outputs, *out)
			renditionsOK++
		}

		report(40 + (i+1)*50/len(ladder))
	}

	if opts.EnableHLS && renditionsOK > 0 {
		hlsOut, err := e.encodeHLSRendition(ctx, workDir, inputPath, outputPrefix, ladder[0], frameRate, opts)
		if err != nil {
			e.logger.Error("segmented rendition failed", "input", inputPath, "error", err)
		} else {
			outputs = append(outputs, *hlsOut)
		}
	}

	if renditionsOK == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("all renditions failed: %w", lastErr)
		}
		return nil, fmt.Errorf("%w: no rendition produced", ErrEncodeFailed)
	}

	report(100)
	return outputs, nil
}

// ProcessAudio encodes the audio ladder and uploads every artifact under
// outputPrefix, optionally appending a waveform image.
func (e *Engine) ProcessAudio(ctx context.Context, inputPath, outputPrefix string, meta *media.Metadata, opts media.Options, progress ProgressFunc) ([]media.Output, error) {
	report := progressOrNoop(progress)
	report(10)

	workDir, err := e.makeWorkDir()
	if err != nil {
		return nil, err
	}

	var outputs []media.Output

	if opts.GenerateWaveform {
		wave, err := e.generateWaveform(ctx, workDir, inputPath, outputPrefix)
		if err != nil {
			e.logger.Warn("waveform generation failed", "input", inputPath, "error", err)
		} else {
			outputs = append(outputs, *wave)
		}
		report(30)
	}

	ladder := SelectAudioLadder(opts.Qualities)

	var renditionsOK int
	var lastErr error
	for i, preset := range ladder {
		if err := ctx.Err(); err != nil {
			return outputs, err
		}

		localPath := filepath.Join(workDir, preset.Name+".m4a")
		key := outputPrefix + "/" + preset.Name + ".m4a"

		args := buildAudioArgs(inputPath, localPath, preset, opts.NormalizeAudio)
		if err := e.runner.Run(ctx, e.ffmpeg, args...); err != nil {
			e.logger.Error("audio rendition failed, skipping quality",
				"quality", preset.Name, "input", inputPath, "error", err)
			lastErr = err
			report(40 + (i+1)*50/len(ladder))
			continue
		}

		out, err := e.uploadOutput(ctx, localPath, key, preset.Name, "m4a")
		if err != nil {
			e.logger.Error("audio rendition upload failed, skipping quality",
				"quality", preset.Name, "input", inputPath, "error", err)
			lastErr = err
			report(40 + (i+1)*50/len(ladder))
			continue
		}
		out.Bitrate = preset.Bitrate * 1000
		if meta != nil {
			out.Duration = meta.Duration
		}
		outputs = append(outputs, *out)
		renditionsOK++
		report(40 + (i+1)*50/len(ladder))
	}

	if renditionsOK == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("all renditions failed: %w", lastErr)
		}
		return nil, fmt.Errorf("%w: no rendition produced", ErrEncodeFailed)
	}

	report(100)
	return outputs, nil
}

// GenerateThumbnails extracts count frames at the interior boundaries of
// count+1 equal intervals. Each frame failing is logged and skipped.
func (e *Engine) GenerateThumbnails(ctx context.Context, inputPath, outputPrefix string, count int, meta *media.Metadata) ([]media.Output, error) {
	if count <= 0 {
		return nil, nil
	}

	duration := 0.0
	if meta != nil {
		duration = meta.Duration
	}
	if duration <= 0 {
		return nil, fmt.Errorf("cannot place thumbnails: unknown duration")
	}

	workDir, err := e.makeWorkDir()
	if err != nil {
		return nil, err
	}

	interval := duration / float64(count+1)
	var outputs []media.Output
	for i := 1; i <= count; i++ {
		offset := interval * float64(i)
		localPath := filepath.Join(workDir, fmt.Sprintf("thumb_%d.jpg", i))
		key := fmt.Sprintf("%s/thumbnails/thumb_%d.jpg", outputPrefix, i)

		args := buildThumbnailArgs(inputPath, localPath, offset)
		if err := e.runner.Run(ctx, e.ffmpeg, args...); err != nil {
			e.logger.Warn("thumbnail extraction failed, skipping",
				"index", i, "offset", offset, "error", err)
			continue
		}

		out, err := e.uploadOutput(ctx, localPath, key, fmt.Sprintf("thumbnail-%d", i), "jpg")
		if err != nil {
			e.logger.Warn("thumbnail upload failed, skipping", "index", i, "error", err)
			continue
		}
		outputs = append(outputs, *out)
	}
	return outputs, nil
}

// GeneratePreview extracts a short clip near the start of the input,
// downsampled to the lowest rung.
func (e *Engine) GeneratePreview(ctx context.Context, inputPath, outputPrefix string) (*media.Output, error) {
	workDir, err := e.makeWorkDir()
	if err != nil {
		return nil, err
	}

	localPath := filepath.Join(workDir, "preview.mp4")
	key := outputPrefix + "/preview.mp4"

	if err := e.runner.Run(ctx, e.ffmpeg, buildPreviewArgs(inputPath, localPath)...); err != nil {
		return nil, err
	}

	out, err := e.uploadOutput(ctx, localPath, key, "preview", "mp4")
	if err != nil {
		return nil, err
	}
	out.Duration = previewDurationSeconds
	low := videoPresets[len(videoPresets)-1]
	out.Width, out.Height = low.Width, low.Height
	return out, nil
}

// Cleanup removes temp artifacts older than maxAge. Best effort only;
// failures are logged and never propagated.
func (e *Engine) Cleanup(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)

	entries, err := os.ReadDir(e.tempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			e.logger.Warn("cleanup: cannot read temp directory", "dir", e.tempDir, "error", err)
		}
		return
	}

	var removed int
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(e.tempDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			e.logger.Warn("cleanup: failed to remove", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		e.logger.Info("cleaned up temp artifacts", "removed", removed, "max_age", maxAge)
	}
}

func (e *Engine) encodeRendition(ctx context.Context, workDir, inputPath, outputPrefix string, preset VideoPreset, frameRate float64, opts media.Options) (*media.Output, error) {
	localPath := filepath.Join(workDir, preset.Name+".mp4")
	key := outputPrefix + "/" + preset.Name + ".mp4"

	args := buildVideoArgs(encodeParams{
		input:     inputPath,
		output:    localPath,
		preset:    preset,
		frameRate: frameRate,
		watermark: opts.WatermarkText,
		normalize: opts.NormalizeAudio,
	})
	if err := e.runner.Run(ctx, e.ffmpeg, args...); err != nil {
		return nil, err
	}

	out, err := e.uploadOutput(ctx, localPath, key, preset.Name, "mp4")
	if err != nil {
		return nil, err
	}
	out.Width, out.Height = preset.Width, preset.Height
	out.Bitrate = preset.Bitrate * 1000
	return out, nil
}

// encodeHLSRendition produces a playlist plus segments for the given rung
// and uploads each file individually. The returned output's key is the
// playlist's key.
func (e *Engine) encodeHLSRendition(ctx context.Context, workDir, inputPath, outputPrefix string, preset VideoPreset, frameRate float64, opts media.Options) (*media.Output, error) {
	segmentDir := filepath.Join(workDir, "hls_"+preset.Name)
	if err := os.MkdirAll(segmentDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create segment directory: %w", err)
	}

	playlistPath := filepath.Join(segmentDir, "playlist.m3u8")
	args := buildVideoArgs(encodeParams{
		input:          inputPath,
		output:         playlistPath,
		preset:         preset,
		frameRate:      frameRate,
		watermark:      opts.WatermarkText,
		normalize:      opts.NormalizeAudio,
		hls:            true,
		segmentDir:     segmentDir,
		segmentSeconds: e.segmentSecs,
	})
	if err := e.runner.Run(ctx, e.ffmpeg, args...); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(segmentDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read segment directory: %w", err)
	}

	keyPrefix := fmt.Sprintf("%s/hls/%s", outputPrefix, preset.Name)
	playlistKey := keyPrefix + "/playlist.m3u8"

	var playlistURL string
	var totalSize int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		localPath := filepath.Join(segmentDir, entry.Name())
		key := keyPrefix + "/" + entry.Name()

		url, err := e.store.PutFile(ctx, localPath, key, storage.ContentTypeForExt(filepath.Ext(entry.Name())))
		if err != nil {
			return nil, fmt.Errorf("failed to upload segment %s: %w", entry.Name(), err)
		}
		if info, err := entry.Info(); err == nil {
			totalSize += info.Size()
		}
		if key == playlistKey {
			playlistURL = url
		}
	}
	if playlistURL == "" {
		return nil, fmt.Errorf("%w: playlist not produced", ErrEncodeFailed)
	}

	return &media.Output{
		Quality:  preset.Name,
		Format:   "hls",
		URL:      playlistURL,
		Key:      playlistKey,
		FileSize: totalSize,
		Width:    preset.Width,
		Height:   preset.Height,
		Bitrate:  preset.Bitrate * 1000,
	}, nil
}

func (e *Engine) generateWaveform(ctx context.Context, workDir, inputPath, outputPrefix string) (*media.Output, error) {
	localPath := filepath.Join(workDir, "waveform.png")
	key := outputPrefix + "/waveform.png"

	if err := e.runner.Run(ctx, e.ffmpeg, buildWaveformArgs(inputPath, localPath)...); err != nil {
		return nil, err
	}
	return e.uploadOutput(ctx, localPath, key, "waveform", "png")
}

// uploadOutput pushes a finished artifact to the blob store and fills in
// the size and URL fields. Upload failures are hard errors for the output.
func (e *Engine) uploadOutput(ctx context.Context, localPath, key, quality, format string) (*media.Output, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("encoded artifact missing: %w", err)
	}

	url, err := e.store.PutFile(ctx, localPath, key, storage.ContentTypeForExt(filepath.Ext(localPath)))
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return &media.Output{
		Quality:  quality,
		Format:   format,
		URL:      url,
		Key:      key,
		FileSize: info.Size(),
	}, nil
}

func (e *Engine) makeWorkDir() (string, error) {
	if err := os.MkdirAll(e.tempDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	dir, err := os.MkdirTemp(e.tempDir, "job-")
	if err != nil {
		return "", fmt.Errorf("failed to create work directory: %w", err)
	}
	return dir, nil
}

func progressOrNoop(fn ProgressFunc) ProgressFunc {
	if fn == nil {
		return func(int) {}
	}
	return fn
}
