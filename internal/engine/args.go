package engine

import (
	"fmt"
	"strings"

	"github.com/mediaforge/mediaforge/internal/media"
)

// encodeParams collects the per-rendition knobs fed to the args builder.
type encodeParams struct {
	input          string
	output         string
	preset         VideoPreset
	frameRate      float64
	watermark      string
	normalize      bool
	hls            bool
	segmentDir     string
	segmentSeconds int
}

const defaultSegmentSeconds = 6

// buildVideoArgs assembles an ffmpeg invocation for one video rendition.
// Keyframes are pinned to a fixed GOP (2 seconds worth of frames, scene
// detection off) so segment boundaries stay aligned across the ladder.
func buildVideoArgs(p encodeParams) []string {
	args := []string{
		"-y", "-hide_banner",
		"-i", p.input,
		"-c:v", "libx264",
		"-preset", "fast",
		"-b:v", fmt.Sprintf("%dk", p.preset.Bitrate),
		"-maxrate", fmt.Sprintf("%dk", p.preset.Bitrate),
		"-bufsize", fmt.Sprintf("%dk", p.preset.Bitrate*2),
	}

	fps := p.frameRate
	if fps <= 0 {
		fps = 30
	}
	keyint := int(fps * 2)
	args = append(args,
		"-g", fmt.Sprintf("%d", keyint),
		"-keyint_min", fmt.Sprintf("%d", keyint),
		"-sc_threshold", "0",
	)

	filters := []string{fmt.Sprintf("scale=%d:%d", p.preset.Width, p.preset.Height)}
	if p.watermark != "" {
		filters = append(filters, drawtextFilter(p.watermark))
	}
	args = append(args, "-vf", strings.Join(filters, ","))

	args = append(args, "-c:a", "aac", "-b:a", "128k")
	if p.normalize {
		args = append(args, "-af", "loudnorm=I=-16:TP=-1.5:LRA=11")
	}

	if p.hls {
		seg := p.segmentSeconds
		if seg <= 0 {
			seg = defaultSegmentSeconds
		}
		args = append(args,
			"-f", "hls",
			"-hls_time", fmt.Sprintf("%d", seg),
			"-hls_playlist_type", "vod",
			"-hls_segment_filename", p.segmentDir+"/segment_%03d.ts",
		)
	} else {
		args = append(args, "-movflags", "+faststart")
	}

	args = append(args, p.output)
	return args
}

// buildAudioArgs assembles an ffmpeg invocation for one audio rendition.
func buildAudioArgs(input, output string, p AudioPreset, normalize bool) []string {
	args := []string{
		"-y", "-hide_banner",
		"-i", input,
		"-vn",
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", p.Bitrate),
		"-ar", fmt.Sprintf("%d", p.SampleRate),
	}
	if normalize {
		args = append(args, "-af", "loudnorm=I=-16:TP=-1.5:LRA=11")
	}
	args = append(args, output)
	return args
}

// buildThumbnailArgs extracts a single frame at the given offset.
func buildThumbnailArgs(input, output string, offset float64) []string {
	return []string{
		"-y", "-hide_banner",
		"-ss", fmt.Sprintf("%.3f", offset),
		"-i", input,
		"-vframes", "1",
		"-vf", "scale=320:-2",
		output,
	}
}

// Preview clips are a short window from near the start of the file,
// downsampled to the lowest rung.
const (
	previewOffsetSeconds   = 3
	previewDurationSeconds = 15
)

func buildPreviewArgs(input, output string) []string {
	low := videoPresets[len(videoPresets)-1]
	return []string{
		"-y", "-hide_banner",
		"-ss", fmt.Sprintf("%d", previewOffsetSeconds),
		"-i", input,
		"-t", fmt.Sprintf("%d", previewDurationSeconds),
		"-c:v", "libx264",
		"-preset", "fast",
		"-b:v", fmt.Sprintf("%dk", low.Bitrate),
		"-vf", fmt.Sprintf("scale=%d:%d", low.Width, low.Height),
		"-c:a", "aac", "-b:a", "128k",
		"-movflags", "+faststart",
		output,
	}
}

// buildWaveformArgs renders a waveform image for an audio input.
func buildWaveformArgs(input, output string) []string {
	return []string{
		"-y", "-hide_banner",
		"-i", input,
		"-filter_complex", "showwavespic=s=1280x240:colors=#4a90d9",
		"-frames:v", "1",
		output,
	}
}

// drawtextFilter escapes the watermark text for ffmpeg's filter syntax.
func drawtextFilter(text string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`).Replace(text)
	return fmt.Sprintf(
		"drawtext=text='%s':fontcolor=white@0.6:fontsize=24:x=w-tw-10:y=h-th-10",
		escaped,
	)
}

// frameRateOrDefault guards against inputs whose probe produced no rate.
func frameRateOrDefault(m *media.Metadata) float64 {
	if m != nil && m.FrameRate > 0 {
		return m.FrameRate
	}
	return 30
}
