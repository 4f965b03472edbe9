package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// ErrProbeFailed indicates the input could not be read or contains no usable
// streams. Probe failures are not retryable.
var ErrProbeFailed = errors.New("media probe failed")

// Prober uses ffprobe to extract media information
type Prober struct {
	ffprobePath string
	logger      hclog.Logger
}

// NewProber creates a new media prober
func NewProber(ffprobePath string, logger hclog.Logger) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{
		ffprobePath: ffprobePath,
		logger:      logger.Named("prober"),
	}
}

// probeResult mirrors the ffprobe JSON output we care about
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
		Size     string `json:"size"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		SampleRate   string `json:"sample_rate"`
		Channels     int    `json:"channels"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

// Probe extracts container and stream metadata from a media file.
// It is read-only and idempotent; repeated calls return the same result.
func (p *Prober) Probe(ctx context.Context, path string) (*Metadata, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: ffprobe: %v - %s", ErrProbeFailed, err, strings.TrimSpace(stderr.String()))
	}

	meta, err := parseProbeOutput(stdout.Bytes())
	if err != nil {
		return nil, err
	}

	// Audio-only inputs get tag enrichment; failures are non-fatal.
	if meta.HasAudio && !meta.HasVideo {
		if err := enrichTags(path, meta); err != nil {
			p.logger.Debug("tag enrichment skipped", "path", path, "error", err)
		}
	}

	p.logger.Debug("probed media file",
		"path", path,
		"duration", meta.Duration,
		"video", meta.HasVideo,
		"audio", meta.HasAudio)

	return meta, nil
}

// parseProbeOutput converts raw ffprobe JSON into Metadata
func parseProbeOutput(data []byte) (*Metadata, error) {
	var result probeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: unparseable ffprobe output: %v", ErrProbeFailed, err)
	}

	meta := &Metadata{}
	meta.Duration, _ = strconv.ParseFloat(result.Format.Duration, 64)
	meta.Bitrate, _ = strconv.Atoi(result.Format.BitRate)
	meta.FileSize, _ = strconv.ParseInt(result.Format.Size, 10, 64)

	for _, stream := range result.Streams {
		switch stream.CodecType {
		case "video":
			// Some containers expose cover art as a video stream; a real
			// video stream has a frame rate.
			if meta.HasVideo {
				continue
			}
			meta.HasVideo = true
			meta.VideoCodec = stream.CodecName
			meta.Width = stream.Width
			meta.Height = stream.Height
			rate := stream.RFrameRate
			if rate == "" {
				rate = stream.AvgFrameRate
			}
			meta.FrameRate = ParseFrameRate(rate)
		case "audio":
			if meta.HasAudio {
				continue
			}
			meta.HasAudio = true
			meta.AudioCodec = stream.CodecName
			meta.SampleRate, _ = strconv.Atoi(stream.SampleRate)
			meta.Channels = stream.Channels
		}
	}

	if !meta.HasAudio && !meta.HasVideo {
		return nil, fmt.Errorf("%w: no audio or video streams found", ErrProbeFailed)
	}

	return meta, nil
}

// ParseFrameRate converts an ffprobe rational string ("30000/1001") to a
// float. A zero denominator yields 0 rather than an error.
func ParseFrameRate(rate string) float64 {
	parts := strings.SplitN(rate, "/", 2)
	if len(parts) != 2 {
		f, _ := strconv.ParseFloat(rate, 64)
		return f
	}

	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den == 0 {
		return 0
	}
	return num / den
}
