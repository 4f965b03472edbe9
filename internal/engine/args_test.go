package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func argValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestBuildVideoArgs_FixedGOP(t *testing.T) {
	args := buildVideoArgs(encodeParams{
		input:     "in.mp4",
		output:    "out.mp4",
		preset:    VideoPreset{Name: "720p", Width: 1280, Height: 720, Bitrate: 3000},
		frameRate: 24,
	})

	// Keyframe interval is two seconds of frames with scene cut disabled,
	// so segment boundaries line up across the ladder.
	assert.Equal(t, "48", argValue(args, "-g"))
	assert.Equal(t, "48", argValue(args, "-keyint_min"))
	assert.Equal(t, "0", argValue(args, "-sc_threshold"))
	assert.Equal(t, "3000k", argValue(args, "-b:v"))
	assert.Contains(t, argValue(args, "-vf"), "scale=1280:720")
	assert.Equal(t, "out.mp4", args[len(args)-1])
}

func TestBuildVideoArgs_ZeroFrameRateDefaults(t *testing.T) {
	args := buildVideoArgs(encodeParams{
		input:  "in.mp4",
		output: "out.mp4",
		preset: VideoPreset{Name: "360p", Width: 640, Height: 360, Bitrate: 800},
	})
	assert.Equal(t, "60", argValue(args, "-g")) // 30 fps default, 2 s GOP
}

func TestBuildVideoArgs_Watermark(t *testing.T) {
	args := buildVideoArgs(encodeParams{
		input:     "in.mp4",
		output:    "out.mp4",
		preset:    VideoPreset{Name: "480p", Width: 854, Height: 480, Bitrate: 1500},
		watermark: "it's: mine",
	})
	vf := argValue(args, "-vf")
	assert.Contains(t, vf, "drawtext=text=")
	assert.Contains(t, vf, `it\'s\: mine`)
}

func TestBuildVideoArgs_Loudnorm(t *testing.T) {
	args := buildVideoArgs(encodeParams{
		input:     "in.mp4",
		output:    "out.mp4",
		preset:    VideoPreset{Name: "360p", Width: 640, Height: 360, Bitrate: 800},
		normalize: true,
	})
	assert.Contains(t, argValue(args, "-af"), "loudnorm")
}

func TestBuildVideoArgs_HLS(t *testing.T) {
	args := buildVideoArgs(encodeParams{
		input:      "in.mp4",
		output:     "/work/hls/playlist.m3u8",
		preset:     VideoPreset{Name: "720p", Width: 1280, Height: 720, Bitrate: 3000},
		hls:        true,
		segmentDir: "/work/hls",
	})
	assert.Equal(t, "hls", argValue(args, "-f"))
	assert.Equal(t, "6", argValue(args, "-hls_time"))
	assert.Equal(t, "vod", argValue(args, "-hls_playlist_type"))
	assert.Equal(t, "/work/hls/segment_%03d.ts", argValue(args, "-hls_segment_filename"))
	assert.NotContains(t, args, "-movflags")

	args = buildVideoArgs(encodeParams{
		input:          "in.mp4",
		output:         "/work/hls/playlist.m3u8",
		preset:         VideoPreset{Name: "720p", Width: 1280, Height: 720, Bitrate: 3000},
		hls:            true,
		segmentDir:     "/work/hls",
		segmentSeconds: 4,
	})
	assert.Equal(t, "4", argValue(args, "-hls_time"))
}

func TestBuildAudioArgs(t *testing.T) {
	args := buildAudioArgs("in.wav", "out.m4a", AudioPreset{Name: "high", Bitrate: 320, SampleRate: 48000}, true)
	assert.Contains(t, args, "-vn")
	assert.Equal(t, "320k", argValue(args, "-b:a"))
	assert.Equal(t, "48000", argValue(args, "-ar"))
	assert.Contains(t, argValue(args, "-af"), "loudnorm")
	assert.Equal(t, "out.m4a", args[len(args)-1])
}

func TestBuildThumbnailArgs(t *testing.T) {
	args := buildThumbnailArgs("in.mp4", "thumb.jpg", 12.5)
	assert.Equal(t, "12.500", argValue(args, "-ss"))
	assert.Equal(t, "1", argValue(args, "-vframes"))
}

func TestBuildPreviewArgs(t *testing.T) {
	args := buildPreviewArgs("in.mp4", "preview.mp4")
	assert.Equal(t, "3", argValue(args, "-ss"))
	assert.Equal(t, "15", argValue(args, "-t"))
	assert.Contains(t, argValue(args, "-vf"), "scale=640:360")
	assert.Equal(t, "800k", argValue(args, "-b:v"))
}

func TestBuildWaveformArgs(t *testing.T) {
	args := buildWaveformArgs("in.mp3", "wave.png")
	require.NotEmpty(t, args)
	assert.True(t, strings.Contains(argValue(args, "-filter_complex"), "showwavespic"))
}
