package media

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		name string
		rate string
		want float64
	}{
		{"integer rational", "30/1", 30},
		{"ntsc rational", "30000/1001", 29.97002997002997},
		{"zero denominator", "30/0", 0},
		{"plain number", "25", 25},
		{"garbage", "abc/def", 0},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ParseFrameRate(tt.rate), 0.0001)
		})
	}
}

func TestParseProbeOutput_Video(t *testing.T) {
	payload := []byte(`{
		"format": {"duration": "60.5", "bit_rate": "4500000", "size": "34000000"},
		"streams": [
			{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "r_frame_rate": "30000/1001"},
			{"codec_type": "audio", "codec_name": "aac", "sample_rate": "48000", "channels": 2}
		]
	}`)

	meta, err := parseProbeOutput(payload)
	require.NoError(t, err)

	assert.Equal(t, 60.5, meta.Duration)
	assert.Equal(t, 4500000, meta.Bitrate)
	assert.Equal(t, int64(34000000), meta.FileSize)
	assert.True(t, meta.HasVideo)
	assert.True(t, meta.HasAudio)
	assert.Equal(t, "h264", meta.VideoCodec)
	assert.Equal(t, 1920, meta.Width)
	assert.Equal(t, 1080, meta.Height)
	assert.InDelta(t, 29.97, meta.FrameRate, 0.01)
	assert.Equal(t, "aac", meta.AudioCodec)
	assert.Equal(t, 48000, meta.SampleRate)
	assert.Equal(t, 2, meta.Channels)
}

func TestParseProbeOutput_AudioOnly(t *testing.T) {
	payload := []byte(`{
		"format": {"duration": "185.2", "bit_rate": "192000", "size": "4449000"},
		"streams": [
			{"codec_type": "audio", "codec_name": "mp3", "sample_rate": "44100", "channels": 2}
		]
	}`)

	meta, err := parseProbeOutput(payload)
	require.NoError(t, err)

	assert.False(t, meta.HasVideo)
	assert.True(t, meta.HasAudio)
	assert.Equal(t, "mp3", meta.AudioCodec)
	assert.Equal(t, 0, meta.Width)
}

func TestParseProbeOutput_NoStreams(t *testing.T) {
	payload := []byte(`{"format": {"duration": "0"}, "streams": []}`)

	_, err := parseProbeOutput(payload)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProbeFailed))
}

func TestParseProbeOutput_Unparseable(t *testing.T) {
	_, err := parseProbeOutput([]byte("not json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProbeFailed))
}

func TestParseProbeOutput_FirstStreamWins(t *testing.T) {
	// Containers can carry more than one video stream; metadata reflects
	// the first one.
	payload := []byte(`{
		"format": {"duration": "10"},
		"streams": [
			{"codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720, "r_frame_rate": "25/1"},
			{"codec_type": "video", "codec_name": "mjpeg", "width": 600, "height": 600, "r_frame_rate": "0/0"}
		]
	}`)

	meta, err := parseProbeOutput(payload)
	require.NoError(t, err)
	assert.Equal(t, "h264", meta.VideoCodec)
	assert.Equal(t, 720, meta.Height)
}
