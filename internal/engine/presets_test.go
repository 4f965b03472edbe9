package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectVideoLadder(t *testing.T) {
	tests := []struct {
		name        string
		inputHeight int
		requested   []string
		want        []string
	}{
		{
			name:        "full ladder for 1080p input",
			inputHeight: 1080,
			want:        []string{"1080p", "720p", "480p", "360p"},
		},
		{
			name:        "height cap excludes larger rungs",
			inputHeight: 720,
			want:        []string{"720p", "480p", "360p"},
		},
		{
			name:        "requested subset",
			inputHeight: 1080,
			requested:   []string{"720p", "360p"},
			want:        []string{"720p", "360p"},
		},
		{
			name:        "fallback when no requested quality fits",
			inputHeight: 360,
			requested:   []string{"1080p", "720p"},
			want:        []string{"360p"},
		},
		{
			name:        "unknown height keeps full ladder",
			inputHeight: 0,
			want:        []string{"1080p", "720p", "480p", "360p"},
		},
		{
			name:        "unknown requested name falls back",
			inputHeight: 1080,
			requested:   []string{"4k"},
			want:        []string{"360p"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ladder := SelectVideoLadder(tt.inputHeight, tt.requested)
			var names []string
			for _, p := range ladder {
				names = append(names, p.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestSelectVideoLadder_NeverExceedsInputHeight(t *testing.T) {
	for _, h := range []int{240, 360, 480, 719, 720, 1079, 1080, 2160} {
		for _, p := range SelectVideoLadder(h, nil) {
			if p.Name == "360p" {
				continue // fallback rung is allowed regardless of height
			}
			assert.LessOrEqual(t, p.Height, h, "height %d selected %s", h, p.Name)
		}
	}
}

func TestSelectAudioLadder(t *testing.T) {
	all := SelectAudioLadder(nil)
	assert.Len(t, all, 3)
	assert.Equal(t, "high", all[0].Name)

	subset := SelectAudioLadder([]string{"medium"})
	assert.Len(t, subset, 1)
	assert.Equal(t, 192, subset[0].Bitrate)

	fallback := SelectAudioLadder([]string{"ultra"})
	assert.Len(t, fallback, 1)
	assert.Equal(t, "low", fallback[0].Name)
}

func TestPresetByName(t *testing.T) {
	p, ok := PresetByName("720p")
	assert.True(t, ok)
	assert.Equal(t, 1280, p.Width)
	assert.Equal(t, 720, p.Height)

	_, ok = PresetByName("240p")
	assert.False(t, ok)
}
