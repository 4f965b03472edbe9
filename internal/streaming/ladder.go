package streaming

import (
	"fmt"
	"sort"

	"github.com/mediaforge/mediaforge/internal/media"
)

// qualityProfile maps a canonical quality name to its delivery bandwidth
// and codec string.
type qualityProfile struct {
	Bandwidth int
	Width     int
	Height    int
	Codecs    string
}

var qualityProfiles = map[string]qualityProfile{
	"1080p": {Bandwidth: 5_000_000, Width: 1920, Height: 1080, Codecs: `avc1.640028,mp4a.40.2`},
	"720p":  {Bandwidth: 3_000_000, Width: 1280, Height: 720, Codecs: `avc1.64001f,mp4a.40.2`},
	"480p":  {Bandwidth: 1_500_000, Width: 854, Height: 480, Codecs: `avc1.64001e,mp4a.40.2`},
	"360p":  {Bandwidth: 800_000, Width: 640, Height: 360, Codecs: `avc1.640015,mp4a.40.2`},
}

// auxiliary output qualities that never become ladder rungs
func isPlayableQuality(name string) bool {
	_, ok := qualityProfiles[name]
	return ok
}

// BuildLadder maps playable outputs onto the bandwidth table and sorts
// descending by bandwidth. Thumbnails, previews and waveforms are skipped.
// When multiple outputs share a quality (mp4 and hls renditions), the one
// matching preferFormat wins.
func BuildLadder(outputs []media.Output, preferFormat string) []QualityLevel {
	chosen := make(map[string]media.Output)
	for _, out := range outputs {
		if !isPlayableQuality(out.Quality) {
			continue
		}
		prev, exists := chosen[out.Quality]
		if !exists || (out.Format == preferFormat && prev.Format != preferFormat) {
			chosen[out.Quality] = out
		}
	}

	ladder := make([]QualityLevel, 0, len(chosen))
	for name, out := range chosen {
		profile := qualityProfiles[name]
		ladder = append(ladder, QualityLevel{
			Quality:    name,
			Bandwidth:  profile.Bandwidth,
			Resolution: fmt.Sprintf("%dx%d", profile.Width, profile.Height),
			URL:        out.URL,
			Codecs:     profile.Codecs,
		})
	}

	sort.Slice(ladder, func(i, j int) bool {
		return ladder[i].Bandwidth > ladder[j].Bandwidth
	})
	return ladder
}

// capLadder drops rungs above the named quality. An unknown cap name
// leaves the ladder untouched.
func capLadder(ladder []QualityLevel, maxQuality string) []QualityLevel {
	limit, ok := qualityProfiles[maxQuality]
	if !ok {
		return ladder
	}
	var capped []QualityLevel
	for _, q := range ladder {
		if q.Bandwidth <= limit.Bandwidth {
			capped = append(capped, q)
		}
	}
	if len(capped) == 0 {
		return ladder
	}
	return capped
}
