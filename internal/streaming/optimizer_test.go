package streaming

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaforge/mediaforge/internal/config"
	"github.com/mediaforge/mediaforge/internal/media"
)

func testOutputs() []media.Output {
	return []media.Output{
		{Quality: "720p", Format: "mp4", URL: "http://store.local/jobs/j1/720p.mp4"},
		{Quality: "480p", Format: "mp4", URL: "http://store.local/jobs/j1/480p.mp4"},
		{Quality: "360p", Format: "mp4", URL: "http://store.local/jobs/j1/360p.mp4"},
		{Quality: "720p", Format: "hls", URL: "http://store.local/jobs/j1/hls/720p/playlist.m3u8"},
		{Quality: "thumbnail-1", Format: "jpg", URL: "http://store.local/jobs/j1/thumbnails/thumb_1.jpg"},
		{Quality: "preview", Format: "mp4", URL: "http://store.local/jobs/j1/preview.mp4"},
	}
}

func newTestOptimizer(cfg config.CDNConfig) *Optimizer {
	return NewOptimizer(cfg, hclog.NewNullLogger())
}

func TestBuildLadder_DescendingByBandwidth(t *testing.T) {
	ladder := BuildLadder(testOutputs(), "mp4")
	require.Len(t, ladder, 3)
	for i := 1; i < len(ladder); i++ {
		assert.Greater(t, ladder[i-1].Bandwidth, ladder[i].Bandwidth)
	}
	assert.Equal(t, "720p", ladder[0].Quality)
	assert.Equal(t, 3_000_000, ladder[0].Bandwidth)
	assert.Equal(t, "1280x720", ladder[0].Resolution)
}

func TestBuildLadder_SkipsAuxiliaryOutputs(t *testing.T) {
	ladder := BuildLadder(testOutputs(), "mp4")
	for _, q := range ladder {
		assert.NotContains(t, []string{"preview", "thumbnail-1", "waveform"}, q.Quality)
	}
}

func TestBuildLadder_PrefersRequestedFormat(t *testing.T) {
	ladder := BuildLadder(testOutputs(), "hls")
	for _, q := range ladder {
		if q.Quality == "720p" {
			assert.Contains(t, q.URL, "playlist.m3u8")
		}
	}
}

func TestBuildManifest_HLSPreferredWhenSupported(t *testing.T) {
	o := newTestOptimizer(config.CDNConfig{})
	m := o.BuildManifest(testOutputs(), ManifestMetadata{Duration: 60, ContentType: "video"}, DeliveryOptions{
		DeviceType:  "mobile",
		SupportsHLS: true,
	})

	assert.Equal(t, ManifestHLS, m.Type)
	assert.True(t, strings.HasPrefix(m.MasterPlaylist, "#EXTM3U\n#EXT-X-VERSION:3\n"))
	assert.Contains(t, m.MasterPlaylist, `#EXT-X-STREAM-INF:BANDWIDTH=3000000,RESOLUTION=1280x720,CODECS="avc1.64001f,mp4a.40.2"`)

	// Each STREAM-INF line is followed by the variant URL.
	lines := strings.Split(strings.TrimSpace(m.MasterPlaylist), "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "#EXT-X-STREAM-INF:") {
			require.Greater(t, len(lines), i+1)
			assert.False(t, strings.HasPrefix(lines[i+1], "#"))
		}
	}
}

func TestBuildManifest_DASHFallback(t *testing.T) {
	o := newTestOptimizer(config.CDNConfig{})
	m := o.BuildManifest(testOutputs(), ManifestMetadata{Duration: 60}, DeliveryOptions{
		SupportsDASH: true,
	})

	assert.Equal(t, ManifestDASH, m.Type)
	assert.Contains(t, m.MasterPlaylist, `<MPD xmlns="urn:mpeg:dash:schema:mpd:2011"`)
	assert.Contains(t, m.MasterPlaylist, `bandwidth="3000000"`)
}

func TestBuildManifest_ProgressiveFallback(t *testing.T) {
	o := newTestOptimizer(config.CDNConfig{})
	m := o.BuildManifest(testOutputs(), ManifestMetadata{Duration: 60}, DeliveryOptions{})

	assert.Equal(t, ManifestProgressive, m.Type)

	var body progressiveManifest
	require.NoError(t, json.Unmarshal([]byte(m.MasterPlaylist), &body))
	require.Len(t, body.Sources, 3)
	assert.Equal(t, "720p", body.Sources[0].Quality)
}

func TestBuildManifest_QualitiesAlwaysDescending(t *testing.T) {
	o := newTestOptimizer(config.CDNConfig{})
	for _, opts := range []DeliveryOptions{
		{SupportsHLS: true},
		{SupportsDASH: true},
		{},
		{MaxQuality: "480p"},
	} {
		m := o.BuildManifest(testOutputs(), ManifestMetadata{}, opts)
		for i := 1; i < len(m.Qualities); i++ {
			assert.Greater(t, m.Qualities[i-1].Bandwidth, m.Qualities[i].Bandwidth)
		}
	}
}

func TestBuildManifest_ScenarioOrdering(t *testing.T) {
	outputs := []media.Output{
		{Quality: "480p", Format: "mp4", URL: "http://store.local/480p.mp4"},
		{Quality: "720p", Format: "mp4", URL: "http://store.local/720p.mp4"},
	}
	o := newTestOptimizer(config.CDNConfig{})
	m := o.BuildManifest(outputs, ManifestMetadata{}, DeliveryOptions{})
	require.NotEmpty(t, m.Qualities)
	assert.Equal(t, "720p", m.Qualities[0].Quality)
}

func TestBuildManifest_CDNRewrite(t *testing.T) {
	o := newTestOptimizer(config.CDNConfig{
		PrimaryDomain: "cdn.mediaforge.io",
		RegionDomains: map[string]string{"eu": "eu.cdn.mediaforge.io"},
	})

	m := o.BuildManifest(testOutputs(), ManifestMetadata{}, DeliveryOptions{
		DeviceType: "mobile",
		Connection: "4g",
		Region:     "eu",
	})

	for _, q := range m.Qualities {
		assert.Contains(t, q.URL, "eu.cdn.mediaforge.io")
		assert.Contains(t, q.URL, "device=mobile")
		assert.Contains(t, q.URL, "conn=4g")
	}
	assert.Contains(t, m.ThumbnailTrack, "eu.cdn.mediaforge.io")
}

func TestBuildManifest_MaxQualityCap(t *testing.T) {
	o := newTestOptimizer(config.CDNConfig{})
	m := o.BuildManifest(testOutputs(), ManifestMetadata{}, DeliveryOptions{MaxQuality: "480p"})

	require.Len(t, m.Qualities, 2)
	assert.Equal(t, "480p", m.Qualities[0].Quality)
	assert.Equal(t, "360p", m.Qualities[1].Quality)
}

func TestRecommendQuality_MobileSlowConnectionPinned(t *testing.T) {
	o := newTestOptimizer(config.CDNConfig{})
	ladder := BuildLadder(testOutputs(), "mp4")

	// Downlink would afford 720p, but mobile on 2G stays on 360p.
	got := o.RecommendQuality(ladder, DeliveryOptions{
		DeviceType:  "mobile",
		Connection:  "2g",
		DownlinkBPS: 10_000_000,
	})
	assert.Equal(t, "360p", got.Quality)
}

func TestRecommendQuality_BandwidthThreshold(t *testing.T) {
	o := newTestOptimizer(config.CDNConfig{})
	ladder := BuildLadder(testOutputs(), "mp4")

	tests := []struct {
		downlink float64
		want     string
	}{
		{downlink: 10_000_000, want: "720p"},
		{downlink: 3_000_000, want: "480p"}, // 3M*0.8 < 3M requirement
		{downlink: 2_000_000, want: "480p"},
		{downlink: 1_200_000, want: "360p"},
		{downlink: 100_000, want: "360p"}, // floor
	}
	for _, tt := range tests {
		got := o.RecommendQuality(ladder, DeliveryOptions{DeviceType: "desktop", Connection: "wifi", DownlinkBPS: tt.downlink})
		assert.Equal(t, tt.want, got.Quality, "downlink %.0f", tt.downlink)
	}
}

func TestGeneratePreloadingStrategy(t *testing.T) {
	o := newTestOptimizer(config.CDNConfig{})
	m := o.BuildManifest(testOutputs(), ManifestMetadata{}, DeliveryOptions{})

	base := o.GeneratePreloadingStrategy(m, DeliveryOptions{DeviceType: "desktop", Connection: "4g"})
	assert.Equal(t, 2*1024*1024, base.PreloadBytes)
	assert.Equal(t, 3, base.MaxConcurrent)
	assert.Equal(t, []string{"audio", "360p", "thumbnails", "480p", "720p"}, base.PriorityOrder)

	slow := o.GeneratePreloadingStrategy(m, DeliveryOptions{DeviceType: "desktop", Connection: "2g"})
	assert.Equal(t, base.PreloadBytes/2, slow.PreloadBytes)
	assert.Equal(t, 1, slow.MaxConcurrent)

	fast := o.GeneratePreloadingStrategy(m, DeliveryOptions{DeviceType: "desktop", Connection: "wifi"})
	assert.Equal(t, base.PreloadBytes*2, fast.PreloadBytes)

	mobile := o.GeneratePreloadingStrategy(m, DeliveryOptions{DeviceType: "mobile", Connection: "4g"})
	assert.Equal(t, base.PreloadBytes*7/10, mobile.PreloadBytes)
}

func TestBandwidthTracking(t *testing.T) {
	o := newTestOptimizer(config.CDNConfig{})

	assert.Zero(t, o.PredictBandwidth("unknown"))

	o.TrackBandwidth("s1", BandwidthSample{BitsPerSecond: 1_000_000})
	assert.InDelta(t, 1_000_000, o.PredictBandwidth("s1"), 1)

	// Recent samples dominate the prediction.
	o.TrackBandwidth("s1", BandwidthSample{BitsPerSecond: 5_000_000})
	got := o.PredictBandwidth("s1")
	assert.Greater(t, got, 3_000_000.0)
	assert.Less(t, got, 5_000_000.0)

	// The window stays bounded at 10 samples.
	for i := 0; i < 30; i++ {
		o.TrackBandwidth("s1", BandwidthSample{BitsPerSecond: 2_000_000})
	}
	assert.InDelta(t, 2_000_000, o.PredictBandwidth("s1"), 1)
}

func TestGenerateCacheHeaders(t *testing.T) {
	o := newTestOptimizer(config.CDNConfig{})

	assert.Contains(t, o.GenerateCacheHeaders("segment")["Cache-Control"], "immutable")
	assert.Equal(t, "public, max-age=60", o.GenerateCacheHeaders("manifest")["Cache-Control"])
	assert.Equal(t, "public, max-age=86400", o.GenerateCacheHeaders("thumbnail")["Cache-Control"])
}

func TestOptimizeForRegion(t *testing.T) {
	o := newTestOptimizer(config.CDNConfig{
		PrimaryDomain: "cdn.mediaforge.io",
		RegionDomains: map[string]string{"ap": "ap.cdn.mediaforge.io"},
	})

	got := o.OptimizeForRegion("http://cdn.mediaforge.io/x.mp4", "ap")
	assert.Equal(t, "http://ap.cdn.mediaforge.io/x.mp4", got)

	// Unknown regions resolve to the primary domain (and are memoized).
	got = o.OptimizeForRegion("http://store.local/x.mp4", "mars")
	assert.Equal(t, "http://cdn.mediaforge.io/x.mp4", got)
	got = o.OptimizeForRegion("http://store.local/x.mp4", "mars")
	assert.Equal(t, "http://cdn.mediaforge.io/x.mp4", got)
}

func TestGenerateFallbackUrls(t *testing.T) {
	o := newTestOptimizer(config.CDNConfig{
		FallbackDomains: []string{"backup1.mediaforge.io", "backup2.mediaforge.io"},
	})

	urls := o.GenerateFallbackUrls("http://cdn.mediaforge.io/jobs/j1/720p.mp4")
	require.Len(t, urls, 2)
	assert.Equal(t, "http://backup1.mediaforge.io/jobs/j1/720p.mp4", urls[0])
	assert.Equal(t, "http://backup2.mediaforge.io/jobs/j1/720p.mp4", urls[1])
}
