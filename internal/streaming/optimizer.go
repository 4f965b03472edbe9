// Package streaming turns a completed job's renditions into playback
// manifests tuned to the requesting device, connection and region.
package streaming

import (
	"net/url"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/mediaforge/mediaforge/internal/config"
	"github.com/mediaforge/mediaforge/internal/media"
)

// switchThreshold is the safety margin applied when matching a rung's
// bandwidth against the measured downlink.
const switchThreshold = 0.8

const maxBandwidthSamples = 10

// Optimizer builds manifests and delivery hints. It is safe for
// concurrent use.
type Optimizer struct {
	cfg    config.CDNConfig
	logger hclog.Logger

	mu           sync.Mutex
	sessions     map[string][]float64 // rolling bandwidth samples per session
	regionDomain map[string]string    // memoized region domain lookups
}

func NewOptimizer(cfg config.CDNConfig, logger hclog.Logger) *Optimizer {
	return &Optimizer{
		cfg:          cfg,
		logger:       logger.Named("streaming-optimizer"),
		sessions:     make(map[string][]float64),
		regionDomain: make(map[string]string),
	}
}

// BuildManifest selects the delivery technology for the caller's device,
// builds the descending quality ladder and serializes the matching
// manifest body. Segmented HLS is preferred when a segmented rendition
// exists and the device supports it, then DASH, then a progressive
// source list as the universal fallback.
func (o *Optimizer) BuildManifest(outputs []media.Output, meta ManifestMetadata, opts DeliveryOptions) *Manifest {
	hasSegmented := false
	thumbnailTrack := ""
	for _, out := range outputs {
		if out.Format == "hls" {
			hasSegmented = true
		}
		if thumbnailTrack == "" && out.Quality == "thumbnail-1" {
			thumbnailTrack = out.URL
		}
	}

	manifestType := ManifestProgressive
	preferFormat := "mp4"
	switch {
	case opts.SupportsHLS && hasSegmented:
		manifestType = ManifestHLS
		preferFormat = "hls"
	case opts.SupportsDASH:
		manifestType = ManifestDASH
	}

	ladder := capLadder(BuildLadder(outputs, preferFormat), opts.MaxQuality)
	for i := range ladder {
		ladder[i].URL = o.rewriteURL(ladder[i].URL, opts)
	}
	if thumbnailTrack != "" {
		thumbnailTrack = o.rewriteURL(thumbnailTrack, opts)
	}

	var body string
	switch manifestType {
	case ManifestHLS:
		body = writeHLSMaster(ladder)
	case ManifestDASH:
		body = writeDASHManifest(ladder, meta.Duration)
	default:
		body = writeProgressiveManifest(ladder)
	}

	return &Manifest{
		Type:           manifestType,
		MasterPlaylist: body,
		Qualities:      ladder,
		ThumbnailTrack: thumbnailTrack,
		Metadata:       meta,
	}
}

// RecommendQuality picks the rung a client should start on. Mobile
// devices on a 2G-class connection are pinned to 360p as a data-saver
// override; otherwise the first rung affordable at 80% of the measured
// downlink wins, and the lowest rung is the floor.
func (o *Optimizer) RecommendQuality(ladder []QualityLevel, opts DeliveryOptions) QualityLevel {
	if len(ladder) == 0 {
		return QualityLevel{}
	}

	if isMobile(opts.DeviceType) && (isSlowConnection(opts.Connection) || opts.DataSaver) {
		for _, q := range ladder {
			if q.Quality == "360p" {
				return q
			}
		}
		return ladder[len(ladder)-1]
	}

	downlink := opts.DownlinkBPS
	for _, q := range ladder {
		if float64(q.Bandwidth) <= downlink*switchThreshold {
			return q
		}
	}
	return ladder[len(ladder)-1]
}

// GeneratePreloadingStrategy derives fetch-ahead budgets from the
// connection and device class. Slow links halve the base budget, fast
// links double it, and mobile devices shave ~30% off.
func (o *Optimizer) GeneratePreloadingStrategy(manifest *Manifest, opts DeliveryOptions) PreloadingStrategy {
	preloadBytes := 2 * 1024 * 1024
	chunkBytes := 256 * 1024
	concurrent := 3

	switch {
	case isSlowConnection(opts.Connection):
		preloadBytes /= 2
		chunkBytes /= 2
		concurrent = 1
	case isFastConnection(opts.Connection):
		preloadBytes *= 2
		chunkBytes *= 2
		concurrent = 6
	}

	if isMobile(opts.DeviceType) {
		preloadBytes = preloadBytes * 7 / 10
		chunkBytes = chunkBytes * 7 / 10
	}

	// Audio first, then the cheapest video rung, then thumbnails, then
	// the remaining rungs cheapest-first.
	order := []string{"audio"}
	ascending := make([]QualityLevel, len(manifest.Qualities))
	copy(ascending, manifest.Qualities)
	sort.Slice(ascending, func(i, j int) bool {
		return ascending[i].Bandwidth < ascending[j].Bandwidth
	})
	if len(ascending) > 0 {
		order = append(order, ascending[0].Quality)
	}
	order = append(order, "thumbnails")
	if len(ascending) > 1 {
		for _, q := range ascending[1:] {
			order = append(order, q.Quality)
		}
	}

	return PreloadingStrategy{
		PreloadBytes:    preloadBytes,
		ChunkBytes:      chunkBytes,
		MaxConcurrent:   concurrent,
		PriorityOrder:   order,
		PreloadSegments: 3,
	}
}

// TrackBandwidth records one throughput sample for a playback session,
// keeping a bounded rolling window.
func (o *Optimizer) TrackBandwidth(sessionID string, sample BandwidthSample) {
	o.mu.Lock()
	defer o.mu.Unlock()

	samples := append(o.sessions[sessionID], sample.BitsPerSecond)
	if len(samples) > maxBandwidthSamples {
		samples = samples[len(samples)-maxBandwidthSamples:]
	}
	o.sessions[sessionID] = samples
}

// PredictBandwidth estimates the session's near-future throughput as a
// recency-weighted average (geometric weight 1.2 per step). Returns 0
// for unknown sessions.
func (o *Optimizer) PredictBandwidth(sessionID string) float64 {
	o.mu.Lock()
	samples := o.sessions[sessionID]
	o.mu.Unlock()

	if len(samples) == 0 {
		return 0
	}

	var weighted, total float64
	weight := 1.0
	for _, s := range samples {
		weighted += s * weight
		total += weight
		weight *= 1.2
	}
	return weighted / total
}

// GenerateCacheHeaders returns cache-control metadata per asset kind.
// Media bodies are immutable once uploaded; manifests are rebuilt per
// request and must stay fresh.
func (o *Optimizer) GenerateCacheHeaders(assetKind string) map[string]string {
	switch assetKind {
	case "manifest":
		return map[string]string{
			"Cache-Control": "public, max-age=60",
		}
	case "thumbnail":
		return map[string]string{
			"Cache-Control": "public, max-age=86400",
		}
	default: // segments and full renditions
		return map[string]string{
			"Cache-Control": "public, max-age=31536000, immutable",
		}
	}
}

// OptimizeForRegion rewrites the URL onto the region's CDN domain. The
// domain resolution is memoized per region.
func (o *Optimizer) OptimizeForRegion(rawURL, region string) string {
	if region == "" {
		return rawURL
	}

	o.mu.Lock()
	domain, ok := o.regionDomain[region]
	if !ok {
		domain = o.cfg.RegionDomains[region]
		if domain == "" {
			domain = o.cfg.PrimaryDomain
		}
		o.regionDomain[region] = domain
	}
	o.mu.Unlock()

	if domain == "" {
		return rawURL
	}
	return replaceHost(rawURL, domain)
}

// GenerateFallbackUrls returns the same asset addressed through each
// configured fallback domain, in priority order.
func (o *Optimizer) GenerateFallbackUrls(rawURL string) []string {
	urls := make([]string, 0, len(o.cfg.FallbackDomains))
	for _, domain := range o.cfg.FallbackDomains {
		urls = append(urls, replaceHost(rawURL, domain))
	}
	return urls
}

// rewriteURL applies primary CDN substitution, region substitution, then
// delivery hint query parameters.
func (o *Optimizer) rewriteURL(rawURL string, opts DeliveryOptions) string {
	out := rawURL
	if o.cfg.PrimaryDomain != "" {
		out = replaceHost(out, o.cfg.PrimaryDomain)
	}
	if opts.Region != "" {
		out = o.OptimizeForRegion(out, opts.Region)
	}

	u, err := url.Parse(out)
	if err != nil {
		return out
	}
	q := u.Query()
	if opts.DeviceType != "" {
		q.Set("device", opts.DeviceType)
	}
	if opts.Connection != "" {
		q.Set("conn", opts.Connection)
	}
	if opts.DataSaver {
		q.Set("ds", "1")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func replaceHost(rawURL, domain string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	u.Host = domain
	return u.String()
}
