package streaming

// ManifestType identifies the delivery technology of a manifest.
type ManifestType string

const (
	ManifestHLS         ManifestType = "hls"
	ManifestDASH        ManifestType = "dash"
	ManifestProgressive ManifestType = "progressive"
)

// QualityLevel is one rung of a playback ladder.
type QualityLevel struct {
	Quality    string  `json:"quality"`
	Bandwidth  int     `json:"bandwidth"` // bits/sec
	Resolution string  `json:"resolution"`
	URL        string  `json:"url"`
	Codecs     string  `json:"codecs"`
	FrameRate  float64 `json:"frame_rate,omitempty"`
}

// ManifestMetadata carries playback context alongside the ladder.
type ManifestMetadata struct {
	Duration     float64 `json:"duration"`
	ContentType  string  `json:"content_type"`
	ArtistID     string  `json:"artist_id,omitempty"`
	ContentID    string  `json:"content_id,omitempty"`
	IsLive       bool    `json:"is_live"`
	DRMProtected bool    `json:"drm_protected"`
}

// Manifest is a playback description built per request from a completed
// job's outputs. Qualities are always sorted descending by bandwidth.
type Manifest struct {
	Type           ManifestType     `json:"type"`
	MasterPlaylist string           `json:"master_playlist"`
	Qualities      []QualityLevel   `json:"qualities"`
	ThumbnailTrack string           `json:"thumbnail_track,omitempty"`
	Metadata       ManifestMetadata `json:"metadata"`
}

// DeliveryOptions is the caller-supplied playback context. Pure input,
// never mutated.
type DeliveryOptions struct {
	// DeviceType is "mobile", "tablet", "desktop" or "tv"
	DeviceType string `json:"device_type"`

	SupportsHLS  bool `json:"supports_hls"`
	SupportsDASH bool `json:"supports_dash"`

	// Connection is the network class: "2g", "3g", "4g", "5g" or "wifi"
	Connection string `json:"connection"`

	// DownlinkBPS is the measured downstream bandwidth in bits/sec
	DownlinkBPS float64 `json:"downlink_bps"`

	RTTMillis int    `json:"rtt_ms"`
	Region    string `json:"region"`
	DataSaver bool   `json:"data_saver"`

	// MaxQuality caps the ladder ("720p" limits delivery to 720p and below)
	MaxQuality string `json:"max_quality"`
}

// BandwidthSample is one measured throughput observation for a session.
type BandwidthSample struct {
	BitsPerSecond float64 `json:"bits_per_second"`
}

// PreloadingStrategy tells a client how to fetch ahead.
type PreloadingStrategy struct {
	PreloadBytes    int      `json:"preload_bytes"`
	ChunkBytes      int      `json:"chunk_bytes"`
	MaxConcurrent   int      `json:"max_concurrent"`
	PriorityOrder   []string `json:"priority_order"`
	PreloadSegments int      `json:"preload_segments"`
}

func isMobile(device string) bool {
	return device == "mobile"
}

func isSlowConnection(conn string) bool {
	return conn == "2g" || conn == "slow-2g"
}

func isFastConnection(conn string) bool {
	return conn == "5g" || conn == "wifi"
}
