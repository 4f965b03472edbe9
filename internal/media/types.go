// Package media defines the shared media domain types: probed metadata,
// rendition outputs, and per-job processing options. It also owns the
// ffprobe wrapper used by every other component.
package media

// Metadata describes the container and streams of a media file.
// It is extracted once per input and never mutated afterwards.
type Metadata struct {
	Duration  float64 `json:"duration"` // seconds
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	FileSize  int64   `json:"file_size"`
	Bitrate   int     `json:"bitrate"` // bits/sec
	FrameRate float64 `json:"frame_rate,omitempty"`

	HasAudio bool `json:"has_audio"`
	HasVideo bool `json:"has_video"`

	AudioCodec string `json:"audio_codec,omitempty"`
	VideoCodec string `json:"video_codec,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`

	// Container tags, filled for audio inputs when readable
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
}

// Output is a single rendition produced by the transcoding engine.
// Created once, immutable, appended to the owning job's output list.
type Output struct {
	Quality  string  `json:"quality"` // e.g. "720p", "preview", "thumbnail-3"
	Format   string  `json:"format"`
	URL      string  `json:"url"`
	Key      string  `json:"key"`
	FileSize int64   `json:"file_size"`
	Duration float64 `json:"duration,omitempty"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Bitrate  int     `json:"bitrate,omitempty"` // bits/sec
}

// Options is the validated per-job processing configuration.
// All fields are optional; the zero value requests a default transcode.
type Options struct {
	// Qualities restricts the video ladder to the named presets ("720p"...).
	// Empty means every preset the source resolution supports.
	Qualities []string `json:"qualities,omitempty"`

	// EnableHLS additionally produces a segmented HLS rendition
	EnableHLS bool `json:"enable_hls,omitempty"`

	// Thumbnails is the number of thumbnails to extract for video jobs.
	// Zero means the engine default; a negative count disables them.
	Thumbnails int `json:"thumbnails,omitempty"`

	// SkipPreview suppresses the preview clip video jobs produce by default
	SkipPreview bool `json:"skip_preview,omitempty"`

	// WatermarkText, when set, is drawn onto every video rendition
	WatermarkText string `json:"watermark_text,omitempty"`

	// NormalizeAudio applies loudness normalization
	NormalizeAudio bool `json:"normalize_audio,omitempty"`

	// GenerateWaveform renders a waveform image for audio jobs
	GenerateWaveform bool `json:"generate_waveform,omitempty"`
}
