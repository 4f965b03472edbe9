package engine

// VideoPreset describes one rung of the encoding ladder.
type VideoPreset struct {
	Name    string
	Width   int
	Height  int
	Bitrate int // kbps
}

// AudioPreset describes one audio rendition target.
type AudioPreset struct {
	Name       string
	Bitrate    int // kbps
	SampleRate int // Hz
}

// videoPresets is the configured ladder, highest quality first.
var videoPresets = []VideoPreset{
	{Name: "1080p", Width: 1920, Height: 1080, Bitrate: 5000},
	{Name: "720p", Width: 1280, Height: 720, Bitrate: 3000},
	{Name: "480p", Width: 854, Height: 480, Bitrate: 1500},
	{Name: "360p", Width: 640, Height: 360, Bitrate: 800},
}

var audioPresets = []AudioPreset{
	{Name: "high", Bitrate: 320, SampleRate: 48000},
	{Name: "medium", Bitrate: 192, SampleRate: 44100},
	{Name: "low", Bitrate: 128, SampleRate: 44100},
}

// VideoPresets returns the full configured ladder, highest quality first.
func VideoPresets() []VideoPreset {
	out := make([]VideoPreset, len(videoPresets))
	copy(out, videoPresets)
	return out
}

// AudioPresets returns the configured audio renditions, highest bitrate first.
func AudioPresets() []AudioPreset {
	out := make([]AudioPreset, len(audioPresets))
	copy(out, audioPresets)
	return out
}

// SelectVideoLadder picks the presets to encode for an input of the given
// height. A preset qualifies when its target height does not exceed the
// input height and, if the caller requested specific qualities, its name is
// among them. When nothing qualifies the lowest rung is returned so every
// job produces at least one rendition.
func SelectVideoLadder(inputHeight int, requested []string) []VideoPreset {
	want := make(map[string]bool, len(requested))
	for _, q := range requested {
		want[q] = true
	}

	var ladder []VideoPreset
	for _, p := range videoPresets {
		if inputHeight > 0 && p.Height > inputHeight {
			continue
		}
		if len(want) > 0 && !want[p.Name] {
			continue
		}
		ladder = append(ladder, p)
	}

	if len(ladder) == 0 {
		ladder = append(ladder, videoPresets[len(videoPresets)-1])
	}
	return ladder
}

// SelectAudioLadder filters the audio presets by the caller's requested
// quality names, falling back to the lowest preset when nothing matches.
func SelectAudioLadder(requested []string) []AudioPreset {
	if len(requested) == 0 {
		return AudioPresets()
	}

	want := make(map[string]bool, len(requested))
	for _, q := range requested {
		want[q] = true
	}

	var ladder []AudioPreset
	for _, p := range audioPresets {
		if want[p.Name] {
			ladder = append(ladder, p)
		}
	}
	if len(ladder) == 0 {
		ladder = append(ladder, audioPresets[len(audioPresets)-1])
	}
	return ladder
}

// PresetByName looks up a video preset by its quality label.
func PresetByName(name string) (VideoPreset, bool) {
	for _, p := range videoPresets {
		if p.Name == name {
			return p, true
		}
	}
	return VideoPreset{}, false
}
