package media

import (
	"fmt"
	"os"

	"github.com/dhowden/tag"
)

// enrichTags reads container tags (ID3, MP4 atoms, Vorbis comments) from an
// audio file and fills the optional tag fields on the metadata.
func enrichTags(path string, meta *Metadata) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file for tag reading: %w", err)
	}
	defer f.Close()

	t, err := tag.ReadFrom(f)
	if err != nil {
		return fmt.Errorf("failed to read tags: %w", err)
	}

	meta.Title = t.Title()
	meta.Artist = t.Artist()
	meta.Album = t.Album()
	return nil
}
