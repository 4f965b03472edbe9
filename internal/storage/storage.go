// Package storage provides the durable blob store abstraction the engine
// uploads renditions to. The returned URL is expected to be CDN-resolvable
// as soon as Put returns.
package storage

import (
	"context"
	"io"
)

// BlobStore is the narrow contract the rest of the system depends on
type BlobStore interface {
	// Put stores the content under key and returns its public URL
	Put(ctx context.Context, r io.Reader, key, contentType string) (string, error)

	// PutFile uploads a local file under key and returns its public URL
	PutFile(ctx context.Context, path, key, contentType string) (string, error)

	// Delete removes the object; missing objects are not an error
	Delete(ctx context.Context, key string) error
}

// ContentTypeForExt maps a file extension to a delivery content type
func ContentTypeForExt(ext string) string {
	switch ext {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".mpd":
		return "application/dash+xml"
	case ".mp3":
		return "audio/mpeg"
	case ".aac", ".m4a":
		return "audio/mp4"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
