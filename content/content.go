package content

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidContent marks user-input failures (bad filename, type, size,
// missing field). It is always returned before any external call is made.
var ErrInvalidContent = errors.New("invalid content")

// Kind is the media kind of an ingested item.
type Kind string

const (
	KindVideo Kind = "video"
	KindImage Kind = "image"
	KindText  Kind = "text"
)

// SourceKind records how the item's bytes entered the system.
type SourceKind string

const (
	SourceUpload    SourceKind = "upload"
	SourceRemoteURL SourceKind = "remote_url"
)

// MaxUploadBytes caps uploaded file size.
const MaxUploadBytes = 16 << 20 // 16 MiB

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// Item identifies one ingested asset. Immutable once indexed.
type Item struct {
	ID           string
	Kind         Kind
	Source       SourceKind
	OriginalName string
}

// NewID returns a fresh content identifier.
func NewID() string {
	return uuid.NewString()
}

// NewUpload validates an uploaded file and mints an Item for it.
func NewUpload(kind Kind, originalName string, size int64) (Item, error) {
	if err := ValidateUpload(kind, originalName, size); err != nil {
		return Item{}, err
	}
	return Item{
		ID:           NewID(),
		Kind:         kind,
		Source:       SourceUpload,
		OriginalName: filepath.Base(originalName),
	}, nil
}

// NewRemote validates a remote URL and mints an Item for it.
// No bytes are copied for remote items; the URL is embedded and played as-is.
func NewRemote(kind Kind, rawURL string) (Item, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Item{}, fmt.Errorf("remote url %q: %w", rawURL, ErrInvalidContent)
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		name = u.Host
	}
	return Item{
		ID:           NewID(),
		Kind:         kind,
		Source:       SourceRemoteURL,
		OriginalName: name,
	}, nil
}

// ValidateUpload checks filename, extension and size before any external call.
func ValidateUpload(kind Kind, originalName string, size int64) error {
	name := filepath.Base(strings.TrimSpace(originalName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return fmt.Errorf("missing filename: %w", ErrInvalidContent)
	}
	if size <= 0 {
		return fmt.Errorf("file %q is empty: %w", name, ErrInvalidContent)
	}
	if size > MaxUploadBytes {
		return fmt.Errorf("file %q exceeds %d bytes: %w", name, int64(MaxUploadBytes), ErrInvalidContent)
	}
	ext := strings.ToLower(filepath.Ext(name))
	switch kind {
	case KindVideo:
		if !videoExtensions[ext] {
			return fmt.Errorf("file %q: extension %q is not an allowed video container: %w", name, ext, ErrInvalidContent)
		}
	case KindImage:
		if !imageExtensions[ext] {
			return fmt.Errorf("file %q: extension %q is not an allowed image type: %w", name, ext, ErrInvalidContent)
		}
	case KindText:
		// Text has no container format to police.
	default:
		return fmt.Errorf("unknown content kind %q: %w", kind, ErrInvalidContent)
	}
	return nil
}

// Ext returns the lower-cased extension of the item's original name.
func (it Item) Ext() string {
	return strings.ToLower(filepath.Ext(it.OriginalName))
}
