package storage

import "fmt"

// LocationKind discriminates the storage variants. Adding a backend means
// adding a kind here and handling it everywhere the compiler flags the switch.
type LocationKind string

const (
	// LocationLocal means the bytes live in the managed upload directory.
	// They must stay on disk for the lifetime of any index entry
	// referencing them.
	LocationLocal LocationKind = "local"
	// LocationRemoteURL means the bytes live at an external URL not owned
	// by this system.
	LocationRemoteURL LocationKind = "remote_url"
	// LocationObjectStore means the bytes live in an S3-compatible bucket.
	LocationObjectStore LocationKind = "object_store"
)

// Location records where a content item's bytes live. Exactly one variant is
// set per item, discriminated by Kind.
type Location struct {
	Kind LocationKind `json:"kind"`

	// Local
	Path string `json:"path,omitempty"`

	// RemoteURL
	URL string `json:"url,omitempty"`

	// ObjectStore
	Bucket    string `json:"bucket,omitempty"`
	Key       string `json:"key,omitempty"`
	PublicURL string `json:"public_url,omitempty"`
}

// Local returns a managed-upload-directory location.
func Local(path string) Location {
	return Location{Kind: LocationLocal, Path: path}
}

// RemoteURL returns an external-URL location.
func RemoteURL(url string) Location {
	return Location{Kind: LocationRemoteURL, URL: url}
}

// ObjectStore returns an object-storage location.
func ObjectStore(bucket, key, publicURL string) Location {
	return Location{Kind: LocationObjectStore, Bucket: bucket, Key: key, PublicURL: publicURL}
}

// Validate checks that exactly the fields of the tagged variant are set.
func (l Location) Validate() error {
	switch l.Kind {
	case LocationLocal:
		if l.Path == "" {
			return fmt.Errorf("local location requires a path")
		}
	case LocationRemoteURL:
		if l.URL == "" {
			return fmt.Errorf("remote location requires a url")
		}
	case LocationObjectStore:
		if l.Bucket == "" || l.Key == "" {
			return fmt.Errorf("object store location requires bucket and key")
		}
	default:
		return fmt.Errorf("unknown location kind %q", l.Kind)
	}
	return nil
}

// PlaybackKind tells the host how to serve a playback reference.
type PlaybackKind string

const (
	// PlaybackRedirect means the host should redirect the client to URL.
	PlaybackRedirect PlaybackKind = "redirect"
	// PlaybackServeLocal means the host should stream the file at Path.
	// URL carries the internal handle (/video/{contentID}) the host's
	// router maps to that stream.
	PlaybackServeLocal PlaybackKind = "serve_local"
)

// PlaybackRef is a resolvable reference to the item's playable bytes.
type PlaybackRef struct {
	Kind PlaybackKind
	URL  string
	Path string
}

// ResolvePlayback turns a stored location into a playback reference.
// Remote and object-store locations play from their URL directly; local
// files are served through the host under an internal content handle.
func ResolvePlayback(loc Location, contentID string) (PlaybackRef, error) {
	if err := loc.Validate(); err != nil {
		return PlaybackRef{}, fmt.Errorf("resolve playback for %s: %w", contentID, err)
	}
	switch loc.Kind {
	case LocationRemoteURL:
		return PlaybackRef{Kind: PlaybackRedirect, URL: loc.URL}, nil
	case LocationObjectStore:
		return PlaybackRef{Kind: PlaybackRedirect, URL: loc.PublicURL}, nil
	default:
		return PlaybackRef{
			Kind: PlaybackServeLocal,
			URL:  "/video/" + contentID,
			Path: loc.Path,
		}, nil
	}
}
