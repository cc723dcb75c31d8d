package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/doujins-org/mediakit/content"
)

// ObjectStorage is the optional object-store backend. Implementations must
// treat Delete of a missing key as success.
type ObjectStorage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (publicURL string, err error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Resolver decides where a content item's bytes live and manages the
// managed upload directory for local fallback storage.
type Resolver struct {
	uploadDir string
	objects   ObjectStorage // nil means local fallback
}

type ResolverOptions struct {
	// UploadDir is the managed directory for local storage and for
	// request-scoped staging copies. Required.
	UploadDir string
	// Objects, when set, receives uploaded bytes instead of UploadDir.
	Objects ObjectStorage
}

func NewResolver(opts ResolverOptions) (*Resolver, error) {
	if opts.UploadDir == "" {
		return nil, fmt.Errorf("upload dir is required")
	}
	if err := os.MkdirAll(opts.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Resolver{uploadDir: opts.UploadDir, objects: opts.Objects}, nil
}

// Stage writes a request-scoped local copy of an upload, used solely for
// embedding submission. The path is unique per item so concurrent requests
// never share staging files. The returned cleanup removes the copy and must
// run on success and failure paths alike.
func (r *Resolver) Stage(item content.Item, src io.Reader) (path string, cleanup func(), err error) {
	path = filepath.Join(r.uploadDir, ".staging-"+item.ID+item.Ext())
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("stage %s: %w", item.ID, err)
	}
	_, err = io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", nil, fmt.Errorf("stage %s: %w", item.ID, err)
	}
	cleanup = func() { _ = os.Remove(path) }
	return path, cleanup, nil
}

// PersistFile records the durable location for staged upload bytes: the
// object store when configured, otherwise a copy in the upload directory.
func (r *Resolver) PersistFile(ctx context.Context, item content.Item, stagedPath string) (Location, error) {
	if r.objects != nil {
		f, err := os.Open(stagedPath)
		if err != nil {
			return Location{}, fmt.Errorf("persist %s: %w", item.ID, err)
		}
		defer f.Close()
		st, err := f.Stat()
		if err != nil {
			return Location{}, fmt.Errorf("persist %s: %w", item.ID, err)
		}
		key := item.ID + item.Ext()
		url, err := r.objects.Put(ctx, key, f, st.Size(), mime.TypeByExtension(item.Ext()))
		if err != nil {
			return Location{}, fmt.Errorf("persist %s to object store: %w", item.ID, err)
		}
		return ObjectStore(r.objects.Bucket(), key, url), nil
	}

	dst := filepath.Join(r.uploadDir, item.ID+item.Ext())
	if err := copyFile(stagedPath, dst); err != nil {
		return Location{}, fmt.Errorf("persist %s: %w", item.ID, err)
	}
	return Local(dst), nil
}

// PersistRemote records an external URL location. No bytes are copied.
func (r *Resolver) PersistRemote(rawURL string) Location {
	return RemoteURL(rawURL)
}

// Discard rolls back a persisted location after a downstream failure.
// Remote locations are not owned by this system and are left untouched.
func (r *Resolver) Discard(ctx context.Context, loc Location) error {
	switch loc.Kind {
	case LocationLocal:
		if err := os.Remove(loc.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("discard %s: %w", loc.Path, err)
		}
		return nil
	case LocationObjectStore:
		if r.objects == nil {
			return fmt.Errorf("discard %s/%s: object store not configured", loc.Bucket, loc.Key)
		}
		if err := r.objects.Delete(ctx, loc.Key); err != nil {
			return fmt.Errorf("discard %s/%s: %w", loc.Bucket, loc.Key, err)
		}
		return nil
	default:
		return nil
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
	}
	return err
}
