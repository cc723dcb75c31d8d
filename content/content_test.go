package content

import (
	"errors"
	"testing"
)

func TestNewUpload(t *testing.T) {
	it, err := NewUpload(KindVideo, "clips/clip.mp4", 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if it.ID == "" {
		t.Fatal("expected generated id")
	}
	if it.OriginalName != "clip.mp4" {
		t.Fatalf("expected base name, got %q", it.OriginalName)
	}
	if it.Source != SourceUpload {
		t.Fatalf("expected upload source, got %q", it.Source)
	}

	other, err := NewUpload(KindVideo, "clip.mp4", 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other.ID == it.ID {
		t.Fatal("ids must be unique across items")
	}
}

func TestValidateUpload_Rejections(t *testing.T) {
	cases := []struct {
		name string
		kind Kind
		file string
		size int64
	}{
		{"missing name", KindVideo, "", 10},
		{"empty file", KindVideo, "clip.mp4", 0},
		{"oversize", KindVideo, "clip.mp4", MaxUploadBytes + 1},
		{"bad video ext", KindVideo, "clip.exe", 10},
		{"bad image ext", KindImage, "pic.tiff", 10},
		{"unknown kind", Kind("audio"), "a.mp3", 10},
	}
	for _, tc := range cases {
		err := ValidateUpload(tc.kind, tc.file, tc.size)
		if !errors.Is(err, ErrInvalidContent) {
			t.Fatalf("%s: expected ErrInvalidContent, got %v", tc.name, err)
		}
	}

	if err := ValidateUpload(KindVideo, "clip.MP4", 10); err != nil {
		t.Fatalf("extension match must be case-insensitive: %v", err)
	}
	if err := ValidateUpload(KindText, "query", 10); err != nil {
		t.Fatalf("text has no extension allow-list: %v", err)
	}
}

func TestNewRemote(t *testing.T) {
	it, err := NewRemote(KindVideo, "https://cdn.example.com/media/clip.mp4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if it.Source != SourceRemoteURL {
		t.Fatalf("expected remote source, got %q", it.Source)
	}
	if it.OriginalName != "clip.mp4" {
		t.Fatalf("expected name from url path, got %q", it.OriginalName)
	}

	for _, raw := range []string{"", "ftp://example.com/clip.mp4", "not a url", "/local/path.mp4"} {
		if _, err := NewRemote(KindVideo, raw); !errors.Is(err, ErrInvalidContent) {
			t.Fatalf("%q: expected ErrInvalidContent, got %v", raw, err)
		}
	}
}
