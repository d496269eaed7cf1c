package book

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestBookID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/books/Moby Dick.epub", "Moby_Dick_data"},
		{"plain.epub", "plain_data"},
		{"../../..epub", "book_data"},
		{"漢字.epub", "book_data"},
		{"a.b.c.epub", "a.b.c_data"},
	}
	for _, tt := range tests {
		if got := BookID(tt.in); got != tt.want {
			t.Errorf("BookID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"photo.jpg", "photo.jpg"},
		{"my photo (1).jpg", "my_photo_1_.jpg"},
		{".hidden.png", "hidden.png"},
		{"..", "fallback"},
		{"", "fallback"},
	}
	for _, tt := range tests {
		if got := SafeName(tt.in, "fallback"); got != tt.want {
			t.Errorf("SafeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStore_PublishAndLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	b := sampleBook()
	images := []ImageAsset{{Source: "OEBPS/img/a.png", Path: "images/a.png", Data: []byte("PNGDATA")}}

	artifact, err := store.Publish("sample_data", b, images)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if artifact != store.ArtifactPath("sample_data") {
		t.Errorf("artifact path = %q, want %q", artifact, store.ArtifactPath("sample_data"))
	}

	data, err := os.ReadFile(filepath.Join(store.Dir("sample_data"), "images", "a.png"))
	if err != nil || string(data) != "PNGDATA" {
		t.Fatalf("image file = %q, %v", data, err)
	}

	loaded, err := Load(artifact)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(b, loaded, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(store.Dir("sample_data"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestStore_PublishReplacesArtifact(t *testing.T) {
	store := NewStore(t.TempDir())
	b := sampleBook()
	if _, err := store.Publish("x_data", b, nil); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	b2 := sampleBook()
	b2.Metadata.Title = "Second"
	if _, err := store.Publish("x_data", b2, nil); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	loaded, err := Load(store.ArtifactPath("x_data"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Title() != "Second" {
		t.Errorf("Title = %q, want Second", loaded.Title())
	}
}

func TestStore_PublishRejectsTraversal(t *testing.T) {
	store := NewStore(t.TempDir())
	for _, p := range []string{"images/../../evil", "../evil.png", "images/", "images/a/b.png", "a.png"} {
		_, err := store.Publish("x_data", sampleBook(), []ImageAsset{{Path: p, Data: []byte("x")}})
		if err == nil {
			t.Errorf("Publish() accepted image path %q", p)
		}
	}
	if _, err := os.Stat(store.ArtifactPath("x_data")); !os.IsNotExist(err) {
		t.Errorf("artifact should not exist after rejected publish, stat err = %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	var le *LoadError
	if !errors.As(err, &le) || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) error = %v", err)
	}

	garbage := filepath.Join(dir, "garbage.json")
	if err := os.WriteFile(garbage, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(garbage); !errors.Is(err, ErrInvalidArtifact) {
		t.Errorf("Load(garbage) error = %v, want ErrInvalidArtifact", err)
	}

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte(`{"metadata":{"title":"x"},"spine":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(empty); !errors.Is(err, ErrInvalidArtifact) {
		t.Errorf("Load(empty spine) error = %v, want ErrInvalidArtifact", err)
	}
}
