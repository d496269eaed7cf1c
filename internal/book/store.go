package book

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
)

const (
	// ArtifactName is the file name of the persisted Book inside a book directory.
	ArtifactName = "book.json"
	// ImagesDir is the subdirectory holding extracted images.
	ImagesDir = "images"
	// DirSuffix marks book directories under a store root.
	DirSuffix = "_data"
)

// ErrInvalidArtifact is matched by LoadErrors caused by structurally invalid data.
var ErrInvalidArtifact = errors.New("book: invalid artifact")

// LoadError reports a persisted Book that could not be read back.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("book: load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Store lays out book directories under Root:
//
//	<Root>/<id>/book.json
//	<Root>/<id>/images/<name>
type Store struct {
	Root string
}

// NewStore returns a Store rooted at root ("." when empty).
func NewStore(root string) *Store {
	if root == "" {
		root = "."
	}
	return &Store{Root: root}
}

// BookID derives the directory name for an archive from its file name.
func BookID(archivePath string) string {
	base := filepath.Base(archivePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return SafeName(base, "book") + DirSuffix
}

// SafeName reduces s to [A-Za-z0-9._-], replacing other runs with '_' and
// dropping leading dots. fallback is returned when nothing survives.
func SafeName(s, fallback string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(strings.TrimLeft(b.String(), "."), "_")
	if out == "" {
		return fallback
	}
	return out
}

// Dir returns the directory of the book with the given id.
func (s *Store) Dir(id string) string {
	return filepath.Join(s.Root, id)
}

// ArtifactPath returns the path of the persisted Book with the given id.
func (s *Store) ArtifactPath(id string) string {
	return filepath.Join(s.Dir(id), ArtifactName)
}

// Publish writes the images and then the Book artifact for id. Every file is
// written to a temporary name and renamed into place, so readers never see a
// truncated artifact. It returns the artifact path.
func (s *Store) Publish(id string, b *Book, images []ImageAsset) (string, error) {
	if b == nil {
		return "", errors.New("book: publish nil book")
	}
	dir := s.Dir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create book directory: %w", err)
	}

	if len(images) > 0 {
		if err := os.MkdirAll(filepath.Join(dir, ImagesDir), 0o755); err != nil {
			return "", fmt.Errorf("failed to create images directory: %w", err)
		}
	}
	for _, img := range images {
		rel, err := imageFile(img.Path)
		if err != nil {
			return "", err
		}
		if err := writeFileAtomic(filepath.Join(dir, rel), img.Data, 0o644); err != nil {
			return "", fmt.Errorf("failed to write image %s: %w", img.Path, err)
		}
	}

	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("failed to encode book: %w", err)
	}
	artifact := s.ArtifactPath(id)
	if err := writeFileAtomic(artifact, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return artifact, nil
}

// imageFile validates an "images/<name>" path and returns it in OS form.
func imageFile(p string) (string, error) {
	name, ok := strings.CutPrefix(p, ImagesDir+"/")
	if !ok || name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("book: refusing image path %q", p)
	}
	return filepath.Join(ImagesDir, name), nil
}

// Load reads a persisted Book. It is safe to call repeatedly and concurrently.
func Load(path string) (*Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	var b Book
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("%w: %v", ErrInvalidArtifact, err)}
	}
	if err := b.Validate(); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return &b, nil
}

// Validate checks the structural invariants: a non-empty spine with dense
// indices and TOC targets inside the spine.
func (b *Book) Validate() error {
	if len(b.Spine) == 0 {
		return fmt.Errorf("%w: empty spine", ErrInvalidArtifact)
	}
	for i, item := range b.Spine {
		if item.Index != i {
			return fmt.Errorf("%w: spine item %d has index %d", ErrInvalidArtifact, i, item.Index)
		}
	}
	var bad error
	b.Walk(func(n TocNode, _ int) {
		if bad == nil && (n.SpineIndex < 0 || n.SpineIndex >= len(b.Spine)) {
			bad = fmt.Errorf("%w: toc entry %q targets %d", ErrInvalidArtifact, n.Label, n.SpineIndex)
		}
	})
	return bad
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Chmod(perm); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
