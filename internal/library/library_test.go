package library

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/yuanying/epubshelf/internal/book"
)

func publish(t *testing.T, root, id, title string, chapters int, images ...book.ImageAsset) {
	t.Helper()
	b := &book.Book{
		Metadata: book.Metadata{Title: title, Authors: []string{"A One", "B Two"}, Language: "en"},
		Source:   id + ".epub",
	}
	for i := 0; i < chapters; i++ {
		b.Spine = append(b.Spine, book.SpineItem{
			Index:   i,
			Content: `<h1 id="top">Top</h1><p>body</p><h2 id="s1">S1</h2><p>one</p>`,
		})
		b.TOC = append(b.TOC, book.TocNode{Label: "c", SpineIndex: i})
	}
	if _, err := book.NewStore(root).Publish(id, b, images); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
}

func newTestLibrary(t *testing.T, root string) *Library {
	t.Helper()
	logger, _ := test.NewNullLogger()
	l, err := New(Options{BooksDir: root, CacheSize: 2, Logger: logger})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l
}

func TestLibrary_List(t *testing.T) {
	root := t.TempDir()
	publish(t, root, "b_data", "Bravo", 2)
	publish(t, root, "a_data", "Alpha", 1)
	if err := os.MkdirAll(filepath.Join(root, "broken_data"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "broken_data", book.ArtifactName), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "other"), 0o755); err != nil {
		t.Fatal(err)
	}

	logger, hook := test.NewNullLogger()
	l, err := New(Options{BooksDir: root, Logger: logger})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	got, err := l.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []Summary{
		{ID: "a_data", Title: "Alpha", Author: "A One, B Two", Chapters: 1},
		{ID: "b_data", Title: "Bravo", Author: "A One, B Two", Chapters: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
	if e := hook.LastEntry(); e == nil || e.Data["book"] != "broken_data" {
		t.Errorf("expected a warning for broken_data, got %+v", e)
	}
}

func TestLibrary_BookCached(t *testing.T) {
	root := t.TempDir()
	publish(t, root, "a_data", "Alpha", 1)
	l := newTestLibrary(t, root)

	first, err := l.Book("a_data")
	if err != nil {
		t.Fatalf("Book() error = %v", err)
	}
	if err := os.Remove(filepath.Join(root, "a_data", book.ArtifactName)); err != nil {
		t.Fatal(err)
	}
	second, err := l.Book("a_data")
	if err != nil {
		t.Fatalf("cached Book() error = %v", err)
	}
	if first != second {
		t.Error("expected the cached *Book to be returned")
	}
}

func TestLibrary_BookErrors(t *testing.T) {
	l := newTestLibrary(t, t.TempDir())
	tests := []struct {
		id   string
		want error
	}{
		{"missing_data", ErrNotFound},
		{"../etc", ErrInvalidPath},
		{"", ErrInvalidPath},
		{"..", ErrInvalidPath},
	}
	for _, tt := range tests {
		if _, err := l.Book(tt.id); !errors.Is(err, tt.want) {
			t.Errorf("Book(%q) error = %v, want %v", tt.id, err, tt.want)
		}
	}
}

func TestLibrary_Chapter(t *testing.T) {
	root := t.TempDir()
	publish(t, root, "a_data", "Alpha", 2)
	l := newTestLibrary(t, root)

	ch, err := l.Chapter("a_data", 1, "s1")
	if err != nil {
		t.Fatalf("Chapter() error = %v", err)
	}
	if want := `<h2 id="s1">S1</h2><p>one</p>`; ch.Content != want {
		t.Errorf("Content = %q, want %q", ch.Content, want)
	}

	full, err := l.Chapter("a_data", 0, "")
	if err != nil {
		t.Fatalf("Chapter() error = %v", err)
	}
	if full.Content != `<h1 id="top">Top</h1><p>body</p><h2 id="s1">S1</h2><p>one</p>` {
		t.Errorf("Content without anchor = %q", full.Content)
	}

	if _, err := l.Chapter("a_data", 2, ""); !errors.Is(err, ErrNotFound) || !errors.Is(err, book.ErrIndexOutOfRange) {
		t.Errorf("Chapter(2) error = %v, want not found and out of range", err)
	}
}

func TestLibrary_ImagePath(t *testing.T) {
	root := t.TempDir()
	publish(t, root, "a_data", "Alpha", 1, book.ImageAsset{Path: "images/pic.png", Data: []byte("png")})
	l := newTestLibrary(t, root)

	got, err := l.ImagePath("a_data", "pic.png")
	if err != nil {
		t.Fatalf("ImagePath() error = %v", err)
	}
	if want := filepath.Join(root, "a_data", "images", "pic.png"); got != want {
		t.Errorf("ImagePath() = %q, want %q", got, want)
	}

	tests := []struct {
		id, name string
		want     error
	}{
		{"a_data", "missing.png", ErrNotFound},
		{"a_data", "../book.json", ErrInvalidPath},
		{"a_data", "..", ErrInvalidPath},
		{"../a_data", "pic.png", ErrInvalidPath},
		{"a_data", `..\book.json`, ErrInvalidPath},
	}
	for _, tt := range tests {
		if _, err := l.ImagePath(tt.id, tt.name); !errors.Is(err, tt.want) {
			t.Errorf("ImagePath(%q, %q) error = %v, want %v", tt.id, tt.name, err, tt.want)
		}
	}
}

func TestNeighbors(t *testing.T) {
	b := &book.Book{Spine: []book.SpineItem{{Index: 0}, {Index: 1}, {Index: 2}}}
	tests := []struct {
		i, prev, next int
	}{
		{0, -1, 1},
		{1, 0, 2},
		{2, 1, -1},
	}
	for _, tt := range tests {
		prev, next, err := Neighbors(b, tt.i)
		if err != nil {
			t.Fatalf("Neighbors(%d) error = %v", tt.i, err)
		}
		if prev != tt.prev || next != tt.next {
			t.Errorf("Neighbors(%d) = (%d, %d), want (%d, %d)", tt.i, prev, next, tt.prev, tt.next)
		}
	}
	if _, _, err := Neighbors(b, 3); !errors.Is(err, book.ErrIndexOutOfRange) {
		t.Errorf("Neighbors(3) error = %v, want ErrIndexOutOfRange", err)
	}

	single := &book.Book{Spine: []book.SpineItem{{Index: 0}}}
	if prev, next, _ := Neighbors(single, 0); prev != -1 || next != -1 {
		t.Errorf("Neighbors on single chapter = (%d, %d), want (-1, -1)", prev, next)
	}
}
