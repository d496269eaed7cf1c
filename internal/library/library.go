// Package library is the read side of a books directory: it lists published
// books, loads them through a bounded cache and resolves image files.
package library

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/yuanying/epubshelf/internal/book"
)

const defaultCacheSize = 10

var (
	// ErrNotFound reports an unknown book, chapter or image.
	ErrNotFound = errors.New("library: not found")
	// ErrInvalidPath reports an id or file name that would leave its directory.
	ErrInvalidPath = errors.New("library: invalid path component")
)

// Options configures a Library.
type Options struct {
	BooksDir  string
	CacheSize int // loaded books kept in memory; defaults to 10
	Logger    logrus.FieldLogger
}

// Summary is a listing row.
type Summary struct {
	ID       string
	Title    string
	Author   string // authors joined with ", "
	Chapters int
}

// Library serves books published under one directory.
type Library struct {
	store *book.Store
	cache *lru.Cache[string, *book.Book]
	log   logrus.FieldLogger
}

// New creates a library over opts.BooksDir.
func New(opts Options) (*Library, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, *book.Book](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create book cache: %w", err)
	}
	dir := opts.BooksDir
	if dir == "" {
		dir = "."
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Library{
		store: book.NewStore(dir),
		cache: cache,
		log:   log.WithField("books_dir", dir),
	}, nil
}

// List returns every "*_data" directory holding a loadable artifact, ordered
// by id. Directories whose artifact fails to load are logged and skipped.
func (l *Library) List() ([]Summary, error) {
	entries, err := os.ReadDir(l.store.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to read books directory: %w", err)
	}

	var out []Summary
	for _, e := range entries {
		if !e.IsDir() || !strings.HasSuffix(e.Name(), book.DirSuffix) {
			continue
		}
		b, err := l.Book(e.Name())
		if err != nil {
			l.log.WithField("book", e.Name()).WithError(err).Warn("skipping unreadable book")
			continue
		}
		out = append(out, Summary{
			ID:       e.Name(),
			Title:    b.Title(),
			Author:   strings.Join(b.Authors(), ", "),
			Chapters: b.ChapterCount(),
		})
	}
	return out, nil
}

// Book loads the book with the given id, serving repeated loads from the cache.
func (l *Library) Book(id string) (*book.Book, error) {
	if !safeComponent(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, id)
	}
	if b, ok := l.cache.Get(id); ok {
		return b, nil
	}
	b, err := book.Load(l.store.ArtifactPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: book %s", ErrNotFound, id)
		}
		return nil, err
	}
	l.cache.Add(id, b)
	return b, nil
}

// Chapter returns chapter i of book id. When anchor names an element of the
// chapter, only the section starting there is returned in Content.
func (l *Library) Chapter(id string, i int, anchor string) (book.SpineItem, error) {
	b, err := l.Book(id)
	if err != nil {
		return book.SpineItem{}, err
	}
	ch, err := b.Chapter(i)
	if err != nil {
		return book.SpineItem{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if section, ok := Subsection(ch.Content, anchor); ok {
		ch.Content = section
	}
	return ch, nil
}

// ImagePath returns the file path of image name of book id. Names that
// contain separators or dot segments are rejected.
func (l *Library) ImagePath(id, name string) (string, error) {
	if !safeComponent(id) || !safeComponent(name) {
		return "", fmt.Errorf("%w: %q/%q", ErrInvalidPath, id, name)
	}
	p := filepath.Join(l.store.Dir(id), book.ImagesDir, name)
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: image %s/%s", ErrNotFound, id, name)
	}
	return p, nil
}

// Neighbors returns the chapters before and after i, or -1 where there is none.
func Neighbors(b *book.Book, i int) (prev, next int, err error) {
	if _, err := b.Chapter(i); err != nil {
		return -1, -1, err
	}
	prev, next = i-1, i+1
	if next >= b.ChapterCount() {
		next = -1
	}
	return prev, next, nil
}

func safeComponent(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, "/\\\x00")
}
