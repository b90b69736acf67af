// Package refdata serves the reference lists offered as suggestions in the
// survey form: DSWD positions and training courses.
//
// Lists are read from positions.csv and courses.csv in one directory the
// first time they are needed and kept in memory until Reset. Each file has
// a header row; the first column of every following row is one entry.
package refdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/JonMunkholm/eteeap-survey/internal/core"
	"github.com/JonMunkholm/eteeap-survey/internal/survey"
)

// Kind names a reference list.
type Kind string

const (
	KindPositions Kind = "positions"
	KindCourses   Kind = "courses"
)

// ErrUnknownKind is returned by List for an unrecognized kind.
var ErrUnknownKind = errors.New("unknown reference list")

var files = map[Kind]string{
	KindPositions: "positions.csv",
	KindCourses:   "courses.csv",
}

// Cache memoizes the reference lists of one directory.
type Cache struct {
	dir string

	mu     sync.Mutex
	loaded bool
	lists  map[Kind][]string
}

// NewCache creates a Cache reading from dir. Nothing is read until first use.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Load reads every list. It is a no-op once loaded. A missing file yields
// an empty list; a malformed one is an error and leaves the cache unloaded.
func (c *Cache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked()
}

func (c *Cache) loadLocked() error {
	if c.loaded {
		return nil
	}
	lists := make(map[Kind][]string, len(files))
	for kind, name := range files {
		entries, err := readList(filepath.Join(c.dir, name))
		if err != nil {
			return fmt.Errorf("load %s: %w", kind, err)
		}
		lists[kind] = entries
	}
	c.lists = lists
	c.loaded = true
	slog.Info("reference data loaded",
		"dir", c.dir,
		"positions", len(lists[KindPositions]),
		"courses", len(lists[KindCourses]),
	)
	return nil
}

// Reset drops the cached lists; the next access reloads them.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.lists = nil
}

// List returns a copy of the named list.
func (c *Cache) List(kind Kind) ([]string, error) {
	if _, ok := files[kind]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(); err != nil {
		return nil, err
	}
	return append([]string{}, c.lists[kind]...), nil
}

// Positions returns the position titles.
func (c *Cache) Positions() ([]string, error) {
	return c.List(KindPositions)
}

// Courses returns the training course names.
func (c *Cache) Courses() ([]string, error) {
	return c.List(KindCourses)
}

func readList(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(core.NewBOMSkippingReader(f))
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	var raw []string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) > 0 {
			raw = append(raw, core.CleanCell(rec[0]))
		}
	}
	return survey.Dedupe(raw), nil
}
