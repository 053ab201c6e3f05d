// Package cache stores query results as Parquet files named by the hash of the
// query that produced them.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/duckvd/duckvd/internal/query"
)

type Cache struct {
	dir string
}

type Entry struct {
	Key  string
	Path string
	Size int64
}

type ClearResult struct {
	Dir     string
	Existed bool
	Files   int
	Bytes   int64
}

func New(dir string) (*Cache, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("cache dir is required")
	}
	return &Cache{dir: filepath.Clean(dir)}, nil
}

func (c *Cache) Dir() string {
	return c.dir
}

func (c *Cache) Path(key string) string {
	return filepath.Join(c.dir, key+fileExtension)
}

// Exists is a plain stat; concurrent writers are not coordinated.
func (c *Cache) Exists(key string) bool {
	info, err := os.Stat(c.Path(key))
	return err == nil && info.Mode().IsRegular()
}

// Write encodes table into a temp file next to the entry and renames it into
// place, replacing any existing entry. Readers never observe a partial file.
func (c *Cache) Write(key string, table query.Table) (Entry, error) {
	if key == "" {
		return Entry{}, fmt.Errorf("cache key is required")
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, "."+key+".*.tmp")
	if err != nil {
		return Entry{}, fmt.Errorf("create temp cache file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := WriteParquet(tmp, table); err != nil {
		return Entry{}, err
	}
	if err := tmp.Sync(); err != nil {
		return Entry{}, fmt.Errorf("sync temp cache file: %w", err)
	}
	info, err := tmp.Stat()
	if err != nil {
		return Entry{}, fmt.Errorf("stat temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Entry{}, fmt.Errorf("close temp cache file: %w", err)
	}

	finalPath := c.Path(key)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return Entry{}, fmt.Errorf("commit cache file: %w", err)
	}
	committed = true
	return Entry{Key: key, Path: finalPath, Size: info.Size()}, nil
}

// Clear removes the whole cache directory. A missing directory is not an
// error.
func (c *Cache) Clear() (ClearResult, error) {
	result := ClearResult{Dir: c.dir}
	if _, err := os.Stat(c.dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return result, nil
		}
		return result, fmt.Errorf("stat cache dir: %w", err)
	}
	result.Existed = true

	err := filepath.WalkDir(c.dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			result.Files++
			result.Bytes += info.Size()
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("scan cache dir: %w", err)
	}
	if err := os.RemoveAll(c.dir); err != nil {
		return result, fmt.Errorf("remove cache dir: %w", err)
	}
	return result, nil
}
