// Package library discovers shard files under the library root and keeps
// the registry in step with the directory.
package library

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/dreamware/bookshard/internal/shard"
)

// Scan lists the shard files directly under root, as sorted normalized
// names. Subdirectories and files with other extensions are ignored.
func Scan(root, ext string) ([]string, error) {
	if ext == "" {
		ext = shard.DefaultExtension
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan library %s: %w", root, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		name := shard.NormalizeName(e.Name(), ext)
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Catalog is the set of shard names currently present in the library.
// Searches use it as the available set.
type Catalog struct {
	root   string
	ext    string
	logger *zap.Logger

	mu    sync.RWMutex
	names []string
}

// NewCatalog creates an empty catalog for root. Call Refresh to fill it.
func NewCatalog(root, ext string, logger *zap.Logger) *Catalog {
	if ext == "" {
		ext = shard.DefaultExtension
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{root: root, ext: ext, logger: logger}
}

// Root returns the library directory.
func (c *Catalog) Root() string { return c.root }

// Extension returns the shard file extension.
func (c *Catalog) Extension() string { return c.ext }

// Refresh rescans the directory and replaces the catalog contents.
// On error the previous contents are kept.
func (c *Catalog) Refresh() ([]string, error) {
	names, err := Scan(c.root, c.ext)
	if err != nil {
		c.logger.Error("library scan failed", zap.String("root", c.root), zap.Error(err))
		return nil, err
	}

	c.mu.Lock()
	c.names = names
	c.mu.Unlock()

	c.logger.Debug("library scanned", zap.String("root", c.root), zap.Int("shards", len(names)))
	return slices.Clone(names), nil
}

// Available returns the known shard names, sorted.
func (c *Catalog) Available() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.names)
}

// Contains reports whether name is in the catalog.
func (c *Catalog) Contains(name string) bool {
	name = shard.NormalizeName(name, c.ext)
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, found := slices.BinarySearch(c.names, name)
	return found
}

// Add inserts name, keeping the catalog sorted. It reports whether the name
// was new.
func (c *Catalog) Add(name string) bool {
	name = shard.NormalizeName(name, c.ext)
	c.mu.Lock()
	defer c.mu.Unlock()
	i, found := slices.BinarySearch(c.names, name)
	if found {
		return false
	}
	c.names = slices.Insert(c.names, i, name)
	return true
}

// Remove deletes name. It reports whether the name was present.
func (c *Catalog) Remove(name string) bool {
	name = shard.NormalizeName(name, c.ext)
	c.mu.Lock()
	defer c.mu.Unlock()
	i, found := slices.BinarySearch(c.names, name)
	if !found {
		return false
	}
	c.names = slices.Delete(c.names, i, i+1)
	return true
}
