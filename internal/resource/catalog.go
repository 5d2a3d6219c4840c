package resource

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"strings"

	"github.com/tutu-network/sharer/internal/domain"
	"github.com/tutu-network/sharer/internal/infra/metrics"
)

// Store persists the owned catalog.
type Store interface {
	UpsertResource(r OwnedResource) error
	DeleteResource(name string) error
	ListResources() ([]OwnedResource, error)
}

// Catalog keeps an Index and its Store in step. A nil store makes it
// memory-only.
type Catalog struct {
	index *Index
	store Store
}

// NewCatalog wraps idx and store.
func NewCatalog(idx *Index, store Store) *Catalog {
	return &Catalog{index: idx, store: store}
}

// Index returns the in-memory catalog the router answers from.
func (c *Catalog) Index() *Index { return c.index }

// Load fills the index from the store.
func (c *Catalog) Load() error {
	if c.store == nil {
		return nil
	}
	list, err := c.store.ListResources()
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	for _, r := range list {
		c.index.Add(r)
	}
	c.updateGauge()
	return nil
}

// Add validates, persists and indexes r.
func (c *Catalog) Add(r OwnedResource) error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return fmt.Errorf("resource name: %w", domain.ErrMissingField)
	}
	if c.store != nil {
		if err := c.store.UpsertResource(r); err != nil {
			return fmt.Errorf("store %q: %w", r.Name, err)
		}
	}
	c.index.Add(r)
	c.updateGauge()
	return nil
}

// Remove drops name from the store and the index.
func (c *Catalog) Remove(name string) error {
	inIndex := c.index.Remove(name)
	if c.store != nil {
		err := c.store.DeleteResource(name)
		if err != nil && !(inIndex && errors.Is(err, domain.ErrResourceNotFound)) {
			return err
		}
	} else if !inIndex {
		return domain.ErrResourceNotFound
	}
	c.updateGauge()
	return nil
}

// List returns the owned resources ordered by name.
func (c *Catalog) List() []OwnedResource {
	return c.index.All()
}

// IndexDir adds every regular file under dir, named by its base name
// without extension. It returns the number of files added.
func (c *Catalog) IndexDir(dir string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if err := c.Add(OwnedResource{Name: NameFromPath(path), Path: path}); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("index %s: %w", dir, err)
	}
	log.Printf("[catalog] indexed %d files from %s", n, dir)
	return n, nil
}

// NameFromPath derives a catalog name from a file path.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (c *Catalog) updateGauge() {
	metrics.OwnedResources.Set(float64(c.index.Len()))
}
