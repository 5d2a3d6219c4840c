package resource

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tutu-network/sharer/internal/domain"
)

type memStore struct {
	rows map[string]OwnedResource
	fail error
}

func newMemStore() *memStore { return &memStore{rows: map[string]OwnedResource{}} }

func (s *memStore) UpsertResource(r OwnedResource) error {
	if s.fail != nil {
		return s.fail
	}
	s.rows[r.Name] = r
	return nil
}

func (s *memStore) DeleteResource(name string) error {
	if _, ok := s.rows[name]; !ok {
		return domain.ErrResourceNotFound
	}
	delete(s.rows, name)
	return nil
}

func (s *memStore) ListResources() ([]OwnedResource, error) {
	var out []OwnedResource
	for _, r := range s.rows {
		out = append(out, r)
	}
	return out, nil
}

func TestCatalog_AddRemove(t *testing.T) {
	store := newMemStore()
	c := NewCatalog(NewIndex(), store)

	if err := c.Add(OwnedResource{Name: "  Hulk ", Path: "/x/Hulk.mkv"}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if _, ok := store.rows["Hulk"]; !ok {
		t.Error("Add() did not persist the trimmed name")
	}
	if _, ok := c.Index().Get("Hulk"); !ok {
		t.Error("Add() did not index the resource")
	}

	if err := c.Remove("Hulk"); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if err := c.Remove("Hulk"); !errors.Is(err, domain.ErrResourceNotFound) {
		t.Errorf("second Remove() = %v, want ErrResourceNotFound", err)
	}
}

func TestCatalog_AddRejectsBlank(t *testing.T) {
	c := NewCatalog(NewIndex(), nil)
	if err := c.Add(OwnedResource{Name: " "}); !errors.Is(err, domain.ErrMissingField) {
		t.Errorf("Add(blank) = %v, want ErrMissingField", err)
	}
}

func TestCatalog_StoreFailureKeepsIndexClean(t *testing.T) {
	store := newMemStore()
	store.fail = errors.New("disk full")
	c := NewCatalog(NewIndex(), store)

	if err := c.Add(OwnedResource{Name: "Thor"}); err == nil {
		t.Fatal("Add() should fail when the store fails")
	}
	if c.Index().Len() != 0 {
		t.Error("failed Add() still indexed the resource")
	}
}

func TestCatalog_Load(t *testing.T) {
	store := newMemStore()
	store.rows["Thor"] = OwnedResource{Name: "Thor"}
	store.rows["Hulk"] = OwnedResource{Name: "Hulk"}

	c := NewCatalog(NewIndex(), store)
	if err := c.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	got := c.List()
	if len(got) != 2 || got[0].Name != "Hulk" || got[1].Name != "Thor" {
		t.Errorf("List() = %v, want [Hulk Thor]", got)
	}
}

func TestCatalog_IndexDir(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "sub"), 0o755)
	for _, f := range []string{"Iron Man.mp4", "sub/Hulk.mkv", ".hidden"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	c := NewCatalog(NewIndex(), nil)
	n, err := c.IndexDir(dir)
	if err != nil {
		t.Fatalf("IndexDir() error: %v", err)
	}
	if n != 2 {
		t.Errorf("indexed = %d, want 2", n)
	}
	r, ok := c.Index().Get("Iron Man")
	if !ok || r.Path != filepath.Join(dir, "Iron Man.mp4") {
		t.Errorf("Get(Iron Man) = %+v, %v", r, ok)
	}
}

func TestNameFromPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/a/Iron Man.mp4", "Iron Man"},
		{"Hulk", "Hulk"},
		{"x/The.Avengers.mkv", "The.Avengers"},
	}
	for _, tt := range tests {
		if got := NameFromPath(tt.in); got != tt.want {
			t.Errorf("NameFromPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
