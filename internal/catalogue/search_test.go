package catalogue

import (
	"path/filepath"
	"testing"
)

func newTestSearchIndex(t *testing.T) *SearchIndex {
	t.Helper()
	dir := t.TempDir()
	idx, err := OpenSearchIndex(filepath.Join(dir, "catalogue.bleve"))
	if err != nil {
		t.Fatalf("OpenSearchIndex() error = %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestSearchCatalogue_FindsIndexedEntry(t *testing.T) {
	idx := newTestSearchIndex(t)

	if err := idx.IndexEntry(1, "Super Game World", "Super Game World (USA)", "Nintendo - SNES", "Nintendo/SNES"); err != nil {
		t.Fatalf("IndexEntry() error = %v", err)
	}
	if err := idx.IndexEntry(2, "Other Title", "Other Title (Europe)", "Nintendo - SNES", "Nintendo/SNES"); err != nil {
		t.Fatalf("IndexEntry() error = %v", err)
	}

	hits, err := idx.SearchCatalogue("Super")
	if err != nil {
		t.Fatalf("SearchCatalogue() error = %v", err)
	}
	if len(hits) != 1 || hits[0].EntryID != 1 {
		t.Fatalf("SearchCatalogue() = %+v, want one hit for entry 1", hits)
	}
}

func TestSearchCatalogue_EmptyQueryMatchesAll(t *testing.T) {
	idx := newTestSearchIndex(t)
	idx.IndexEntry(1, "A", "SetA", "DatA", "CatA")
	idx.IndexEntry(2, "B", "SetB", "DatB", "CatB")

	hits, err := idx.SearchCatalogue("")
	if err != nil {
		t.Fatalf("SearchCatalogue() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
}
