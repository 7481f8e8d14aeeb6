package catalogue

import (
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"romshelf/internal/romerrors"
)

// searchDoc is the denormalised document indexed per catalogue entry:
// enough of the surrounding DAT/set context to search and display a hit
// without a join back to SQLite.
type searchDoc struct {
	EntryID   int64  `json:"entry_id"`
	EntryName string `json:"entry_name"`
	SetName   string `json:"set_name"`
	DatName   string `json:"dat_name"`
	Category  string `json:"category"`
}

// SearchIndex is a full-text index over catalogue names (DAT, set, and
// entry), repurposing the teacher's music-search engine onto ROM
// metadata instead of song metadata.
type SearchIndex struct {
	index bleve.Index
}

// OpenSearchIndex opens the on-disk bleve index at path, creating it with
// a fresh mapping if it does not already exist.
func OpenSearchIndex(path string) (*SearchIndex, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		idx, err := bleve.New(path, bleve.NewIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("%w: creating search index: %v", romerrors.ErrStorage, err)
		}
		return &SearchIndex{index: idx}, nil
	}
	idx, err := bleve.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening search index: %v", romerrors.ErrStorage, err)
	}
	return &SearchIndex{index: idx}, nil
}

// Close releases the index's on-disk resources.
func (s *SearchIndex) Close() error {
	return s.index.Close()
}

// IndexEntry adds or replaces the searchable document for one catalogue
// entry, keyed by its database ID: indexing the same ID again replaces
// its document.
func (s *SearchIndex) IndexEntry(entryID int64, entryName, setName, datName, category string) error {
	doc := searchDoc{EntryID: entryID, EntryName: entryName, SetName: setName, DatName: datName, Category: category}
	if err := s.index.Index(fmt.Sprintf("%d", entryID), doc); err != nil {
		return fmt.Errorf("%w: indexing entry %d: %v", romerrors.ErrStorage, entryID, err)
	}
	return nil
}

// SearchHit is one match from SearchCatalogue.
type SearchHit struct {
	EntryID   int64
	EntryName string
	SetName   string
	DatName   string
	Category  string
	Score     float64
}

// SearchCatalogue runs a free-text query over entry/set/DAT names and
// category paths, returning hits ranked by relevance (spec §4.5's query
// surface, extended with full-text search).
func (s *SearchIndex) SearchCatalogue(query string) ([]SearchHit, error) {
	var q bleveQuery.Query = bleve.NewQueryStringQuery(query)
	if query == "" {
		q = bleve.NewMatchAllQuery()
	}

	req := bleve.NewSearchRequest(q)
	req.Size = 200
	req.Fields = []string{"entry_id", "entry_name", "set_name", "dat_name", "category"}

	res, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("%w: searching catalogue: %v", romerrors.ErrStorage, err)
	}

	hits := make([]SearchHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		getStr := func(f string) string {
			if v, ok := hit.Fields[f].(string); ok {
				return v
			}
			return ""
		}
		getID := func(f string) int64 {
			if v, ok := hit.Fields[f].(float64); ok {
				return int64(v)
			}
			return 0
		}
		hits = append(hits, SearchHit{
			EntryID:   getID("entry_id"),
			EntryName: getStr("entry_name"),
			SetName:   getStr("set_name"),
			DatName:   getStr("dat_name"),
			Category:  getStr("category"),
			Score:     hit.Score,
		})
	}
	return hits, nil
}
