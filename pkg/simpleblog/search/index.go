// Package search maintains an optional full-text index over a content
// store. It sits beside the provider contract rather than inside it:
// consumers that want text queries feed the index from provider listings
// and keep it current on save/delete.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/tendant/simple-blog/pkg/simpleblog"
)

// Index wraps a Bleve full-text index over documents.
type Index struct {
	index bleve.Index
}

// indexedDocument is the shape stored in the index: header metadata plus
// body text, never attachment bytes.
type indexedDocument struct {
	ID          string
	Name        string
	Description string
	Author      string
	Content     string
	Tags        []string
	State       string
	PublishedAt time.Time
	UpdatedAt   time.Time
}

// Result is one full-text hit.
type Result struct {
	ID        string
	Name      string
	Author    string
	Score     float64
	Fragments map[string][]string
}

// Open opens or creates a Bleve index at path.
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return &Index{index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()

	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = "en"

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("ID", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("Name", nameFieldMapping)
	docMapping.AddFieldMappingsAt("Description", textFieldMapping)
	docMapping.AddFieldMappingsAt("Content", textFieldMapping)
	docMapping.AddFieldMappingsAt("Author", bleve.NewTextFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}

// Close closes the index.
func (i *Index) Close() error {
	return i.index.Close()
}

// IndexDocument adds or updates one document in the index.
func (i *Index) IndexDocument(doc *simpleblog.Document) error {
	return i.index.Index(doc.Header.ID, fromDocument(doc))
}

// Delete removes a document from the index.
func (i *Index) Delete(docID string) error {
	return i.index.Delete(docID)
}

// Count returns the number of indexed documents.
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

// Query runs a query-string search (quotes, boolean operators and fuzzy ~
// are supported) and returns up to limit hits with highlights.
func (i *Index) Query(queryStr string, limit int) ([]*Result, error) {
	query := bleve.NewQueryStringQuery(queryStr)
	request := bleve.NewSearchRequestOptions(query, limit, 0, false)
	request.Highlight = bleve.NewHighlightWithStyle("html")
	request.Fields = []string{"Name", "Author"}

	results, err := i.index.Search(request)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var hits []*Result
	for _, hit := range results.Hits {
		result := &Result{
			ID:        hit.ID,
			Score:     hit.Score,
			Fragments: hit.Fragments,
		}
		if name, ok := hit.Fields["Name"].(string); ok {
			result.Name = name
		}
		if author, ok := hit.Fields["Author"].(string); ok {
			result.Author = author
		}
		hits = append(hits, result)
	}
	return hits, nil
}

// Rebuild reindexes every document the provider lists, bodies included.
// Deleted documents are listed too; callers that want them excluded should
// delete them from the index explicitly.
func (i *Index) Rebuild(ctx context.Context, provider simpleblog.StorageProvider) error {
	headers, err := provider.GetListing(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	batch := i.index.NewBatch()
	for _, header := range headers {
		doc, err := provider.Load(ctx, header.ID)
		if err != nil {
			return fmt.Errorf("load %s: %w", header.ID, err)
		}
		if err := batch.Index(doc.Header.ID, fromDocument(doc)); err != nil {
			return fmt.Errorf("batch index %s: %w", doc.Header.ID, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func fromDocument(doc *simpleblog.Document) *indexedDocument {
	indexed := &indexedDocument{
		ID:          doc.Header.ID,
		Name:        doc.Header.Name,
		Description: doc.Header.Description,
		Author:      doc.Header.Author,
		Content:     doc.Content,
		Tags:        doc.Header.Tags,
		State:       string(doc.Header.State),
		UpdatedAt:   doc.Header.UpdatedDate,
	}
	if doc.Header.PublishedDate != nil {
		indexed.PublishedAt = *doc.Header.PublishedDate
	}
	return indexed
}
