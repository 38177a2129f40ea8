// Package memory is the in-process search index used in standalone mode and
// tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/syntrixbase/inkwell/internal/search"
	"github.com/syntrixbase/inkwell/pkg/model"
)

// Index keeps documents in a map and scores them by term overlap.
type Index struct {
	mu   sync.RWMutex
	docs map[string]model.SearchDocument
}

var _ search.Index = (*Index)(nil)

func New() *Index {
	return &Index{docs: make(map[string]model.SearchDocument)}
}

func (idx *Index) Upsert(ctx context.Context, doc model.SearchDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc.ID == "" {
		return model.Validationf("search document without id")
	}
	doc.Styles = append([]string(nil), doc.Styles...)

	idx.mu.Lock()
	idx.docs[doc.ID] = doc
	idx.mu.Unlock()
	return nil
}

func (idx *Index) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	idx.mu.Lock()
	delete(idx.docs, id)
	idx.mu.Unlock()
	return nil
}

// Get returns the document with id, if present.
func (idx *Index) Get(id string) (model.SearchDocument, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	doc, ok := idx.docs[id]
	return doc, ok
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

type hit struct {
	doc   model.SearchDocument
	score int
}

func (idx *Index) Search(ctx context.Context, q search.Query) ([]model.SearchDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q = q.Normalize()
	terms := strings.Fields(strings.ToLower(q.Text))

	idx.mu.RLock()
	hits := make([]hit, 0, len(idx.docs))
	for _, doc := range idx.docs {
		if q.Style != "" && !hasStyle(doc, q.Style) {
			continue
		}
		if q.Location != "" && !containsFold(doc.Location, q.Location) {
			continue
		}
		score := scoreOf(doc, terms)
		if len(terms) > 0 && score == 0 {
			continue
		}
		hits = append(hits, hit{doc: doc, score: score})
	}
	idx.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].doc.ID < hits[j].doc.ID
	})
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}

	out := make([]model.SearchDocument, len(hits))
	for i, h := range hits {
		out[i] = h.doc
		out[i].Styles = append([]string(nil), h.doc.Styles...)
	}
	return out, nil
}

func (idx *Index) Ready(ctx context.Context) error {
	return ctx.Err()
}

// scoreOf weights name matches above style and location matches.
func scoreOf(doc model.SearchDocument, terms []string) int {
	score := 0
	for _, t := range terms {
		if containsFold(doc.Name, t) {
			score += 2
		}
		for _, s := range doc.Styles {
			if containsFold(s, t) {
				score++
				break
			}
		}
		if containsFold(doc.Location, t) {
			score++
		}
	}
	return score
}

func hasStyle(doc model.SearchDocument, style string) bool {
	for _, s := range doc.Styles {
		if strings.EqualFold(s, style) {
			return true
		}
	}
	return false
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
