// Package search defines the derived full-text index the sync worker writes
// and the gateway reads.
package search

import (
	"context"
	"strings"

	"github.com/syntrixbase/inkwell/pkg/model"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Query is a discovery request. Text matches name, styles and location;
// Style and Location narrow the result set.
type Query struct {
	Text     string `schema:"q" json:"q,omitempty"`
	Style    string `schema:"style" json:"style,omitempty"`
	Location string `schema:"location" json:"location,omitempty"`
	Limit    int    `schema:"limit" json:"limit,omitempty"`
}

// Normalize trims the fields and clamps Limit into [1, MaxLimit].
func (q Query) Normalize() Query {
	q.Text = strings.TrimSpace(q.Text)
	q.Style = strings.TrimSpace(q.Style)
	q.Location = strings.TrimSpace(q.Location)
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultLimit
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}
	return q
}

// UnavailableMessage is returned to callers while search is degraded.
const UnavailableMessage = "Search service temporarily unavailable"

// Result is what a guarded search returns. When Unavailable is set Results
// is empty and Message explains the degradation.
type Result struct {
	Results     []model.SearchDocument `json:"results"`
	Unavailable bool                   `json:"-"`
	Message     string                 `json:"message,omitempty"`
}

// Index is the search-index collaborator.
type Index interface {
	// Upsert creates or fully replaces the document with doc.ID.
	Upsert(ctx context.Context, doc model.SearchDocument) error
	// Delete removes the document. A missing document is not an error.
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, q Query) ([]model.SearchDocument, error)
	// Ready returns nil when the index can serve requests.
	Ready(ctx context.Context) error
}
