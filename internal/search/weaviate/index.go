package weaviate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/syntrixbase/inkwell/internal/search"
	"github.com/syntrixbase/inkwell/pkg/model"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	propDocID    = "docId"
	propName     = "name"
	propStyles   = "styles"
	propLocation = "location"
)

var tracer = otel.Tracer("github.com/syntrixbase/inkwell/internal/search/weaviate")

// ClientSource hands out the current client. clientcache.Cache satisfies it.
type ClientSource interface {
	Get(ctx context.Context) (*weaviate.Client, error)
	Reset()
}

// Index stores one object per search document. Object ids are derived from
// the document id so an upsert of the same document always hits the same object.
type Index struct {
	clients   ClientSource
	className string
	namespace uuid.UUID
	logger    *slog.Logger
}

var _ search.Index = (*Index)(nil)

func New(clients ClientSource, className string, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		clients:   clients,
		className: className,
		namespace: uuid.NewSHA1(uuid.NameSpaceURL, []byte("inkwell:search:"+className)),
		logger:    logger.With("component", "weaviate-index", "class", className),
	}
}

// ObjectID returns the Weaviate object id of a document.
func (idx *Index) ObjectID(docID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(idx.namespace, []byte(docID)).String())
}

func (idx *Index) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("weaviate.class", idx.className))
	return tracer.Start(ctx, "weaviate."+op, trace.WithAttributes(attrs...))
}

// fail records err on span and drops the cached client on auth failures so
// the next call fetches credentials again.
func (idx *Index) fail(span trace.Span, err error, msg string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	var werr *fault.WeaviateClientError
	if errors.As(err, &werr) && (werr.StatusCode == http.StatusUnauthorized || werr.StatusCode == http.StatusForbidden) {
		idx.logger.Warn("Search credentials rejected, dropping cached client", "status", werr.StatusCode)
		idx.clients.Reset()
	}
	return model.WrapError(model.ErrTransient, err, "%s", msg)
}

func (idx *Index) Upsert(ctx context.Context, doc model.SearchDocument) error {
	ctx, span := idx.start(ctx, "Upsert", attribute.String("doc.id", doc.ID))
	defer span.End()

	if doc.ID == "" {
		return model.Validationf("search document without id")
	}
	client, err := idx.clients.Get(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "client unavailable")
		return err
	}

	styles := doc.Styles
	if styles == nil {
		styles = []string{}
	}
	obj := &models.Object{
		Class: idx.className,
		ID:    idx.ObjectID(doc.ID),
		Properties: map[string]interface{}{
			propDocID:    doc.ID,
			propName:     doc.Name,
			propStyles:   styles,
			propLocation: doc.Location,
		},
	}

	// Batch import replaces an existing object with the same id, which gives
	// create-or-replace in one call.
	resp, err := client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
	if err != nil {
		return idx.fail(span, err, "upsert "+doc.ID)
	}
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return idx.fail(span, errors.New(r.Result.Errors.Error[0].Message), "upsert "+doc.ID)
		}
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (idx *Index) Delete(ctx context.Context, id string) error {
	ctx, span := idx.start(ctx, "Delete", attribute.String("doc.id", id))
	defer span.End()

	client, err := idx.clients.Get(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "client unavailable")
		return err
	}

	err = client.Data().Deleter().
		WithClassName(idx.className).
		WithID(string(idx.ObjectID(id))).
		Do(ctx)
	if err != nil {
		var werr *fault.WeaviateClientError
		if errors.As(err, &werr) && werr.StatusCode == http.StatusNotFound {
			span.SetAttributes(attribute.Bool("doc.missing", true))
			span.SetStatus(codes.Ok, "")
			return nil
		}
		return idx.fail(span, err, "delete "+id)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (idx *Index) Search(ctx context.Context, q search.Query) ([]model.SearchDocument, error) {
	q = q.Normalize()
	ctx, span := idx.start(ctx, "Search",
		attribute.Bool("query.has_text", q.Text != ""),
		attribute.Int("query.limit", q.Limit),
	)
	defer span.End()

	client, err := idx.clients.Get(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "client unavailable")
		return nil, err
	}

	get := client.GraphQL().Get().
		WithClassName(idx.className).
		WithFields(
			graphql.Field{Name: propDocID},
			graphql.Field{Name: propName},
			graphql.Field{Name: propStyles},
			graphql.Field{Name: propLocation},
		).
		WithLimit(q.Limit)
	if q.Text != "" {
		get = get.WithBM25(client.GraphQL().Bm25ArgBuilder().
			WithQuery(q.Text).
			WithProperties(propName+"^2", propStyles, propLocation))
	}
	if where := whereFilter(q); where != nil {
		get = get.WithWhere(where)
	}

	resp, err := get.Do(ctx)
	if err != nil {
		return nil, idx.fail(span, err, "search")
	}
	if len(resp.Errors) > 0 {
		return nil, idx.fail(span, errors.New(resp.Errors[0].Message), "search")
	}

	docs := parseResults(resp, idx.className)
	span.SetAttributes(attribute.Int("result.count", len(docs)))
	span.SetStatus(codes.Ok, "")
	return docs, nil
}

func (idx *Index) Ready(ctx context.Context) error {
	ctx, span := idx.start(ctx, "Ready")
	defer span.End()

	client, err := idx.clients.Get(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "client unavailable")
		return err
	}
	ready, err := client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return idx.fail(span, err, "ready check")
	}
	if !ready {
		span.SetStatus(codes.Error, "not ready")
		return fmt.Errorf("%w: weaviate not ready", model.ErrTransient)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func whereFilter(q search.Query) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder
	if q.Style != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{propStyles}).
			WithOperator(filters.Equal).
			WithValueText(q.Style))
	}
	if q.Location != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{propLocation}).
			WithOperator(filters.Like).
			WithValueText("*"+q.Location+"*"))
	}
	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().WithOperator(filters.And).WithOperands(operands)
	}
}

func parseResults(resp *models.GraphQLResponse, className string) []model.SearchDocument {
	data, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return []model.SearchDocument{}
	}
	objects, ok := data[className].([]interface{})
	if !ok {
		return []model.SearchDocument{}
	}

	docs := make([]model.SearchDocument, 0, len(objects))
	for _, raw := range objects {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		doc := model.SearchDocument{
			ID:       stringField(obj, propDocID),
			Name:     stringField(obj, propName),
			Location: stringField(obj, propLocation),
			Styles:   []string{},
		}
		if list, ok := obj[propStyles].([]interface{}); ok {
			for _, s := range list {
				if str, ok := s.(string); ok {
					doc.Styles = append(doc.Styles, str)
				}
			}
		}
		if doc.ID == "" {
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}

func stringField(obj map[string]interface{}, name string) string {
	s, _ := obj[name].(string)
	return s
}
