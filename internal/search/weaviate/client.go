// Package weaviate implements search.Index on a Weaviate class.
package weaviate

import (
	"context"
	"fmt"
	"net/http"

	"github.com/syntrixbase/inkwell/internal/search/clientcache"
	"github.com/syntrixbase/inkwell/internal/search/config"
	"github.com/syntrixbase/inkwell/internal/secrets"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"github.com/weaviate/weaviate/entities/models"
)

// NewClientFactory returns the factory the client cache uses to connect.
// An API key is sent as a bearer token; otherwise username and password use
// the OIDC password flow. The class schema is created on first connect.
func NewClientFactory(cfg config.WeaviateConfig) clientcache.Factory[*weaviate.Client] {
	return func(ctx context.Context, creds secrets.Credentials) (*weaviate.Client, error) {
		wcfg := weaviate.Config{
			Host:             cfg.Host,
			Scheme:           cfg.Scheme,
			ConnectionClient: &http.Client{Timeout: cfg.Timeout},
		}
		switch {
		case creds.APIKey != "":
			wcfg.Headers = map[string]string{"Authorization": "Bearer " + creds.APIKey}
		case creds.Username != "":
			wcfg.AuthConfig = auth.ResourceOwnerPasswordFlow{Username: creds.Username, Password: creds.Password}
		}

		client, err := weaviate.NewClient(wcfg)
		if err != nil {
			return nil, fmt.Errorf("create weaviate client: %w", err)
		}
		if err := EnsureSchema(ctx, client, cfg.ClassName); err != nil {
			return nil, err
		}
		return client, nil
	}
}

// ClassSchema describes the artist class. Vectors are not used; ranking is
// BM25 over the text properties.
func ClassSchema(className string) *models.Class {
	filterable := true
	return &models.Class{
		Class:       className,
		Description: "Searchable projection of an artist record.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: propDocID, DataType: []string{"text"}, Tokenization: "field", IndexFilterable: &filterable},
			{Name: propName, DataType: []string{"text"}, Tokenization: "word"},
			{Name: propStyles, DataType: []string{"text[]"}, Tokenization: "lowercase", IndexFilterable: &filterable},
			{Name: propLocation, DataType: []string{"text"}, Tokenization: "word", IndexFilterable: &filterable},
		},
	}
}

// EnsureSchema creates the class when it does not exist yet.
func EnsureSchema(ctx context.Context, client *weaviate.Client, className string) error {
	exists, err := client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
	if err != nil {
		return fmt.Errorf("check weaviate class %s: %w", className, err)
	}
	if exists {
		return nil
	}
	if err := client.Schema().ClassCreator().WithClass(ClassSchema(className)).Do(ctx); err != nil {
		return fmt.Errorf("create weaviate class %s: %w", className, err)
	}
	return nil
}
