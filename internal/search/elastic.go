// Package search maintains an Elasticsearch index of products for natural-key
// lookups.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/JonMunkholm/partsync/internal/core"
	"github.com/JonMunkholm/partsync/internal/logging"
)

// DefaultIndex is the index name used when none is configured.
const DefaultIndex = "products"

// Both natural-key fields are keywords so term queries match exactly.
const indexMapping = `{
  "mappings": {
    "properties": {
      "id":          {"type": "long"},
      "part_number": {"type": "keyword"},
      "branch_id":   {"type": "keyword"},
      "part_price":  {"type": "double"},
      "short_desc":  {"type": "text"},
      "createdat":   {"type": "date"},
      "updatedat":   {"type": "date"}
    }
  }
}`

// Elastic implements core.ProductSearcher and core.ProductIndexer.
type Elastic struct {
	client *elasticsearch.Client
	index  string
}

// New creates a client for the given addresses.
func New(addresses []string, index string) (*Elastic, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("search index client: %w", err)
	}
	return NewWithClient(client, index), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *elasticsearch.Client, index string) *Elastic {
	if index == "" {
		index = DefaultIndex
	}
	return &Elastic{client: client, index: index}
}

// EnsureIndex creates the index with its mapping if it does not exist.
func (e *Elastic) EnsureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists([]string{e.index}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("search index exists check: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = e.client.Indices.Create(e.index,
		e.client.Indices.Create.WithContext(ctx),
		e.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("search index create: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && !strings.Contains(readBody(res), "resource_already_exists_exception") {
		return fmt.Errorf("search index create: %s", res.Status())
	}

	logging.FromContext(ctx).Info("search index created", "index", e.index)
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source core.Product `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// maxResultWindow is Elasticsearch's default index.max_result_window.
const maxResultWindow = 10000

// SearchByNaturalKey returns at most limit products matching both key parts.
func (e *Elastic) SearchByNaturalKey(ctx context.Context, key core.NaturalKey, limit int) ([]core.Product, error) {
	limit = min(limit, maxResultWindow)
	query := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{"term": map[string]any{"part_number": key.PartNumber}},
					map[string]any{"term": map[string]any{"branch_id": key.BranchID}},
				},
			},
		},
		"size": limit,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("search index query encode: %w", err)
	}

	logging.FromContext(ctx).Debug("search index query", "index", e.index, "key", key.String(), "size", limit)

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: search index: %v", core.ErrUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search index query failed: %s: %s", res.Status(), readBody(res))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("search index response decode: %w", err)
	}

	products := make([]core.Product, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		products = append(products, hit.Source)
	}
	return products, nil
}

// IndexProducts upserts the products in one bulk request keyed by product ID.
func (e *Elastic) IndexProducts(ctx context.Context, products []core.Product) error {
	if len(products) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range products {
		meta := map[string]any{"index": map[string]any{"_index": e.index, "_id": strconv.FormatInt(p.ID, 10)}}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("search index bulk encode: %w", err)
		}
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("search index bulk encode: %w", err)
		}
	}

	res, err := e.client.Bulk(&buf,
		e.client.Bulk.WithContext(ctx),
		e.client.Bulk.WithIndex(e.index),
	)
	if err != nil {
		return fmt.Errorf("%w: search index bulk: %v", core.ErrUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("search index bulk failed: %s", res.Status())
	}

	var parsed struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("search index bulk response decode: %w", err)
	}
	if parsed.Errors {
		return fmt.Errorf("search index bulk: some documents were rejected")
	}
	return nil
}

func readBody(res *esapi.Response) string {
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return string(b)
}
