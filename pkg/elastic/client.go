// Package elastic provides a document-level client for Elasticsearch built
// on go-elasticsearch/v8: get, put, and delete against a single document
// path, with absence modeled as an empty document rather than an error.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/atlas-stream/event-pipeline/pkg/config"
	"github.com/elastic/go-elasticsearch/v8"
)

// Document is the _source of an indexed document. A nil Document means the
// document does not exist.
type Document map[string]any

// Client wraps an Elasticsearch client with document operations.
type Client struct {
	es     *elasticsearch.Client
	logger *slog.Logger
}

// NewClient creates a Client for the configured Elasticsearch node.
func NewClient(cfg config.ElasticsearchConfig) (*Client, error) {
	return NewClientForURL(cfg.URL())
}

// NewClientForURL creates a Client for an explicit node URL. Tests point
// this at httptest servers.
func NewClientForURL(url string) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
	})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}
	return &Client{
		es:     es,
		logger: slog.Default().With("component", "elastic"),
	}, nil
}

// Ping checks whether the Elasticsearch node is reachable.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// Get fetches the document at <index>/_doc/<id>. A 404 yields a nil
// Document and no error; any other failure is returned as an error.
func (c *Client) Get(ctx context.Context, index, id string) (Document, error) {
	res, err := c.es.Get(index, id, c.es.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", index, id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("get %s/%s: unexpected status %s", index, id, res.Status())
	}

	var envelope struct {
		Found  bool     `json:"found"`
		Source Document `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("get %s/%s: decoding response: %w", index, id, err)
	}
	if !envelope.Found {
		return nil, nil
	}
	return envelope.Source, nil
}

// Put indexes doc at <index>/_doc/<id>, creating or replacing it.
func (c *Client) Put(ctx context.Context, index, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("put %s/%s: marshaling document: %w", index, id, err)
	}
	res, err := c.es.Index(
		index,
		bytes.NewReader(data),
		c.es.Index.WithDocumentID(id),
		c.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", index, id, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("put %s/%s: unexpected status %s: %s", index, id, res.Status(), readErrorBody(res.Body))
	}
	return nil
}

// Delete removes the document at <index>/_doc/<id>. Deleting a missing
// document is not an error.
func (c *Client) Delete(ctx context.Context, index, id string) error {
	res, err := c.es.Delete(index, id, c.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", index, id, err)
	}
	defer res.Body.Close()
	if res.StatusCode == 404 {
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("delete %s/%s: unexpected status %s", index, id, res.Status())
	}
	return nil
}

// readErrorBody extracts the reason from an Elasticsearch error response,
// falling back to the raw body.
func readErrorBody(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var envelope struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Type != "" {
		return fmt.Sprintf("%s: %s", envelope.Error.Type, envelope.Error.Reason)
	}
	return string(raw)
}
