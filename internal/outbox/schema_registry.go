package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SchemaRegistryClient talks to Confluent Schema Registry. The dispatcher
// only needs two operations: resolve the latest schema id for a subject, and
// register the subject when it does not exist yet.
type SchemaRegistryClient struct {
	baseURL string
	client  *http.Client
}

// NewSchemaRegistryClient constructs a client with a bounded request timeout.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// EnsureSchema returns the schema id for the subject, registering the schema
// on first use.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	id, err := c.latestID(ctx, subject)
	if err == nil {
		return id, nil
	}
	return c.registerSchema(ctx, subject, schema)
}

func (c *SchemaRegistryClient) latestID(ctx context.Context, subject string) (int, error) {
	url := fmt.Sprintf("%s/subjects/%s/versions/latest", c.baseURL, subject)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	return c.schemaID(req)
}

func (c *SchemaRegistryClient) registerSchema(ctx context.Context, subject string, schema string) (int, error) {
	body, err := json.Marshal(map[string]any{
		"schemaType": "JSON",
		"schema":     schema,
	})
	if err != nil {
		return 0, err
	}

	url := fmt.Sprintf("%s/subjects/%s/versions", c.baseURL, subject)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/vnd.schemaregistry.v1+json")
	return c.schemaID(req)
}

// schemaID executes the request and extracts the id field every registry
// response carries.
func (c *SchemaRegistryClient) schemaID(req *http.Request) (int, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("subject not registered: %s", req.URL.Path)
	}
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("schema registry returned %d: %s", resp.StatusCode, detail)
	}

	var out struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.ID, nil
}
