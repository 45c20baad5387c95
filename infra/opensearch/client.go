package opensearch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mstgnz/dukapi/infra/config"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

const (
	SystemLogIndex    = "dukapi-system-logs"
	PaymentEventIndex = "dukapi-payment-events"
)

// Client wraps the OpenSearch client
type Client struct {
	client  *opensearch.Client
	enabled bool
}

// NewClient creates a new OpenSearch client and makes sure the indices exist
func NewClient(cfg config.OpenSearchConfig) (*Client, error) {
	opensearchConfig := opensearch.Config{
		Addresses: []string{cfg.URL},
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // self-signed dev clusters
			},
		},
		MaxRetries:    3,
		RetryOnStatus: []int{502, 503, 504, 429},
		RetryBackoff: func(i int) time.Duration {
			return time.Duration(i) * 100 * time.Millisecond
		},
	}

	if cfg.User != "" && cfg.Pass != "" {
		opensearchConfig.Username = cfg.User
		opensearchConfig.Password = cfg.Pass
	}

	client, err := opensearch.NewClient(opensearchConfig)
	if err != nil {
		return nil, err
	}

	osClient := &Client{
		client:  client,
		enabled: cfg.Enabled,
	}

	if osClient.enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := osClient.setupIndices(ctx); err != nil {
			return osClient, fmt.Errorf("setup indices: %w", err)
		}
	}

	return osClient, nil
}

// GetClient returns the underlying OpenSearch client
func (c *Client) GetClient() *opensearch.Client {
	return c.client
}

// IsEnabled returns whether shipping to OpenSearch is enabled
func (c *Client) IsEnabled() bool {
	return c != nil && c.enabled
}

func (c *Client) setupIndices(ctx context.Context) error {
	indices := map[string]string{
		SystemLogIndex:    systemLogMapping,
		PaymentEventIndex: paymentEventMapping,
	}

	for name, mapping := range indices {
		exists, err := c.indexExists(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := c.createIndex(ctx, name, mapping); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) indexExists(ctx context.Context, indexName string) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{
		Index: []string{indexName},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	return res.StatusCode == http.StatusOK, nil
}

func (c *Client) createIndex(ctx context.Context, indexName, mapping string) error {
	req := opensearchapi.IndicesCreateRequest{
		Index: indexName,
		Body:  strings.NewReader(mapping),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index creation error: %s", res.String())
	}
	return nil
}

const systemLogMapping = `{
	"mappings": {
		"properties": {
			"timestamp":   {"type": "date"},
			"level":       {"type": "keyword"},
			"message":     {"type": "text"},
			"component":   {"type": "keyword"},
			"function":    {"type": "keyword"},
			"user_id":     {"type": "keyword"},
			"provider":    {"type": "keyword"},
			"request_id":  {"type": "keyword"},
			"error":       {"type": "text"},
			"environment": {"type": "keyword"},
			"service":     {"type": "keyword"}
		}
	},
	"settings": {"number_of_shards": 1, "number_of_replicas": 0}
}`

const paymentEventMapping = `{
	"mappings": {
		"properties": {
			"timestamp":           {"type": "date"},
			"provider":            {"type": "keyword"},
			"event":               {"type": "keyword"},
			"checkout_request_id": {"type": "keyword"},
			"result_code":         {"type": "integer"},
			"outcome":             {"type": "keyword"},
			"amount":              {"type": "keyword"},
			"payload":             {"type": "text"}
		}
	},
	"settings": {"number_of_shards": 1, "number_of_replicas": 0}
}`
