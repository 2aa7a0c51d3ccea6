package airtable

import (
	"net/http"
	"time"

	"github.com/biolinkhq/vcmatch/internal/backoff"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	apiURL = "https://api.airtable.com/v0"
	// Max value for list page size.
	pageSize = "100"
	// Airtable allows at most 10 records per create call.
	MaxBatchSize = 10
	// Airtable enforces 5 requests per second per base.
	minCallSpacing = 200 * time.Millisecond
)

// Client talks to one Airtable base. All calls are serialized through a
// shared limiter so concurrent workers never exceed the base's rate limit.
type Client struct {
	apiKey  string
	baseID  string
	logger  *zap.Logger
	limiter *rate.Limiter
	retry   backoff.Policy

	HTTPClient *http.Client
	APIURL     string
}

func New(logger *zap.Logger, apiKey, baseID string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseID:  baseID,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(minCallSpacing), 1),
		retry:   backoff.Default(),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		APIURL: apiURL,
	}
}

// WithRetryPolicy overrides the default retry policy.
func (c *Client) WithRetryPolicy(p backoff.Policy) *Client {
	c.retry = p
	return c
}

// Table returns a handle for the named table in the client's base.
func (c *Client) Table(name string) *Table {
	return &Table{client: c, name: name}
}
