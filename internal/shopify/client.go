package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// VariantCost is one entry of a bulk price mutation: the supplier cost
// for one variant. The sale price is derived from it with the margin.
type VariantCost struct {
	VariantID int64
	Cost      float64
}

// CatalogAPI is the capability interface the queue processor depends on.
type CatalogAPI interface {
	// BulkUpdatePrices applies cost*margin as the price of each variant
	// of one product in a single mutation. The result maps variant id to
	// whether the platform confirmed it.
	BulkUpdatePrices(ctx context.Context, productID int64, updates []VariantCost, margin float64) (map[int64]bool, error)

	// SetInventoryQuantity sets the available quantity of one inventory
	// item at one location.
	SetInventoryQuantity(ctx context.Context, inventoryItemID int64, locationID string, quantity int) error
}

// Client talks to the Shopify GraphQL Admin API. A rate limiter enforces
// the minimum inter-call interval; callers must not dispatch concurrently
// around it.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	limiter  *rate.Limiter
	logger   *log.Logger
}

func NewClient(shopURL, accessToken, apiVersion string, minInterval time.Duration, logger *log.Logger) *Client {
	if apiVersion == "" {
		apiVersion = "2024-10"
	}
	if minInterval <= 0 {
		minInterval = 500 * time.Millisecond
	}
	return &Client{
		endpoint: fmt.Sprintf("https://%s/admin/api/%s/graphql.json", strings.TrimSuffix(shopURL, "/"), apiVersion),
		token:    accessToken,
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(minInterval), 1),
		logger:   logger,
	}
}

// WithEndpoint overrides the computed endpoint; used by tests against a
// local server.
func (c *Client) WithEndpoint(endpoint string) *Client {
	c.endpoint = endpoint
	return c
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

func (c *Client) execute(ctx context.Context, query string, variables map[string]any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("shopify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("shopify request: unexpected status %s", resp.Status)
	}

	var gres graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gres); err != nil {
		return fmt.Errorf("shopify response: %w", err)
	}
	if len(gres.Errors) > 0 {
		return fmt.Errorf("shopify graphql: %s", gres.Errors[0].Message)
	}

	if out != nil {
		if err := json.Unmarshal(gres.Data, out); err != nil {
			return fmt.Errorf("shopify response: %w", err)
		}
	}
	return nil
}

func productGID(id int64) string       { return fmt.Sprintf("gid://shopify/Product/%d", id) }
func variantGID(id int64) string       { return fmt.Sprintf("gid://shopify/ProductVariant/%d", id) }
func inventoryItemGID(id int64) string { return fmt.Sprintf("gid://shopify/InventoryItem/%d", id) }
func locationGID(id string) string     { return fmt.Sprintf("gid://shopify/Location/%s", id) }

// gidTail returns the numeric tail of a gid://shopify/... identifier.
func gidTail(gid string) string {
	if i := strings.LastIndexByte(gid, '/'); i >= 0 {
		return gid[i+1:]
	}
	return gid
}
