package shopify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/josepita/shopify-sync/internal/logging"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("example.myshopify.com", "test-token", "2024-10", 1, logging.NewNopLogger()).
		WithEndpoint(srv.URL)
	return c, srv
}

func decodeRequest(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	return req
}

func TestBulkUpdatePrices_AppliesMarginAndConfirms(t *testing.T) {
	var captured map[string]any
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Shopify-Access-Token"); got != "test-token" {
			t.Errorf("token header: got %q", got)
		}
		captured = decodeRequest(t, r)
		w.Write([]byte(`{"data":{"productVariantsBulkUpdate":{
			"productVariants":[{"id":"gid://shopify/ProductVariant/11"},{"id":"gid://shopify/ProductVariant/12"}],
			"userErrors":[]}}}`))
	})

	results, err := c.BulkUpdatePrices(context.Background(), 100, []VariantCost{
		{VariantID: 11, Cost: 10.00},
		{VariantID: 12, Cost: 7.33},
	}, 2.5)
	if err != nil {
		t.Fatalf("BulkUpdatePrices: %v", err)
	}
	if !results[11] || !results[12] {
		t.Fatalf("results: got %v", results)
	}

	vars := captured["variables"].(map[string]any)
	if got := vars["productId"].(string); got != "gid://shopify/Product/100" {
		t.Fatalf("productId: got %q", got)
	}
	variants := vars["variants"].([]any)
	if len(variants) != 2 {
		t.Fatalf("variants: got %d", len(variants))
	}
	first := variants[0].(map[string]any)
	if got := first["price"].(string); got != "25.00" {
		t.Fatalf("price with margin 2.5: got %q", got)
	}
	second := variants[1].(map[string]any)
	if got := second["price"].(string); got != "18.33" { // 7.33*2.5 = 18.325 rounds to cents
		t.Fatalf("rounded price: got %q", got)
	}
	if got := first["inventoryItem"].(map[string]any)["cost"].(float64); got != 10.00 {
		t.Fatalf("raw cost on inventory item: got %v", got)
	}
}

func TestBulkUpdatePrices_UserErrorsFailGroupWithoutError(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"productVariantsBulkUpdate":{
			"productVariants":[],
			"userErrors":[{"field":["variants"],"message":"variant does not exist"}]}}}`))
	})

	results, err := c.BulkUpdatePrices(context.Background(), 100, []VariantCost{
		{VariantID: 11, Cost: 10},
		{VariantID: 12, Cost: 20},
	}, 2.5)
	if err != nil {
		t.Fatalf("user errors must not raise: %v", err)
	}
	if results[11] || results[12] {
		t.Fatalf("every variant must be unconfirmed, got %v", results)
	}
}

func TestBulkUpdatePrices_UnconfirmedVariantReportsFalse(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"productVariantsBulkUpdate":{
			"productVariants":[{"id":"gid://shopify/ProductVariant/11"}],
			"userErrors":[]}}}`))
	})

	results, err := c.BulkUpdatePrices(context.Background(), 100, []VariantCost{
		{VariantID: 11, Cost: 10},
		{VariantID: 12, Cost: 20},
	}, 2.5)
	if err != nil {
		t.Fatalf("BulkUpdatePrices: %v", err)
	}
	if !results[11] || results[12] {
		t.Fatalf("only 11 confirmed: got %v", results)
	}
}

func TestSetInventoryQuantity(t *testing.T) {
	var captured map[string]any
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = decodeRequest(t, r)
		w.Write([]byte(`{"data":{"inventorySetQuantities":{"userErrors":[]}}}`))
	})

	if err := c.SetInventoryQuantity(context.Background(), 555, "777", 9); err != nil {
		t.Fatalf("SetInventoryQuantity: %v", err)
	}

	input := captured["variables"].(map[string]any)["input"].(map[string]any)
	if got := input["name"].(string); got != "available" {
		t.Fatalf("quantity name: got %q", got)
	}
	if got := input["ignoreCompareQuantity"].(bool); !got {
		t.Fatalf("ignoreCompareQuantity must be set")
	}
	q := input["quantities"].([]any)[0].(map[string]any)
	if got := q["inventoryItemId"].(string); got != "gid://shopify/InventoryItem/555" {
		t.Fatalf("inventoryItemId: got %q", got)
	}
	if got := q["locationId"].(string); got != "gid://shopify/Location/777" {
		t.Fatalf("locationId: got %q", got)
	}
	if got := q["quantity"].(float64); got != 9 {
		t.Fatalf("quantity: got %v", got)
	}
}

func TestSetInventoryQuantity_UserErrorIsError(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"inventorySetQuantities":{"userErrors":[{"message":"location not found"}]}}}`))
	})

	if err := c.SetInventoryQuantity(context.Background(), 555, "777", 9); err == nil {
		t.Fatalf("expected error on userErrors")
	}
}

func TestExecute_GraphQLErrors(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"throttled"}]}`))
	})

	if _, err := c.BulkUpdatePrices(context.Background(), 100, []VariantCost{{VariantID: 11, Cost: 10}}, 2.5); err == nil {
		t.Fatalf("expected transport-level error on graphql errors")
	}
}

func TestExecute_HTTPStatusError(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := c.BulkUpdatePrices(context.Background(), 100, []VariantCost{{VariantID: 11, Cost: 10}}, 2.5); err == nil {
		t.Fatalf("expected error on non-200 status")
	}
}
