package shopify

import (
	"context"
	"fmt"
	"math"
	"strconv"
)

type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

const bulkUpdateVariantsMutation = `
mutation bulkUpdateVariants($productId: ID!, $variants: [ProductVariantsBulkInput!]!) {
  productVariantsBulkUpdate(productId: $productId, variants: $variants) {
    productVariants {
      id
      price
      inventoryItem {
        unitCost {
          amount
        }
      }
    }
    userErrors {
      field
      message
    }
  }
}`

type bulkUpdateVariantsResult struct {
	ProductVariantsBulkUpdate struct {
		ProductVariants []struct {
			ID string `json:"id"`
		} `json:"productVariants"`
		UserErrors []userError `json:"userErrors"`
	} `json:"productVariantsBulkUpdate"`
}

// BulkUpdatePrices updates price and unit cost for all given variants of
// one product in a single mutation. Price is cost*margin rounded to
// cents; the raw cost lands on the inventory item. Variant-level
// userErrors fail the whole group (every variant reports false) without
// raising, so the processor can retry the tasks.
func (c *Client) BulkUpdatePrices(ctx context.Context, productID int64, updates []VariantCost, margin float64) (map[int64]bool, error) {
	if len(updates) == 0 {
		return map[int64]bool{}, nil
	}

	variants := make([]map[string]any, 0, len(updates))
	for _, u := range updates {
		price := roundCents(u.Cost * margin)
		variants = append(variants, map[string]any{
			"id":             variantGID(u.VariantID),
			"price":          formatPrice(price),
			"compareAtPrice": formatPrice(price),
			"inventoryItem":  map[string]any{"cost": u.Cost},
		})
	}

	var res bulkUpdateVariantsResult
	err := c.execute(ctx, bulkUpdateVariantsMutation, map[string]any{
		"productId": productGID(productID),
		"variants":  variants,
	}, &res)
	if err != nil {
		return nil, err
	}

	results := make(map[int64]bool, len(updates))

	if errs := res.ProductVariantsBulkUpdate.UserErrors; len(errs) > 0 {
		c.logger.Printf("bulk price update for product %d rejected: %s", productID, errs[0].Message)
		for _, u := range updates {
			results[u.VariantID] = false
		}
		return results, nil
	}

	confirmed := make(map[string]struct{}, len(res.ProductVariantsBulkUpdate.ProductVariants))
	for _, v := range res.ProductVariantsBulkUpdate.ProductVariants {
		confirmed[gidTail(v.ID)] = struct{}{}
	}
	for _, u := range updates {
		_, ok := confirmed[strconv.FormatInt(u.VariantID, 10)]
		results[u.VariantID] = ok
	}
	return results, nil
}

const inventorySetQuantitiesMutation = `
mutation inventorySetQuantities($input: InventorySetQuantitiesInput!) {
  inventorySetQuantities(input: $input) {
    inventoryAdjustmentGroup {
      createdAt
      reason
      changes {
        delta
      }
    }
    userErrors {
      field
      message
    }
  }
}`

type inventorySetQuantitiesResult struct {
	InventorySetQuantities struct {
		UserErrors []userError `json:"userErrors"`
	} `json:"inventorySetQuantities"`
}

// SetInventoryQuantity sets the "available" quantity of one inventory
// item at one location. There is no bulk form of this mutation here;
// callers pace their own loop.
func (c *Client) SetInventoryQuantity(ctx context.Context, inventoryItemID int64, locationID string, quantity int) error {
	input := map[string]any{
		"name":   "available",
		"reason": "restock",
		"quantities": []map[string]any{{
			"inventoryItemId": inventoryItemGID(inventoryItemID),
			"locationId":      locationGID(locationID),
			"quantity":        quantity,
		}},
		"ignoreCompareQuantity": true,
	}

	var res inventorySetQuantitiesResult
	if err := c.execute(ctx, inventorySetQuantitiesMutation, map[string]any{"input": input}, &res); err != nil {
		return err
	}

	if errs := res.InventorySetQuantities.UserErrors; len(errs) > 0 {
		return fmt.Errorf("inventory adjustment rejected: %s", errs[0].Message)
	}
	return nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
