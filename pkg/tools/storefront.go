package tools

import (
	"context"
	"fmt"

	"github.com/danang/arunika/pkg/storefront"
)

// RegisterStorefrontTools registers the shop data tools backed by the
// given client.
func RegisterStorefrontTools(registry *Registry, client *storefront.Client) error {
	defs := []Definition{
		orderLookupTool(client),
		searchProductTool(client),
		shopInfoTool(client),
		shopPolicyTool(client),
	}
	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", def.Name, err)
		}
	}
	return nil
}

func orderLookupTool(client *storefront.Client) Definition {
	return Definition{
		Name: "order_lookup",
		Description: "Look up an order by its order number and return customer information, items purchased, " +
			"totals, and fulfillment status. Ask the customer for the order number before calling this.",
		Parameters: []Parameter{
			{Name: "order_id", Type: "string", Required: true, Description: "Order number, e.g. \"#1001\"."},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			orderID, _ := params["order_id"].(string)
			orders, err := client.OrderLookup(ctx, orderID)
			if err != nil {
				return nil, fmt.Errorf("error looking up order: %w", err)
			}
			if len(orders) == 0 {
				return fmt.Sprintf("No orders found for order number %s.", orderID), nil
			}
			return orders, nil
		},
	}
}

func searchProductTool(client *storefront.Client) Definition {
	return Definition{
		Name:        "search_product",
		Description: "Search the store catalog for products matching a term. Returns titles, prices, variants, and links.",
		Parameters: []Parameter{
			{Name: "query", Type: "string", Required: true, Description: "Product name or keywords to search for."},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			query, _ := params["query"].(string)
			products, err := client.SearchProducts(ctx, query)
			if err != nil {
				return nil, fmt.Errorf("error searching products: %w", err)
			}
			if len(products) == 0 {
				return fmt.Sprintf("No products found matching %q.", query), nil
			}
			return products, nil
		},
	}
}

func shopInfoTool(client *storefront.Client) Definition {
	return Definition{
		Name:        "shop_info",
		Description: "Get the store's profile: name, contact email, domain, and address.",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			info, err := client.GetShopInfo(ctx)
			if err != nil {
				return nil, fmt.Errorf("error fetching shop info: %w", err)
			}
			if info == nil {
				return "No shop information available.", nil
			}
			return info, nil
		},
	}
}

func shopPolicyTool(client *storefront.Client) Definition {
	return Definition{
		Name:        "shop_policy",
		Description: "Fetch one of the store's published policies.",
		Parameters: []Parameter{
			{
				Name: "policy_type", Type: "string", Required: true,
				Description: "Which policy to fetch.",
				Enum:        []string{"privacy", "terms", "refund", "shipping"},
			},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			policyType, _ := params["policy_type"].(string)
			policy, err := client.GetPolicy(ctx, policyType)
			if err != nil {
				return nil, fmt.Errorf("error fetching policy: %w", err)
			}
			if policy == nil {
				return fmt.Sprintf("The store has not published a %s policy.", policyType), nil
			}
			return policy, nil
		},
	}
}
