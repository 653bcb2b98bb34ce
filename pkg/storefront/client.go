// Package storefront talks to the Shopify store behind the support agent.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/danang/arunika/pkg/retry"
)

const apiVersion = "2025-10"

// Variant is one purchasable variant of a product.
type Variant struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

// Product is a storefront search hit.
type Product struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	PriceAmount   float64   `json:"price_amount"`
	PriceCurrency string    `json:"price_currency"`
	ImageURL      string    `json:"image_url,omitempty"`
	ProductURL    string    `json:"product_url,omitempty"`
	Variants      []Variant `json:"variants,omitempty"`
}

// LineItem is one line of an order.
type LineItem struct {
	Title    string  `json:"title"`
	Quantity int     `json:"quantity"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// TrackingInfo describes one shipment tracking entry.
type TrackingInfo struct {
	Company string `json:"company"`
	Number  string `json:"number"`
	URL     string `json:"url"`
}

// Fulfillment is one fulfillment of an order with its tracking entries.
type Fulfillment struct {
	Status       string         `json:"status"`
	TrackingInfo []TrackingInfo `json:"tracking_info"`
}

// Order is the result of an order lookup.
type Order struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Email             string        `json:"email"`
	TotalPrice        float64       `json:"total_price"`
	Currency          string        `json:"currency"`
	LineItems         []LineItem    `json:"line_items"`
	FulfillmentStatus string        `json:"fulfillment_status"`
	FinancialStatus   string        `json:"financial_status"`
	Fulfillments      []Fulfillment `json:"fulfillments"`
	CreatedAt         string        `json:"created_at"`
}

// Policy is one of the shop's published policies.
type Policy struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ShopInfo is the shop's public profile.
type ShopInfo struct {
	Name            string            `json:"name"`
	Email           string            `json:"email"`
	MyshopifyDomain string            `json:"myshopify_domain"`
	ContactEmail    string            `json:"contact_email"`
	PrimaryDomain   string            `json:"primary_domain,omitempty"`
	BillingAddress  map[string]string `json:"billing_address,omitempty"`
}

// Client calls the Shopify Storefront and Admin APIs.
type Client struct {
	baseURL         string
	storefrontToken string
	adminToken      string
	http            *http.Client
	retry           *retry.Policy
	logger          zerolog.Logger
}

// NewClient creates a client for the given store subdomain.
func NewClient(store, storefrontToken, adminToken string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:         fmt.Sprintf("https://%s.myshopify.com", store),
		storefrontToken: storefrontToken,
		adminToken:      adminToken,
		http:            &http.Client{Timeout: 30 * time.Second},
		retry:           retry.NewPolicy(logger),
		logger:          logger,
	}
}

const searchProductsQuery = `
query SearchProducts($query: String!) {
  search(first: 10, query: $query) {
    edges {
      node {
        __typename
        ... on Product {
          id
          title
          description
          handle
          onlineStoreUrl
          images(first: 1) { edges { node { url } } }
          priceRange { minVariantPrice { amount currencyCode } }
          variants(first: 5) {
            nodes {
              id
              title
              priceV2 { amount currencyCode }
            }
          }
        }
      }
    }
  }
}`

// SearchProducts searches the storefront catalog.
func (c *Client) SearchProducts(ctx context.Context, term string) ([]Product, error) {
	if strings.TrimSpace(term) == "" {
		return nil, fmt.Errorf("search term is required")
	}

	var out struct {
		Search struct {
			Edges []struct {
				Node struct {
					Typename       string `json:"__typename"`
					ID             string `json:"id"`
					Title          string `json:"title"`
					Description    string `json:"description"`
					OnlineStoreURL string `json:"onlineStoreUrl"`
					Images         struct {
						Edges []struct {
							Node struct {
								URL string `json:"url"`
							} `json:"node"`
						} `json:"edges"`
					} `json:"images"`
					PriceRange struct {
						MinVariantPrice money `json:"minVariantPrice"`
					} `json:"priceRange"`
					Variants struct {
						Nodes []struct {
							ID      string `json:"id"`
							Title   string `json:"title"`
							PriceV2 money  `json:"priceV2"`
						} `json:"nodes"`
					} `json:"variants"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"search"`
	}

	url := fmt.Sprintf("%s/api/%s/graphql.json", c.baseURL, apiVersion)
	headers := map[string]string{"X-Shopify-Storefront-Access-Token": c.storefrontToken}
	if err := c.graphql(ctx, url, headers, searchProductsQuery, map[string]interface{}{"query": term}, &out); err != nil {
		return nil, err
	}

	var products []Product
	for _, edge := range out.Search.Edges {
		node := edge.Node
		if node.Typename != "Product" {
			continue
		}

		p := Product{
			ID:            node.ID,
			Title:         node.Title,
			Description:   node.Description,
			ProductURL:    node.OnlineStoreURL,
			PriceAmount:   node.PriceRange.MinVariantPrice.amount(),
			PriceCurrency: node.PriceRange.MinVariantPrice.CurrencyCode,
		}
		if len(node.Images.Edges) > 0 {
			p.ImageURL = node.Images.Edges[0].Node.URL
		}
		for _, v := range node.Variants.Nodes {
			p.Variants = append(p.Variants, Variant{
				ID:       v.ID,
				Title:    v.Title,
				Price:    v.PriceV2.amount(),
				Currency: v.PriceV2.CurrencyCode,
			})
		}
		products = append(products, p)
	}
	return products, nil
}

const orderLookupQuery = `
query getOrder($query: String!) {
  orders(first: 1, query: $query) {
    edges {
      node {
        id
        name
        email
        displayFulfillmentStatus
        displayFinancialStatus
        createdAt
        lineItems(first: 20) {
          edges {
            node {
              title
              quantity
              originalTotalSet { shopMoney { amount currencyCode } }
            }
          }
        }
        fulfillments(first: 5) {
          status
          trackingInfo(first: 5) { company number url }
        }
      }
    }
  }
}`

// OrderLookup finds an order by its display name, e.g. "#1001".
func (c *Client) OrderLookup(ctx context.Context, orderID string) ([]Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("order_id is required")
	}

	var out struct {
		Orders struct {
			Edges []struct {
				Node struct {
					ID                       string `json:"id"`
					Name                     string `json:"name"`
					Email                    string `json:"email"`
					DisplayFulfillmentStatus string `json:"displayFulfillmentStatus"`
					DisplayFinancialStatus   string `json:"displayFinancialStatus"`
					CreatedAt                string `json:"createdAt"`
					LineItems                struct {
						Edges []struct {
							Node struct {
								Title            string `json:"title"`
								Quantity         int    `json:"quantity"`
								OriginalTotalSet struct {
									ShopMoney money `json:"shopMoney"`
								} `json:"originalTotalSet"`
							} `json:"node"`
						} `json:"edges"`
					} `json:"lineItems"`
					Fulfillments []struct {
						Status       string `json:"status"`
						TrackingInfo []struct {
							Company string `json:"company"`
							Number  string `json:"number"`
							URL     string `json:"url"`
						} `json:"trackingInfo"`
					} `json:"fulfillments"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"orders"`
	}

	url := fmt.Sprintf("%s/admin/api/%s/graphql.json", c.baseURL, apiVersion)
	headers := map[string]string{"X-Shopify-Access-Token": c.adminToken}
	variables := map[string]interface{}{"query": "name:" + orderID}
	if err := c.graphql(ctx, url, headers, orderLookupQuery, variables, &out); err != nil {
		return nil, err
	}

	var orders []Order
	for _, edge := range out.Orders.Edges {
		node := edge.Node
		order := Order{
			ID:                node.ID,
			Name:              node.Name,
			Email:             node.Email,
			FulfillmentStatus: node.DisplayFulfillmentStatus,
			FinancialStatus:   node.DisplayFinancialStatus,
			CreatedAt:         node.CreatedAt,
		}

		for _, itemEdge := range node.LineItems.Edges {
			item := itemEdge.Node
			li := LineItem{
				Title:    item.Title,
				Quantity: item.Quantity,
				Amount:   item.OriginalTotalSet.ShopMoney.amount(),
				Currency: item.OriginalTotalSet.ShopMoney.CurrencyCode,
			}
			order.LineItems = append(order.LineItems, li)
			order.TotalPrice += li.Amount
		}
		if len(order.LineItems) > 0 {
			order.Currency = order.LineItems[0].Currency
		}

		for _, f := range node.Fulfillments {
			fulfillment := Fulfillment{Status: f.Status}
			for _, t := range f.TrackingInfo {
				fulfillment.TrackingInfo = append(fulfillment.TrackingInfo, TrackingInfo{
					Company: t.Company,
					Number:  t.Number,
					URL:     t.URL,
				})
			}
			order.Fulfillments = append(order.Fulfillments, fulfillment)
		}

		orders = append(orders, order)
	}
	return orders, nil
}

// GetPolicy fetches one published policy by type: privacy, terms, refund,
// or shipping. Returns nil when the shop has not published it.
func (c *Client) GetPolicy(ctx context.Context, policyType string) (*Policy, error) {
	switch policyType {
	case "privacy", "terms", "refund", "shipping":
	default:
		return nil, fmt.Errorf("unknown policy type: %s", policyType)
	}

	var out struct {
		Policies []struct {
			Title  string `json:"title"`
			Body   string `json:"body"`
			Handle string `json:"handle"`
		} `json:"policies"`
	}

	url := fmt.Sprintf("%s/admin/api/%s/policies.json", c.baseURL, apiVersion)
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Shopify-Access-Token", c.adminToken)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("storefront returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	})
	if err != nil {
		return nil, err
	}

	for _, pol := range out.Policies {
		if strings.Contains(strings.ToLower(pol.Handle), policyType) {
			return &Policy{Title: pol.Title, Body: pol.Body}, nil
		}
	}
	return nil, nil
}

const shopInfoQuery = `
query {
  shop {
    name
    email
    myshopifyDomain
    contactEmail
    primaryDomain { host }
    billingAddress {
      address1
      address2
      city
      province
      country
      zip
      phone
    }
  }
}`

// GetShopInfo fetches the shop's public profile.
func (c *Client) GetShopInfo(ctx context.Context) (*ShopInfo, error) {
	var out struct {
		Shop struct {
			Name            string `json:"name"`
			Email           string `json:"email"`
			MyshopifyDomain string `json:"myshopifyDomain"`
			ContactEmail    string `json:"contactEmail"`
			PrimaryDomain   struct {
				Host string `json:"host"`
			} `json:"primaryDomain"`
			BillingAddress map[string]string `json:"billingAddress"`
		} `json:"shop"`
	}

	url := fmt.Sprintf("%s/admin/api/%s/graphql.json", c.baseURL, apiVersion)
	headers := map[string]string{"X-Shopify-Access-Token": c.adminToken}
	if err := c.graphql(ctx, url, headers, shopInfoQuery, nil, &out); err != nil {
		return nil, err
	}

	if out.Shop.Name == "" {
		return nil, nil
	}
	return &ShopInfo{
		Name:            out.Shop.Name,
		Email:           out.Shop.Email,
		MyshopifyDomain: out.Shop.MyshopifyDomain,
		ContactEmail:    out.Shop.ContactEmail,
		PrimaryDomain:   out.Shop.PrimaryDomain.Host,
		BillingAddress:  out.Shop.BillingAddress,
	}, nil
}

// money is the amount/currencyCode pair Shopify uses everywhere.
type money struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

func (m money) amount() float64 {
	var f float64
	fmt.Sscanf(m.Amount, "%f", &f)
	return f
}

func (c *Client) graphql(ctx context.Context, url string, headers map[string]string, query string, variables map[string]interface{}, out interface{}) error {
	payload := map[string]interface{}{"query": query}
	if variables != nil {
		payload["variables"] = variables
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	return c.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			c.logger.Error().Int("status", resp.StatusCode).Str("url", url).Msg("Storefront request failed")
			return fmt.Errorf("storefront returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}

		var envelope struct {
			Data   json.RawMessage `json:"data"`
			Errors []struct {
				Message string `json:"message"`
			} `json:"errors"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return err
		}
		if len(envelope.Errors) > 0 {
			var msgs []string
			for _, e := range envelope.Errors {
				msgs = append(msgs, e.Message)
			}
			return fmt.Errorf("storefront graphql error: %s", strings.Join(msgs, "; "))
		}
		if out == nil || envelope.Data == nil {
			return nil
		}
		return json.Unmarshal(envelope.Data, out)
	})
}
