package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"storefront-service/internal/models"
)

// Sentinel errors for the upstream contract. ErrUnavailable covers
// connectivity failures, timeouts and 5xx responses; ErrBadResponse
// covers responses that decode but are missing expected fields.
var (
	ErrUnavailable = errors.New("shop backend unavailable")
	ErrBadResponse = errors.New("malformed backend response")
)

// APIError is an application-level rejection from the backend (4xx)
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend rejected request: status=%d message=%s", e.Status, e.Message)
}

// IsUnavailable reports whether err means the backend could not be
// reached, as opposed to reaching it and being rejected
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Client talks to the shop backend cart and shipping API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a backend API client with a short request timeout
// so a dead backend degrades the session instead of hanging it
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type cartEnvelope struct {
	Cart *cartPayload `json:"cart"`
}

// cartPayload uses a pointer slice so a response without an items field
// is distinguishable from an empty cart
type cartPayload struct {
	Items      *[]models.CartItem `json:"items"`
	TotalItems int                `json:"total_items"`
	TotalPrice float64            `json:"total_price"`
	IsEmpty    bool               `json:"is_empty"`
}

func (p *cartPayload) toCart() (*models.Cart, error) {
	if p == nil || p.Items == nil {
		return nil, fmt.Errorf("cart payload missing items: %w", ErrBadResponse)
	}
	cart := models.Cart{Items: *p.Items}
	cart.Recalculate()
	return &cart, nil
}

// GetCart fetches the current cart for a session
func (c *Client) GetCart(ctx context.Context, sessionID string) (*models.Cart, error) {
	var payload cartPayload
	if err := c.do(ctx, sessionID, http.MethodGet, "/api/carrito/simple/", nil, &payload); err != nil {
		return nil, err
	}
	return payload.toCart()
}

// AddItem adds a product to the session cart and returns the cart the
// backend now holds
func (c *Client) AddItem(ctx context.Context, sessionID string, productID int64, quantity int) (*models.Cart, error) {
	body := map[string]interface{}{"product_id": productID, "quantity": quantity}
	var envelope cartEnvelope
	if err := c.do(ctx, sessionID, http.MethodPost, "/api/carrito/simple/add/", body, &envelope); err != nil {
		return nil, err
	}
	return envelope.Cart.toCart()
}

// UpdateQuantity replaces a line quantity. Quantity zero removes the line.
func (c *Client) UpdateQuantity(ctx context.Context, sessionID string, productID int64, quantity int) (*models.Cart, error) {
	body := map[string]interface{}{"product_id": productID, "quantity": quantity}
	var envelope cartEnvelope
	if err := c.do(ctx, sessionID, http.MethodPut, "/api/carrito/update/", body, &envelope); err != nil {
		return nil, err
	}
	return envelope.Cart.toCart()
}

// RemoveItem removes a product line from the session cart
func (c *Client) RemoveItem(ctx context.Context, sessionID string, productID int64) (*models.Cart, error) {
	body := map[string]interface{}{"product_id": productID}
	var envelope cartEnvelope
	if err := c.do(ctx, sessionID, http.MethodPost, "/api/carrito/simple/remove/", body, &envelope); err != nil {
		return nil, err
	}
	return envelope.Cart.toCart()
}

// ClearCart empties the session cart on the backend
func (c *Client) ClearCart(ctx context.Context, sessionID string) (*models.Cart, error) {
	var envelope cartEnvelope
	if err := c.do(ctx, sessionID, http.MethodDelete, "/api/carrito/clear/", nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Cart.toCart()
}

// ReportAbandonedCart sends an abandoned-cart record to the marketing
// endpoint and returns the created record id
func (c *Client) ReportAbandonedCart(ctx context.Context, record *models.AbandonedCartRecord) (int64, error) {
	var resp struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, "", http.MethodPost, "/api/pedidos/carrito-abandonado/", record, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// GetShippingConfig fetches the store shipping configuration
func (c *Client) GetShippingConfig(ctx context.Context) (*models.ShippingConfig, error) {
	var cfg models.ShippingConfig
	if err := c.do(ctx, "", http.MethodGet, "/api/pedidos/shipping/config/", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetShippingZones fetches the zone table for one shipping method
func (c *Client) GetShippingZones(ctx context.Context, method string) ([]models.ShippingZone, error) {
	var zones []models.ShippingZone
	path := fmt.Sprintf("/api/pedidos/shipping/zones/%s/", method)
	if err := c.do(ctx, "", http.MethodGet, path, nil, &zones); err != nil {
		return nil, err
	}
	return zones, nil
}

// CalculateShipping asks the backend to price a delivery
func (c *Client) CalculateShipping(ctx context.Context, distanceKm float64, method string, orderAmount float64) (*models.ShippingQuote, error) {
	body := map[string]interface{}{
		"distance_km":     distanceKm,
		"shipping_method": method,
		"order_amount":    orderAmount,
	}
	var quote models.ShippingQuote
	if err := c.do(ctx, "", http.MethodPost, "/api/pedidos/shipping/calculate/", body, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// do performs one request/response exchange and classifies failures
// into the package error taxonomy
func (c *Client) do(ctx context.Context, sessionID, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: "sessionid", Value: sessionID})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		message := apiErr.Error
		if message == "" {
			message = apiErr.Detail
		}
		return &APIError{Status: resp.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", ErrBadResponse)
	}
	return nil
}
