// Package backend is the storefront's client for the orders REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/orders"
)

// ErrNoToken is returned by admin calls made without a bearer token.
var ErrNoToken = errors.New("admin token required")

// APIError is any non-2xx answer. Message is the server's own text when the
// body carried one.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend returned %d", e.Status)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: hc}
}

// WithToken returns a copy that authorizes admin calls with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	var p catalog.Product
	err := c.do(ctx, http.MethodGet, "/api/products/"+url.PathEscape(id), nil, nil, false, &p)
	return p, err
}

type createOrderResponse struct {
	Order orders.Order `json:"order"`
}

// CreateOrder posts a new order. idempotencyKey is sent as the
// Idempotency-Key header; replaying it returns the order already created.
func (c *Client) CreateOrder(ctx context.Context, idempotencyKey string, req orders.CreateRequest) (orders.Order, error) {
	h := http.Header{}
	if idempotencyKey != "" {
		h.Set("Idempotency-Key", idempotencyKey)
	}
	var resp createOrderResponse
	if err := c.do(ctx, http.MethodPost, "/api/orders/create", h, req, false, &resp); err != nil {
		return orders.Order{}, err
	}
	return resp.Order, nil
}

func (c *Client) ListOrders(ctx context.Context) ([]orders.Order, error) {
	var list []orders.Order
	err := c.do(ctx, http.MethodGet, "/api/orders", nil, nil, true, &list)
	return list, err
}

func (c *Client) UpdateOrder(ctx context.Context, id string, req orders.UpdateRequest) (orders.Order, error) {
	var o orders.Order
	err := c.do(ctx, http.MethodPut, "/api/orders/"+url.PathEscape(id), nil, req, true, &o)
	return o, err
}

func (c *Client) DeleteOrder(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/orders/"+url.PathEscape(id), nil, nil, true, nil)
}

func (c *Client) do(ctx context.Context, method, path string, h http.Header, in any, admin bool, out any) error {
	if admin && c.token == "" {
		return ErrNoToken
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	for k, v := range h {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: messageOf(raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func messageOf(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}
