// Package webhook posts low-stock notifications to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Shadansa24/Inventory-app/internal/inventory"
	"github.com/Shadansa24/Inventory-app/internal/logger"
)

const (
	DefaultTimeout = 6 * time.Second

	EventLowStock = "low_stock"
)

type Item struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Threshold int    `json:"threshold"`
}

// Payload is the JSON body sent to the webhook.
type Payload struct {
	Type   string    `json:"type"`
	Count  int       `json:"count"`
	Items  []Item    `json:"items"`
	SentAt time.Time `json:"sent_at"`
}

// LowStock builds the payload for a set of alerts.
func LowStock(alerts []inventory.Alert, now time.Time) Payload {
	p := Payload{Type: EventLowStock, Count: len(alerts), Items: make([]Item, 0, len(alerts)), SentAt: now.UTC()}
	for _, a := range alerts {
		p.Items = append(p.Items, Item{
			SKU:       a.Record.SKU,
			Name:      a.Record.Name,
			Quantity:  a.Quantity,
			Threshold: a.Threshold,
		})
	}
	return p
}

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned HTTP %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	url        string
	httpClient *http.Client
}

func New(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{url: url, httpClient: &http.Client{Timeout: timeout}}
}

func (c *Client) URL() string { return c.url }

// Post sends p as JSON. Any non-2xx response is an error.
func (c *Client) Post(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "inventory-app")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	logger.LogInfo("Webhook %s accepted %s event with %d item(s)", req.URL.Host, p.Type, p.Count)
	return nil
}
