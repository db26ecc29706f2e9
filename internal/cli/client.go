// Package cli holds the HTTP client and local identity used by the
// twadmin command.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Market(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/market", "", nil, &out, "")
	return out, err
}

func (c *Client) Quote(ctx context.Context, commodity string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/market/"+url.PathEscape(commodity)+"/quote", "", nil, &out, "")
	return out, err
}

func (c *Client) History(ctx context.Context, commodity string, points int) (map[string]any, error) {
	path := "/v1/market/" + url.PathEscape(commodity) + "/history"
	if points > 0 {
		path = fmt.Sprintf("%s?points=%d", path, points)
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, path, "", nil, &out, "")
	return out, err
}

func (c *Client) Events(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/events", "", nil, &out, "")
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/leaderboard", "", nil, &out, "")
	return out, err
}

func (c *Client) Dashboard(ctx context.Context, playerID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/dashboard", playerID, nil, &out, "")
	return out, err
}

func (c *Client) Claim(ctx context.Context, playerID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/claim", playerID, map[string]any{}, &out, "")
	return out, err
}

func (c *Client) Trade(ctx context.Context, playerID, commodity, action string, quantity int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/trade", playerID, map[string]any{
		"commodity": commodity,
		"action":    action,
		"quantity":  quantity,
	}, &out, "")
	return out, err
}

func (c *Client) Trades(ctx context.Context, playerID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/trades", playerID, nil, &out, "")
	return out, err
}

func (c *Client) BankMove(ctx context.Context, playerID, op string, amount float64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/bank/"+url.PathEscape(op), playerID, map[string]any{
		"amount": amount,
	}, &out, "")
	return out, err
}

// Tick drives one market tick through the operator endpoint. The secret
// must match the server's TW_TICK_SECRET.
func (c *Client) Tick(ctx context.Context, secret string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/internal/tick", "", nil, &out, secret)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path, playerID string, in any, out any, bearer string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if playerID != "" {
		req.Header.Set("X-Player-ID", playerID)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
