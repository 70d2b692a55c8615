package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// gateway is a thin client for the gateway HTTP API.
type gateway struct {
	baseURL string
	session string
	http    *http.Client
}

func newGateway() *gateway {
	return &gateway{
		baseURL: strings.TrimRight(serverURL, "/"),
		session: sessionID,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// errorBody matches the gateway's error responses.
type errorBody struct {
	Detail string `json:"detail"`
}

// call sends a request and decodes the JSON response into out. The session
// id is added to every request when set.
func (g *gateway) call(ctx context.Context, method, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	if g.session != "" {
		query.Set("session_id", g.session)
	}

	target := g.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e errorBody
		if json.Unmarshal(body, &e) == nil && e.Detail != "" {
			return fmt.Errorf("server returned status %d: %s", resp.StatusCode, e.Detail)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], body...)
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
