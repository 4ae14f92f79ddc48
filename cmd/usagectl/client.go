package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// apiRequest sends body as JSON and returns the raw response.
func apiRequest(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	url := strings.TrimRight(serverURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return data, resp.StatusCode, nil
}

// apiError turns a non-2xx response into an error carrying the server's
// message and, for validation failures, the offending path.
func apiError(data []byte, status int) error {
	var body struct {
		Error string `json:"error"`
		Path  string `json:"path"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		return fmt.Errorf("server returned %d: %s", status, strings.TrimSpace(string(data)))
	}
	if body.Path != "" && !strings.HasPrefix(body.Error, body.Path) {
		return fmt.Errorf("server returned %d: %s (at %s)", status, body.Error, body.Path)
	}
	return fmt.Errorf("server returned %d: %s", status, body.Error)
}
