package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wedsite/internal/profile"
)

// SitePath is the persistence endpoint.
const SitePath = "/v1/site"

// SitePayload is the request and response body of the site endpoint.
type SitePayload struct {
	Fields profile.Record `json:"fields"`
}

type errorBody struct {
	Error string `json:"error"`
}

// HTTPWriter writes the record with PUT /v1/site and a bearer token.
type HTTPWriter struct {
	baseURL string
	client  *http.Client
}

// NewHTTPWriter creates a writer for the API at baseURL. A nil client gets a
// default with a 15s timeout.
func NewHTTPWriter(baseURL string, client *http.Client) *HTTPWriter {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPWriter{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"), client: client}
}

func (w *HTTPWriter) Write(ctx context.Context, token string, rec profile.Record) (profile.Record, error) {
	body, err := json.Marshal(SitePayload{Fields: rec})
	if err != nil {
		return nil, fmt.Errorf("encode site: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, w.baseURL+SitePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return w.do(req)
}

// Load fetches the stored record with GET /v1/site.
func (w *HTTPWriter) Load(ctx context.Context, token string) (profile.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+SitePath, nil)
	if err != nil {
		return nil, fmt.Errorf("build load request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return w.do(req)
}

func (w *HTTPWriter) do(req *http.Request) (profile.Record, error) {
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request site: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read site response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			msg = eb.Error
		}
		return nil, &StatusError{Status: resp.StatusCode, Message: msg}
	}
	var payload SitePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode site response: %w", err)
	}
	return payload.Fields, nil
}
