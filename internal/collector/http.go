package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"Terminal/internal/model"
)

// HTTPSource reads snapshots from the snapshot service's REST API.
type HTTPSource struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPSource creates a source with optional proxy support.
func NewHTTPSource(baseURL, apiKey, proxyURL string) *HTTPSource {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &HTTPSource{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   60 * time.Second,
			Transport: transport,
		},
	}
}

func (s *HTTPSource) Name() string { return "snapshot-http" }

func (s *HTTPSource) FetchRows(ctx context.Context, date string, level model.Level) ([]RawRow, error) {
	endpoint := fmt.Sprintf("%s/api/v1/snapshots/%s/%s", s.BaseURL, url.PathEscape(date), url.PathEscape(string(level)))
	body, err := s.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch rows: %w", err)
	}
	return DecodeRows(body)
}

func (s *HTTPSource) FetchOutcomes(ctx context.Context, date string, level model.Level) ([]RawRow, error) {
	endpoint := fmt.Sprintf("%s/api/v1/outcomes/%s/%s", s.BaseURL, url.PathEscape(date), url.PathEscape(string(level)))
	body, err := s.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch outcomes: %w", err)
	}
	return DecodeRows(body)
}

func (s *HTTPSource) FetchManifest(ctx context.Context) (*model.Manifest, error) {
	body, err := s.get(ctx, s.BaseURL+"/api/v1/outcomes/manifest")
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	var m model.Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Source == "" {
		m.Source = s.Name()
	}
	return &m, nil
}

func (s *HTTPSource) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNoData
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
