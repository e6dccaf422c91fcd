package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	apperrors "github.com/robotto-health/triage-backend/pkg/errors"
)

// HTTPSource fetches a registry document from a URL. Every request carries a
// cache-busting query parameter and disables intermediary caching, so a stale
// CDN copy never shadows a republished snapshot.
type HTTPSource struct {
	name       string
	rawURL     string
	httpClient *http.Client
}

// NewHTTPSource creates a source for one registry document URL.
func NewHTTPSource(name, rawURL string) *HTTPSource {
	return &HTTPSource{
		name:   name,
		rawURL: rawURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name identifies the source in logs.
func (s *HTTPSource) Name() string {
	return s.name
}

// Fetch retrieves the raw JSON document.
func (s *HTTPSource) Fetch(ctx context.Context) (json.RawMessage, error) {
	u, err := url.Parse(s.rawURL)
	if err != nil {
		return nil, apperrors.NewExternalError(fmt.Sprintf("invalid %s url", s.name), err)
	}
	q := u.Query()
	q.Set("ts", strconv.FormatInt(time.Now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperrors.NewExternalError(fmt.Sprintf("failed to build %s request", s.name), err)
	}
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewExternalError(fmt.Sprintf("%s fetch failed", s.name), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.NewExternalError(
			fmt.Sprintf("%s fetch returned status %d", s.name, resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewExternalError(fmt.Sprintf("failed to read %s response", s.name), err)
	}
	return body, nil
}
