package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/arborhq/arbor/pkg/hierarchy"
)

// HTTPProvider enumerates children over the upstream platform's REST API.
// It expects GET {base}/nodes/{id}/children to answer with a JSON array of
// {id, type, name} objects.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider creates a provider against baseURL. A nil client gets a
// default with a 30s timeout.
func NewHTTPProvider(baseURL string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type childPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

// ListChildren implements Provider
func (p *HTTPProvider) ListChildren(ctx context.Context, externalParentID string) ([]Child, error) {
	url := fmt.Sprintf("%s/nodes/%s/children", p.baseURL, externalParentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build children request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, externalParentID)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var payload []childPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: malformed children response: %v", ErrUpstreamUnavailable, err)
	}

	children := make([]Child, 0, len(payload))
	for _, c := range payload {
		children = append(children, Child{
			ExternalID: c.ID,
			Type:       hierarchy.ResourceType(c.Type),
			Name:       c.Name,
		})
	}
	return children, nil
}
