package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vin-jex/job-overseer/internal/liveness"
)

// StatusClient reads a worker's emitter status over its ops endpoint.
type StatusClient struct {
	url    string
	client *http.Client
}

var _ liveness.StatusProbe = (*StatusClient)(nil)

// NewStatusClient accepts either the ops base URL or the full status URL.
func NewStatusClient(baseURL string, client *http.Client) *StatusClient {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}

	url := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(url, EmitterStatusPath) {
		url += EmitterStatusPath
	}

	return &StatusClient{url: url, client: client}
}

func (c *StatusClient) EmitterStatus(ctx context.Context) (liveness.EmitterStatus, error) {
	var status liveness.EmitterStatus

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return status, err
	}

	response, err := c.client.Do(request)
	if err != nil {
		return status, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return status, fmt.Errorf("GET %s: unexpected status %d", c.url, response.StatusCode)
	}

	if err := json.NewDecoder(response.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("decode emitter status: %w", err)
	}

	return status, nil
}
