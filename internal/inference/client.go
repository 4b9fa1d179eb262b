package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oksasatya/usage-aggregate-service/internal/domain/entity"
	"github.com/oksasatya/usage-aggregate-service/pkg/response"
)

// ErrNoUsers is returned by Latest when the service has no aggregates.
var ErrNoUsers = errors.New("inference: no users stored")

// Client reads aggregates from the HTTP API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Latest fetches GET /users/latest and unwraps the response envelope.
func (c *Client) Latest(ctx context.Context) (*entity.Aggregate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/users/latest", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference: fetch latest: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("inference: read body: %w", err)
	}

	var env response.APIResponse[*entity.Aggregate]
	decodeErr := json.Unmarshal(body, &env)
	if res.StatusCode == http.StatusNotFound {
		// Only the service's own envelope means the store is empty; anything
		// else is a router miss, usually a wrong base URL or prefix.
		if decodeErr == nil && !env.Success && env.Status == http.StatusNotFound {
			return nil, ErrNoUsers
		}
		return nil, fmt.Errorf("inference: %s not found; check API_BASE_URL", req.URL)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("inference: decode envelope (status %d): %w", res.StatusCode, decodeErr)
	}
	if res.StatusCode/100 != 2 || !env.Success {
		return nil, fmt.Errorf("inference: latest: status %d: %s", res.StatusCode, env.Message)
	}
	if env.Data == nil {
		return nil, errors.New("inference: latest: empty data")
	}
	return env.Data, nil
}
