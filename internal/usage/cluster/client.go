package cluster

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/samcharles93/memspace/internal/usage"
)

// Client is the usage.Gatherer for one rank.
type Client struct {
	BaseURL string
	Session string
	Rank    int
	Size    int
	HTTP    *http.Client
}

var _ usage.Gatherer = (*Client)(nil)

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// Gather submits local and, on rank 0, waits for the rest of the job.
func (c *Client) Gather(ctx context.Context, local usage.Snapshot) ([]usage.Snapshot, bool, error) {
	body, err := json.Marshal(local)
	if err != nil {
		return nil, false, err
	}
	submit, err := url.JoinPath(c.BaseURL, "v1/usage", c.Session, strconv.Itoa(c.Rank))
	if err != nil {
		return nil, false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, submit, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if _, err := c.do(req, http.StatusAccepted); err != nil {
		return nil, false, fmt.Errorf("submit rank %d: %w", c.Rank, err)
	}
	if c.Rank != 0 {
		return nil, false, nil
	}

	collect, err := url.JoinPath(c.BaseURL, "v1/usage", c.Session)
	if err != nil {
		return nil, false, err
	}
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, collect, nil)
	if err != nil {
		return nil, false, err
	}
	raw, err := c.do(req, http.StatusOK)
	if err != nil {
		return nil, false, fmt.Errorf("collect session %s: %w", c.Session, err)
	}
	var all []usage.Snapshot
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, false, fmt.Errorf("decode gather: %w", err)
	}
	if c.Size > 0 && len(all) != c.Size {
		return nil, false, fmt.Errorf("gather returned %d snapshots, want %d", len(all), c.Size)
	}
	return all, true, nil
}

func (c *Client) do(req *http.Request, want int) ([]byte, error) {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != want {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("%s: %s", resp.Status, e.Error)
		}
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return raw, nil
}
