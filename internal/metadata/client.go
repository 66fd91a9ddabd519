package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/joestump/smartmark/internal/logger"
)

// Client is an Enricher that asks a remote metadata endpoint
// (POST {"url": ...} -> {"title","description","image"}) instead of scraping
// in-process.
type Client struct {
	endpoint string
	http     *http.Client
	log      logger.Logger
}

// NewClient creates a Client for the endpoint URL, e.g.
// "https://smartmark.example.com/api/metadata".
func NewClient(endpoint string, log logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: fetchTimeout + 5*time.Second},
		log:      log,
	}
}

// Fetch posts url to the endpoint. Any failure yields the zero Metadata.
func (c *Client) Fetch(ctx context.Context, url string) Metadata {
	md, err := c.fetch(ctx, url)
	if err != nil {
		c.log.Debug("metadata endpoint call failed",
			logger.String("endpoint", c.endpoint),
			logger.String("url", url),
			logger.Error(err))
		return Metadata{}
	}
	return md
}

func (c *Client) fetch(ctx context.Context, url string) (Metadata, error) {
	payload, err := json.Marshal(struct {
		URL string `json:"url"`
	}{URL: url})
	if err != nil {
		return Metadata{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Metadata{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("metadata request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Metadata{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("metadata endpoint returned %d: %s", resp.StatusCode, body)
	}

	var md Metadata
	if err := json.Unmarshal(body, &md); err != nil {
		return Metadata{}, fmt.Errorf("decode response: %w", err)
	}
	return md, nil
}
