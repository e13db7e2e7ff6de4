package pinnacle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

const (
	DefaultBaseURL = "https://swordfish-production.up.railway.app/events"

	maxErrorBody = 200
)

// Client fetches live reference odds for one event
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	origin     string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithOrigin sets the Origin and Referer headers sent with every request
func WithOrigin(origin string) Option {
	return func(c *Client) { c.origin = origin }
}

// New creates a new reference odds client
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the raw reference odds for an event.
// Line history is not decoded.
func (c *Client) Fetch(ctx context.Context, eventID string) (*models.ReferenceOdds, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, eventID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
		req.Header.Set("Referer", c.origin+"/")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w: %w", models.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w: %w", models.ErrTransientNetwork, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reference API error: status=%d, body=%s", resp.StatusCode, truncate(body))
	}

	odds, err := decode(body)
	if err != nil {
		return nil, fmt.Errorf("decoding response: %w: %w", models.ErrMalformedUpstreamData, err)
	}
	if odds.EventID == "" {
		odds.EventID = eventID
	}

	return odds, nil
}

// envelope matches responses that wrap the event in a data field
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// decode accepts both the bare event and the {"data": {...}} form
func decode(body []byte) (*models.ReferenceOdds, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}

	payload := body
	if len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		payload = env.Data
	}

	var odds models.ReferenceOdds
	if err := json.Unmarshal(payload, &odds); err != nil {
		return nil, err
	}
	if len(odds.Periods) == 0 {
		return nil, fmt.Errorf("no periods in response")
	}

	return &odds, nil
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody])
	}
	return string(body)
}
