package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"stopsearch/internal/types"

	"github.com/klauspost/compress/gzip"
)

// Client talks to the public stop-and-search data API. All calls go
// through the resilient Transport; responses are negotiated gzip and
// decoded transparently.
type Client struct {
	transport *Transport
	baseURL   string
	logger    *slog.Logger
}

// ClientConfig holds the settings for creating a Client.
type ClientConfig struct {
	BaseURL   string
	UserAgent string
	Retry     RetryPolicy
	Logger    *slog.Logger
}

// NewClient creates a Client over the given http client.
func NewClient(httpClient *http.Client, cfg ClientConfig, opts ...TransportOption) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		transport: NewTransport(httpClient, "police-data-api", cfg.Retry, cfg.UserAgent, opts...),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		logger:    logger,
	}
}

// availabilityEntry is one element of the crimes-street-dates response.
// Only the date field matters here.
type availabilityEntry struct {
	Date string `json:"date"`
}

// LatestPeriod resolves the most recent reporting period for which data
// exists. The metadata endpoint lists periods newest first; the first
// entry's "YYYY-MM" date is the answer.
func (c *Client) LatestPeriod(ctx context.Context) (types.Period, error) {
	var entries []availabilityEntry
	if err := c.getJSON(ctx, "/crimes-street-dates", &entries); err != nil {
		return types.Period{}, err
	}
	if len(entries) == 0 {
		return types.Period{}, types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			"availability endpoint returned no periods",
			nil,
		)
	}
	p, err := types.ParsePeriod(entries[0].Date)
	if err != nil {
		return types.Period{}, types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("availability endpoint returned malformed date %q", entries[0].Date),
			err,
		)
	}
	return p, nil
}

// ListForces returns the administrative forces known to the API,
// projected down to name and identifier, in upstream order.
func (c *Client) ListForces(ctx context.Context) ([]types.Force, error) {
	var forces []types.Force
	if err := c.getJSON(ctx, "/forces", &forces); err != nil {
		return nil, err
	}
	return forces, nil
}

// StopsByArea fetches the stop-and-search incidents inside the serialized
// polygon for one reporting period. An empty result is a valid outcome
// for months or areas with no incidents, not an error.
func (c *Client) StopsByArea(ctx context.Context, poly, date string) ([]types.IncidentRecord, error) {
	form := url.Values{
		"poly": {poly},
		"date": {date},
	}
	var records []types.IncidentRecord
	if err := c.postForm(ctx, "/stops-street", form, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// StopsByForce fetches the incidents recorded by one force for one
// reporting period. Same response shape and semantics as StopsByArea.
func (c *Client) StopsByForce(ctx context.Context, force, date string) ([]types.IncidentRecord, error) {
	form := url.Values{
		"force": {force},
		"date":  {date},
	}
	var records []types.IncidentRecord
	if err := c.postForm(ctx, "/stops-force", form, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build request", err)
	}
	return c.execute(req, out)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.execute(req, out)
}

func (c *Client) execute(req *http.Request, out any) error {
	// Negotiate gzip ourselves; setting the header disables net/http's
	// automatic decompression, so decodeBody handles both cases.
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.transport.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.DebugContext(req.Context(), "upstream response",
		"path", req.URL.Path,
		"status", resp.StatusCode,
	)

	if resp.StatusCode != http.StatusOK {
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, req.URL.Path),
			nil,
		)
	}

	body, err := decodeBody(resp)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "failed to read response body", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("failed to decode response from %s", req.URL.Path),
			err,
		)
	}
	return nil
}

// decodeBody reads the response body, decompressing when the upstream
// honored the gzip negotiation.
func decodeBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(reader)
}
