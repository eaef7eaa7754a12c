// Package itunes fetches album search results and artwork from the iTunes
// Search API. Every failure is a *domain.FetchError; nothing is retried.
package itunes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mmcdole/albumcache/internal/domain"
)

const (
	// DefaultSearchURL is the public iTunes search endpoint
	DefaultSearchURL = "https://itunes.apple.com/search"

	// DefaultMaxBodyBytes caps a response body; artwork is the largest payload
	DefaultMaxBodyBytes int64 = 16 << 20

	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "albumcache/1.0"
)

// Options configures a Client. Zero values select defaults.
type Options struct {
	SearchURL  string
	Country    string // ISO country code, e.g. "us"
	Limit      int    // Max results per search; 0 leaves the server default
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client

	// MaxBodyBytes rejects larger responses; 0 selects DefaultMaxBodyBytes
	MaxBodyBytes int64
}

// ErrResponseTooLarge is wrapped by fetches whose body exceeds MaxBodyBytes
var ErrResponseTooLarge = errors.New("response body too large")

// Client implements domain.AlbumSource against the iTunes Search API
type Client struct {
	searchURL  string
	country    string
	limit      int
	userAgent  string
	maxBody    int64
	httpClient *http.Client
	logger     *slog.Logger
}

var _ domain.AlbumSource = (*Client)(nil)

// NewClient creates a new iTunes client
func NewClient(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SearchURL == "" {
		opts.SearchURL = DefaultSearchURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		searchURL:  opts.SearchURL,
		country:    opts.Country,
		limit:      opts.Limit,
		userAgent:  opts.UserAgent,
		maxBody:    opts.MaxBodyBytes,
		httpClient: httpClient,
		logger:     logger,
	}
}

// SearchAlbums searches album titles matching term.
func (c *Client) SearchAlbums(ctx context.Context, term string) ([]domain.Album, error) {
	reqURL, err := c.buildSearchURL(term)
	if err != nil {
		return nil, &domain.FetchError{Kind: domain.FetchInvalidQuery, Op: "search", Err: err}
	}

	body, err := c.get(ctx, "search", reqURL)
	if err != nil {
		return nil, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Error("JSON parse error", "error", err, "bodyLen", len(body))
		return nil, &domain.FetchError{Kind: domain.FetchDecode, Op: "search", Err: err}
	}

	return MapAlbums(resp.Results), nil
}

// FetchImageBytes downloads the image at rawURL and checks it decodes as an image.
func (c *Client) FetchImageBytes(ctx context.Context, rawURL string) ([]byte, error) {
	if err := validateHTTPURL(rawURL); err != nil {
		return nil, &domain.FetchError{Kind: domain.FetchInvalidQuery, Op: "image", Err: err}
	}

	body, err := c.get(ctx, "image", rawURL)
	if err != nil {
		return nil, err
	}

	if _, err := ValidateImage(body); err != nil {
		return nil, &domain.FetchError{Kind: domain.FetchDecode, Op: "image", Err: err}
	}
	return body, nil
}

// buildSearchURL percent-encodes term (spaces as %20) and adds the album
// filters after any query the configured search URL already carries
func (c *Client) buildSearchURL(term string) (string, error) {
	if strings.TrimSpace(term) == "" {
		return "", domain.ErrEmptyTerm
	}
	if !utf8.ValidString(term) {
		return "", domain.ErrInvalidTerm
	}
	if err := validateHTTPURL(c.searchURL); err != nil {
		return "", err
	}
	base, err := url.Parse(c.searchURL)
	if err != nil {
		return "", err
	}

	filters := url.Values{}
	filters.Set("entity", "album")
	filters.Set("attribute", "albumTerm")
	if c.country != "" {
		filters.Set("country", c.country)
	}
	if c.limit > 0 {
		filters.Set("limit", strconv.Itoa(c.limit))
	}

	escaped := strings.ReplaceAll(url.QueryEscape(term), "+", "%20")
	query := "term=" + escaped + "&" + filters.Encode()
	if base.RawQuery != "" {
		query = base.RawQuery + "&" + query
	}
	base.RawQuery = query
	return base.String(), nil
}

// get performs a GET request and returns the non-empty response body
func (c *Client) get(ctx context.Context, op, reqURL string) ([]byte, error) {
	fetchID := uuid.NewString()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &domain.FetchError{Kind: domain.FetchInvalidQuery, Op: op, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	if op == "search" {
		req.Header.Set("Accept", "application/json")
	}

	c.logger.Debug("itunes request", "op", op, "url", reqURL, "fetch_id", fetchID)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("itunes request failed", "op", op, "error", err, "fetch_id", fetchID)
		return nil, &domain.FetchError{Kind: domain.FetchTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, &domain.FetchError{Kind: domain.FetchTransport, Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if int64(len(body)) > c.maxBody {
		c.logger.Error("itunes response too large", "op", op, "limit", c.maxBody, "fetch_id", fetchID)
		return nil, &domain.FetchError{Kind: domain.FetchTransport, Op: op, Err: fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, c.maxBody)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("itunes request error", "op", op, "status", resp.StatusCode, "fetch_id", fetchID)
		return nil, &domain.FetchError{Kind: domain.FetchTransport, Op: op, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &domain.FetchError{Kind: domain.FetchEmptyResponse, Op: op}
	}

	c.logger.Debug("itunes response", "op", op, "bytes", len(body), "elapsed", time.Since(start), "fetch_id", fetchID)
	return body, nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL has no host")
	}
	return nil
}
