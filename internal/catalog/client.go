// Package catalog provides a client for STAC API Item Search catalogs.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/robert-malhotra/scene-chipper/internal/errkind"
	"github.com/robert-malhotra/scene-chipper/internal/geowindow"
	"github.com/robert-malhotra/scene-chipper/internal/scene"
	"github.com/robert-malhotra/scene-chipper/internal/stac"
)

const (
	// DefaultBaseURL is the Microsoft Planetary Computer STAC API.
	DefaultBaseURL = "https://planetarycomputer.microsoft.com/api/stac/v1"

	// DefaultTimeout bounds a single search call including every page.
	DefaultTimeout = 30 * time.Second

	// DefaultPageSize is the default number of items requested per page.
	DefaultPageSize = 100

	// DefaultMaxPages bounds how many next links are followed.
	DefaultMaxPages = 10

	userAgent = "scene-chipper/1.0"
)

// Client searches a catalog for scenes.
type Client interface {
	Search(ctx context.Context, q Query) ([]scene.Candidate, error)
	Name() string
}

// Query describes one spatio-temporal search across several collections.
type Query struct {
	BBox        geowindow.BoundingBox
	Window      geowindow.SearchWindow
	Collections []string

	// Platforms restricts results to these platform names; empty means any.
	Platforms []string

	// MaxCloudCover in percent. Values outside [0, 100) disable the filter.
	MaxCloudCover float64

	// Limit is the page size; zero uses DefaultPageSize.
	Limit int
}

// SearchRequest converts the query into a STAC Item Search body.
func (q Query) SearchRequest() *stac.SearchRequest {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	req := &stac.SearchRequest{
		BBox:        q.BBox.Slice(),
		DateTime:    q.Window.Interval(),
		Collections: q.Collections,
		Limit:       limit,
	}
	if f := BuildFilter(q); f != nil {
		req.Filter = f
		req.FilterLang = stac.FilterLangCQL2JSON
	}
	return req
}

// STACClient implements Client against a STAC API.
type STACClient struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	maxPages   int
	limiter    *rate.Limiter
	signer     Signer
	logger     *slog.Logger
}

// NewSTACClient creates a new STAC API client.
func NewSTACClient(baseURL string, timeout time.Duration) *STACClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &STACClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout:  timeout,
		maxPages: DefaultMaxPages,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		signer:   NoopSigner{},
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger for the client.
func (c *STACClient) WithLogger(logger *slog.Logger) *STACClient {
	c.logger = logger
	return c
}

// WithSigner sets the signer applied to every asset href.
func (c *STACClient) WithSigner(s Signer) *STACClient {
	c.signer = s
	return c
}

// WithRateLimit limits requests to rps per second with the given burst.
// A non-positive rps removes the limit.
func (c *STACClient) WithRateLimit(rps float64, burst int) *STACClient {
	if burst < 1 {
		burst = 1
	}
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, burst)
	} else {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return c
}

// WithMaxPages sets how many pages a single search may read.
func (c *STACClient) WithMaxPages(n int) *STACClient {
	if n > 0 {
		c.maxPages = n
	}
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *STACClient) WithHTTPClient(hc *http.Client) *STACClient {
	c.httpClient = hc
	return c
}

// Name implements Client.
func (c *STACClient) Name() string {
	return c.baseURL
}

// Search runs an Item Search and returns every matching candidate across pages.
// Zero matches is not an error. Any transport, status, decoding or signing failure
// wraps errkind.ErrCatalogUnavailable.
func (c *STACClient) Search(ctx context.Context, q Query) ([]scene.Candidate, error) {
	req := q.SearchRequest()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search: %v: %w", err, errkind.ErrInvalidGeometry)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body any = req
	searchURL := c.baseURL + "/search"
	method := http.MethodPost

	var candidates []scene.Candidate
	for page := 1; ; page++ {
		ic, err := c.fetchPage(ctx, method, searchURL, body)
		if err != nil {
			return nil, c.unavailable(ctx, err)
		}

		for i := range ic.Features {
			cand, err := c.candidate(ctx, &ic.Features[i])
			if err != nil {
				if errors.Is(err, errkind.ErrCatalogUnavailable) {
					return nil, c.unavailable(ctx, err)
				}
				c.logger.WarnContext(ctx, "skipping item that could not be translated",
					slog.String("item", ic.Features[i].ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			candidates = append(candidates, cand)
		}

		next, ok := ic.NextLink()
		if !ok || len(ic.Features) == 0 {
			break
		}
		if page >= c.maxPages {
			c.logger.WarnContext(ctx, "search truncated at page limit",
				slog.Int("max_pages", c.maxPages),
				slog.Int("returned", len(candidates)),
			)
			break
		}

		searchURL = next.Href
		if strings.EqualFold(next.Method, http.MethodPost) || (next.Method == "" && next.Body != nil) {
			method = http.MethodPost
			if next.Body != nil {
				if next.Merge {
					merged, err := req.Merge(next.Body)
					if err != nil {
						return nil, c.unavailable(ctx, err)
					}
					body = merged
				} else {
					body = next.Body
				}
			}
		} else {
			method = http.MethodGet
			body = nil
		}
	}

	c.logger.DebugContext(ctx, "catalog search completed",
		slog.String("bbox", q.BBox.String()),
		slog.String("datetime", q.Window.String()),
		slog.Int("returned", len(candidates)),
	)
	return candidates, nil
}

func (c *STACClient) fetchPage(ctx context.Context, method, pageURL string, body any) (*stac.ItemCollection, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode search request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	c.logger.DebugContext(ctx, "executing STAC search",
		slog.String("method", method),
		slog.String("url", pageURL),
	)

	req, err := http.NewRequestWithContext(ctx, method, pageURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "STAC API request failed",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("STAC API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.ErrorContext(ctx, "STAC API returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(respBody)),
		)
		return nil, fmt.Errorf("STAC API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var ic stac.ItemCollection
	if err := json.NewDecoder(resp.Body).Decode(&ic); err != nil {
		return nil, fmt.Errorf("failed to decode STAC response: %w", err)
	}
	return &ic, nil
}

// candidate translates a feature and signs its assets.
func (c *STACClient) candidate(ctx context.Context, f *stac.Feature) (scene.Candidate, error) {
	item, err := TranslateFeature(f)
	if err != nil {
		return scene.Candidate{}, err
	}
	for key, asset := range item.Assets {
		signed, err := c.signer.Sign(ctx, item.Collection, asset.Href)
		if err != nil {
			return scene.Candidate{}, fmt.Errorf("signing asset %q of %s: %w", key, item.Id, err)
		}
		asset.Href = signed
	}
	return CandidateFromItem(item)
}

// unavailable wraps err with errkind.ErrCatalogUnavailable unless it already carries it.
func (c *STACClient) unavailable(ctx context.Context, err error) error {
	if errors.Is(err, errkind.ErrCatalogUnavailable) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("search timed out after %s: %w: %w", c.timeout, errkind.ErrCatalogUnavailable, err)
	}
	return fmt.Errorf("%w: %w", errkind.ErrCatalogUnavailable, err)
}
