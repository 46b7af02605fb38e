package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/robert-malhotra/scene-chipper/internal/errkind"
)

// Signer turns a catalog asset href into a fetchable URL.
type Signer interface {
	Sign(ctx context.Context, collection, href string) (string, error)
}

// NoopSigner returns hrefs unchanged.
type NoopSigner struct{}

// Sign implements Signer.
func (NoopSigner) Sign(_ context.Context, _, href string) (string, error) {
	return href, nil
}

// DefaultTokenMargin is how long before expiry a cached token is refreshed.
const DefaultTokenMargin = 5 * time.Minute

// TokenSigner appends short-lived per-collection SAS tokens to asset hrefs.
// Tokens are fetched from GET {tokenURL}/{collection} and cached until shortly before
// they expire. Concurrent misses for one collection share a single token request.
type TokenSigner struct {
	tokenURL   string
	httpClient *http.Client
	tokens     *cache.Cache
	fetches    singleflight.Group
	margin     time.Duration
	logger     *slog.Logger
}

type tokenResponse struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"msft:expiry"`
}

// NewTokenSigner creates a signer against a token endpoint.
func NewTokenSigner(tokenURL string, timeout time.Duration) *TokenSigner {
	return &TokenSigner{
		tokenURL: strings.TrimSuffix(tokenURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		tokens: cache.New(45*time.Minute, 10*time.Minute),
		margin: DefaultTokenMargin,
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the signer.
func (s *TokenSigner) WithLogger(logger *slog.Logger) *TokenSigner {
	s.logger = logger
	return s
}

// WithHTTPClient sets the HTTP client used to fetch tokens.
func (s *TokenSigner) WithHTTPClient(c *http.Client) *TokenSigner {
	s.httpClient = c
	return s
}

// Sign implements Signer.
func (s *TokenSigner) Sign(ctx context.Context, collection, href string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid asset href %q: %v: %w", href, err, errkind.ErrCatalogUnavailable)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return href, nil
	}

	token, err := s.token(ctx, collection)
	if err != nil {
		return "", err
	}

	if u.RawQuery == "" {
		u.RawQuery = token
	} else {
		u.RawQuery += "&" + token
	}
	return u.String(), nil
}

func (s *TokenSigner) token(ctx context.Context, collection string) (string, error) {
	if v, ok := s.tokens.Get(collection); ok {
		return v.(string), nil
	}

	// The shared fetch must not fail because the caller that started it went away.
	ch := s.fetches.DoChan(collection, func() (any, error) {
		if v, ok := s.tokens.Get(collection); ok {
			return v, nil
		}
		return s.fetchToken(context.WithoutCancel(ctx), collection)
	})
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("token request for %s: %v: %w", collection, ctx.Err(), errkind.ErrCatalogUnavailable)
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (s *TokenSigner) fetchToken(ctx context.Context, collection string) (string, error) {
	tokenURL := s.tokenURL + "/" + url.PathEscape(collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.ErrorContext(ctx, "token request failed",
			slog.String("collection", collection),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("token request for %s failed: %v: %w", collection, err, errkind.ErrCatalogUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("token endpoint returned status %d for %s: %s: %w",
			resp.StatusCode, collection, string(body), errkind.ErrCatalogUnavailable)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %v: %w", err, errkind.ErrCatalogUnavailable)
	}
	if tr.Token == "" {
		return "", fmt.Errorf("token endpoint returned an empty token for %s: %w", collection, errkind.ErrCatalogUnavailable)
	}

	ttl := cache.DefaultExpiration
	if !tr.Expiry.IsZero() {
		ttl = time.Until(tr.Expiry) - s.margin
	}
	if ttl != cache.DefaultExpiration && ttl <= 0 {
		// Already inside the refresh margin; use it once without caching.
		return tr.Token, nil
	}
	s.tokens.Set(collection, tr.Token, ttl)

	s.logger.DebugContext(ctx, "fetched signing token",
		slog.String("collection", collection),
		slog.Time("expiry", tr.Expiry),
	)
	return tr.Token, nil
}
