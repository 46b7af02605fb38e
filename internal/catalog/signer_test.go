package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/scene-chipper/internal/errkind"
)

const tokenURL = "https://tokens.example.com/api/sas/v1/token"

func newMockedSigner(t *testing.T) *TokenSigner {
	t.Helper()
	signer := NewTokenSigner(tokenURL, time.Second)
	httpmock.ActivateNonDefault(signer.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return signer
}

func tokenBody(token string, expiry time.Time) string {
	return fmt.Sprintf(`{"msft:expiry": %q, "token": %q}`, expiry.UTC().Format(time.RFC3339), token)
}

func TestTokenSigner_SignsAndCaches(t *testing.T) {
	signer := newMockedSigner(t)
	httpmock.RegisterResponder(http.MethodGet, tokenURL+"/sentinel-2-l2a",
		httpmock.NewStringResponder(http.StatusOK, tokenBody("st=2024&sig=abc", time.Now().Add(time.Hour))))

	signed, err := signer.Sign(context.Background(), "sentinel-2-l2a", "https://blob.example.com/s2/visual.tif")
	require.NoError(t, err)
	assert.Equal(t, "https://blob.example.com/s2/visual.tif?st=2024&sig=abc", signed)

	signed, err = signer.Sign(context.Background(), "sentinel-2-l2a", "https://blob.example.com/s2/B04.tif?x=1")
	require.NoError(t, err)
	assert.Equal(t, "https://blob.example.com/s2/B04.tif?x=1&st=2024&sig=abc", signed)

	assert.Equal(t, 1, httpmock.GetTotalCallCount(), "token should be cached per collection")
}

func TestTokenSigner_ConcurrentMissesShareOneRequest(t *testing.T) {
	signer := newMockedSigner(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	httpmock.RegisterResponder(http.MethodGet, tokenURL+"/sentinel-2-l2a",
		func(*http.Request) (*http.Response, error) {
			once.Do(func() { close(started) })
			<-release
			return httpmock.NewStringResponse(http.StatusOK, tokenBody("sig=shared", time.Now().Add(time.Hour))), nil
		})

	const workers = 8
	signed := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			signed[i], errs[i] = signer.Sign(context.Background(), "sentinel-2-l2a", "https://blob.example.com/s2/visual.tif")
		}()
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "https://blob.example.com/s2/visual.tif?sig=shared", signed[i])
	}
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestTokenSigner_CallerCancelDoesNotAbortSharedFetch(t *testing.T) {
	signer := newMockedSigner(t)
	release := make(chan struct{})
	httpmock.RegisterResponder(http.MethodGet, tokenURL+"/landsat-c2-l2",
		func(*http.Request) (*http.Response, error) {
			<-release
			return httpmock.NewStringResponse(http.StatusOK, tokenBody("sig=lc", time.Now().Add(time.Hour))), nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := signer.Sign(ctx, "landsat-c2-l2", "https://blob.example.com/lc/red.tif")
		done <- err
	}()
	cancel()
	err := <-done
	require.Error(t, err)
	assert.True(t, errors.Is(err, errkind.ErrCatalogUnavailable))

	close(release)
	signed, err := signer.Sign(context.Background(), "landsat-c2-l2", "https://blob.example.com/lc/red.tif")
	require.NoError(t, err)
	assert.Equal(t, "https://blob.example.com/lc/red.tif?sig=lc", signed)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestTokenSigner_ExpiredTokenNotCached(t *testing.T) {
	signer := newMockedSigner(t)
	httpmock.RegisterResponder(http.MethodGet, tokenURL+"/landsat-c2-l2",
		httpmock.NewStringResponder(http.StatusOK, tokenBody("sig=short", time.Now().Add(time.Minute))))

	for i := 0; i < 2; i++ {
		_, err := signer.Sign(context.Background(), "landsat-c2-l2", "https://blob.example.com/lc/red.tif")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestTokenSigner_Failures(t *testing.T) {
	signer := newMockedSigner(t)
	httpmock.RegisterResponder(http.MethodGet, tokenURL+"/forbidden",
		httpmock.NewStringResponder(http.StatusForbidden, "nope"))
	httpmock.RegisterResponder(http.MethodGet, tokenURL+"/garbage",
		httpmock.NewStringResponder(http.StatusOK, "<html>"))
	httpmock.RegisterResponder(http.MethodGet, tokenURL+"/empty",
		httpmock.NewStringResponder(http.StatusOK, `{"token": ""}`))
	httpmock.RegisterResponder(http.MethodGet, tokenURL+"/down",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	for _, collection := range []string{"forbidden", "garbage", "empty", "down"} {
		t.Run(collection, func(t *testing.T) {
			_, err := signer.Sign(context.Background(), collection, "https://blob.example.com/a.tif")
			assert.ErrorIs(t, err, errkind.ErrCatalogUnavailable)
		})
	}
}

func TestTokenSigner_LeavesNonHTTPHrefs(t *testing.T) {
	signer := newMockedSigner(t)

	signed, err := signer.Sign(context.Background(), "sentinel-2-l2a", "s3://bucket/key.tif")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/key.tif", signed)
	assert.Zero(t, httpmock.GetTotalCallCount())
}

func TestNoopSigner(t *testing.T) {
	signed, err := NoopSigner{}.Sign(context.Background(), "c", "https://x/y.tif")
	require.NoError(t, err)
	assert.Equal(t, "https://x/y.tif", signed)
}
