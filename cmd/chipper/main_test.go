package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/scene-chipper/internal/config"
	"github.com/robert-malhotra/scene-chipper/internal/errkind"
	"github.com/robert-malhotra/scene-chipper/internal/geowindow"
	"github.com/robert-malhotra/scene-chipper/internal/pipeline"
	"github.com/robert-malhotra/scene-chipper/internal/raster"
	"github.com/robert-malhotra/scene-chipper/internal/scene"
	"github.com/robert-malhotra/scene-chipper/internal/store"
)

func testApp(t *testing.T) *app {
	t.Helper()
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("LOG_LEVEL", "error")
	cfg, err := config.Load()
	require.NoError(t, err)
	a, err := newApp(cfg)
	require.NoError(t, err)
	return a
}

func TestNewApp_UnknownSearchCollection(t *testing.T) {
	t.Setenv("SEARCH_COLLECTIONS", "sentinel-2-l2a,modis-09a1")
	cfg, err := config.Load()
	require.NoError(t, err)

	_, err = newApp(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "modis-09a1")
}

func TestPipelineConfig(t *testing.T) {
	t.Setenv("SEARCH_RADIUS_METERS", "500")
	t.Setenv("EXTRACT_RADIUS_METERS", "1200")
	t.Setenv("PIPELINE_WORKERS", "7")
	a := testApp(t)

	pc := a.pipelineConfig()
	assert.Equal(t, 500.0, pc.SearchRadiusMeters)
	assert.Equal(t, 1200.0, pc.ExtractRadiusMeters)
	assert.Equal(t, 15, pc.LookbackDays)
	assert.Equal(t, 7, pc.Workers)
	assert.Equal(t, []string{"sentinel-2-l2a", "landsat-c2-l2"}, pc.Collections)
	assert.Equal(t, []string{"sentinel-2a", "sentinel-2b", "landsat-8"}, pc.Platforms)
	assert.NoError(t, pc.Validate())
}

func TestNewCatalog(t *testing.T) {
	t.Setenv("SIGNER_TYPE", "none")
	a := testApp(t)

	c := a.newCatalog()
	assert.NotEmpty(t, c.Name())
}

type planeReader struct {
	hrefs []string
}

func (p *planeReader) ReadWindow(_ context.Context, href string, _ geowindow.BoundingBox, width, height int) ([][]float64, error) {
	p.hrefs = append(p.hrefs, href)
	plane := make([]float64, width*height)
	for i := range plane {
		plane[i] = float64(i%200 + 1)
	}
	if strings.HasSuffix(href, "visual.tif") {
		return [][]float64{plane, plane, plane}, nil
	}
	return [][]float64{plane}, nil
}

func TestNewExtractor_UsesCollectionAssetKeys(t *testing.T) {
	t.Setenv("EXTRACT_CHIP_SIZE", "8")
	a := testApp(t)
	reader := &planeReader{}
	ext := a.newExtractor(reader)

	box := geowindow.BoundingBox{MinLon: -121.52, MinLat: 36.55, MaxLon: -121.50, MaxLat: 36.57}

	s2 := scene.Selected{
		Candidate: scene.Candidate{ID: "S2", Platform: "sentinel-2a", Assets: map[string]string{"visual": "https://x/visual.tif"}},
		Family:    scene.FamilyHighResolution,
	}
	r, err := ext.Extract(context.Background(), s2, box)
	require.NoError(t, err)
	assert.Equal(t, 8, r.Width)
	assert.Equal(t, 8, r.Height)

	landsat := scene.Selected{
		Candidate: scene.Candidate{ID: "LC08", Platform: "landsat-8", Assets: map[string]string{
			"red": "https://x/red.tif", "green": "https://x/green.tif", "blue": "https://x/blue.tif",
		}},
		Family: scene.FamilyModerateResolution,
	}
	_, err = ext.Extract(context.Background(), landsat, box)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://x/visual.tif", "https://x/red.tif", "https://x/green.tif", "https://x/blue.tif",
	}, reader.hrefs)
}

func TestPrintSummary(t *testing.T) {
	s := &pipeline.Summary{
		RunID:     "run-1",
		Total:     5,
		Persisted: 1,
		Skipped:   1,
		Failed:    3,
		Failures: []pipeline.Failure{
			{SampleID: "aabn", Kind: errkind.KindNoScene, Reason: "no scene"},
			{SampleID: "aabo", Kind: errkind.KindCatalogUnavailable, Reason: "status 503"},
			{SampleID: "aabp", Kind: errkind.KindNoScene, Reason: "no scene"},
		},
		Outcomes: map[string]pipeline.Outcome{},
	}

	var text bytes.Buffer
	require.NoError(t, printSummary(&text, s, false))
	out := text.String()
	assert.Contains(t, out, "Persisted:  1")
	assert.Contains(t, out, "aabn [no-scene-found] no scene")
	assert.Regexp(t, `catalog-unavailable:\s+1\n`, out)
	assert.Regexp(t, `no-scene-found:\s+2\n`, out)
	assert.Less(t, strings.Index(out, "catalog-unavailable:"), strings.Index(out, "no-scene-found:"))

	var js bytes.Buffer
	require.NoError(t, printSummary(&js, s, true))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Equal(t, float64(3), decoded["failed"])
}

func TestScrubCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OUTPUT_DIR", dir)
	t.Setenv("LOG_LEVEL", "error")

	fs, err := store.NewFileStore(dir)
	require.NoError(t, err)
	_, err = fs.Save("black", raster.New(2, 2))
	require.NoError(t, err)
	good := raster.New(2, 2)
	good.Set(1, 0, 0, 9)
	_, err = fs.Save("good", good)
	require.NoError(t, err)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"scrub", "--dry-run"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Would remove: 1")
	_, err = os.Stat(filepath.Join(dir, "black.png"))
	assert.NoError(t, err)

	out.Reset()
	scrubFlags.dryRun = false
	rootCmd.SetArgs([]string{"scrub"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Removed: 1")
	_, err = os.Stat(filepath.Join(dir, "black.png"))
	assert.True(t, os.IsNotExist(err))

	ids, err := fs.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, ids)
}

func TestScrubCommand_PushesMetrics(t *testing.T) {
	var path string
	var body []byte
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ = io.ReadAll(r.Body)
	}))
	defer gateway.Close()

	dir := t.TempDir()
	t.Setenv("OUTPUT_DIR", dir)
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("METRICS_PUSHGATEWAY_URL", gateway.URL)

	fs, err := store.NewFileStore(dir)
	require.NoError(t, err)
	_, err = fs.Save("black", raster.New(2, 2))
	require.NoError(t, err)

	scrubFlags.dryRun = false
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"scrub"})
	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, "/metrics/job/scene_chipper/command/scrub", path)
	assert.Contains(t, string(body), "scene_chipper_scrub_removed_total")
	assert.Contains(t, string(body), "scene_chipper_scrub_scanned_total")
}

func TestPushMetrics_Disabled(t *testing.T) {
	a := testApp(t)
	require.Empty(t, a.cfg.Metrics.PushgatewayURL)
	a.pushMetrics(context.Background(), "run")
}

func TestSetupLogger(t *testing.T) {
	logger := setupLogger("warn", "text")
	assert.False(t, logger.Enabled(context.Background(), -4))
	assert.True(t, logger.Enabled(context.Background(), 4))

	logger = setupLogger("bogus", "json")
	assert.True(t, logger.Enabled(context.Background(), 0))
}

func TestRunCommand_RequiresSamples(t *testing.T) {
	rootCmd.SetArgs([]string{"run"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "samples")
}
