// Package gdalio reads clipped windows of remote cloud-optimized rasters with GDAL.
package gdalio

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/airbusgeo/godal"

	"github.com/robert-malhotra/scene-chipper/internal/errkind"
	"github.com/robert-malhotra/scene-chipper/internal/geowindow"
)

var registerOnce sync.Once

// Reader implements extract.BandReader on top of GDAL's /vsicurl/ driver and gdalwarp.
type Reader struct {
	timeout   time.Duration
	resampler string
	logger    *slog.Logger
}

// NewReader registers the GDAL drivers and returns a reader whose HTTP reads give up after
// timeout.
func NewReader(timeout time.Duration) *Reader {
	registerOnce.Do(godal.RegisterAll)
	return &Reader{timeout: timeout, resampler: "bilinear", logger: slog.Default()}
}

// WithResampler sets the gdalwarp resampling method (near, bilinear, cubic, ...).
func (r *Reader) WithResampler(method string) *Reader {
	r.resampler = method
	return r
}

// WithLogger sets a custom logger.
func (r *Reader) WithLogger(logger *slog.Logger) *Reader {
	r.logger = logger
	return r
}

// ReadWindow reprojects the part of href inside box to EPSG:4326 at width x height pixels
// and returns every band as a row-major plane. Nodata pixels are NaN.
func (r *Reader) ReadWindow(ctx context.Context, href string, box geowindow.BoundingBox, width, height int) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d: %w", width, height, errkind.ErrExtractionFailed)
	}

	start := time.Now()
	src, err := godal.Open(vsiPath(href), godal.ConfigOption(r.configOptions()...))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v: %w", redact(href), err, errkind.ErrExtractionFailed)
	}
	defer src.Close()

	clip, err := src.Warp("", WarpSwitches(box, width, height, r.resampler))
	if err != nil {
		return nil, fmt.Errorf("failed to clip %s: %v: %w", redact(href), err, errkind.ErrExtractionFailed)
	}
	defer clip.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st := clip.Structure()
	if st.SizeX != width || st.SizeY != height {
		return nil, fmt.Errorf("clip of %s is %dx%d, want %dx%d: %w", redact(href), st.SizeX, st.SizeY, width, height, errkind.ErrExtractionFailed)
	}

	bands := clip.Bands()
	planes := make([][]float64, 0, len(bands))
	for i, band := range bands {
		buf := make([]float64, width*height)
		if err := band.Read(0, 0, buf, width, height); err != nil {
			return nil, fmt.Errorf("failed to read band %d of %s: %v: %w", i+1, redact(href), err, errkind.ErrExtractionFailed)
		}
		if nodata, ok := band.NoData(); ok {
			maskNoData(buf, nodata)
		}
		planes = append(planes, buf)
	}

	r.logger.DebugContext(ctx, "read raster window",
		slog.String("href", redact(href)),
		slog.Int("bands", len(planes)),
		slog.Duration("duration", time.Since(start)),
	)
	return planes, nil
}

func (r *Reader) configOptions() []string {
	opts := []string{
		"GDAL_DISABLE_READDIR_ON_OPEN=EMPTY_DIR",
		"CPL_VSIL_CURL_ALLOWED_EXTENSIONS=.tif,.TIF,.tiff",
	}
	if r.timeout > 0 {
		opts = append(opts, "GDAL_HTTP_TIMEOUT="+strconv.Itoa(int(math.Ceil(r.timeout.Seconds()))))
	}
	return opts
}

// WarpSwitches returns the gdalwarp arguments that clip to box in WGS84 at a fixed
// output size in memory.
func WarpSwitches(box geowindow.BoundingBox, width, height int, resampler string) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	if resampler == "" {
		resampler = "bilinear"
	}
	return []string{
		"-of", "MEM",
		"-t_srs", "EPSG:4326",
		"-te", f(box.MinLon), f(box.MinLat), f(box.MaxLon), f(box.MaxLat),
		"-te_srs", "EPSG:4326",
		"-ts", strconv.Itoa(width), strconv.Itoa(height),
		"-r", resampler,
	}
}

func vsiPath(href string) string {
	if strings.HasPrefix(href, "/vsi") {
		return href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return "/vsicurl/" + href
	}
	return href
}

func maskNoData(buf []float64, nodata float64) {
	for i, v := range buf {
		if v == nodata {
			buf[i] = math.NaN()
		}
	}
}

// redact strips the query string, which carries signing tokens.
func redact(href string) string {
	if i := strings.IndexByte(href, '?'); i >= 0 {
		return href[:i]
	}
	return href
}
