// Package extract clips, normalizes and validates the pixel data of a selected scene.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robert-malhotra/scene-chipper/internal/errkind"
	"github.com/robert-malhotra/scene-chipper/internal/geowindow"
	"github.com/robert-malhotra/scene-chipper/internal/raster"
	"github.com/robert-malhotra/scene-chipper/internal/scene"
)

// DefaultSize is the default width and height in pixels of an extracted chip.
const DefaultSize = 256

// Extractor produces an 8-bit RGB raster of a scene clipped to a bounding box.
type Extractor interface {
	Extract(ctx context.Context, sel scene.Selected, box geowindow.BoundingBox) (raster.Raster, error)
}

// BandReader reads the part of a remote raster asset inside a WGS84 box, resampled to
// width x height pixels. It returns one row-major plane per band of the asset.
// Nodata pixels are reported as NaN.
type BandReader interface {
	ReadWindow(ctx context.Context, href string, box geowindow.BoundingBox, width, height int) ([][]float64, error)
}

// Registry dispatches extraction on the family of the selected scene.
type Registry struct {
	extractors map[scene.Family]Extractor
}

// NewRegistry returns a registry with the default extractor for every known family.
func NewRegistry(reader BandReader, size int) *Registry {
	return &Registry{
		extractors: map[scene.Family]Extractor{
			scene.FamilyHighResolution:     NewHighResolution(reader, size),
			scene.FamilyModerateResolution: NewModerateResolution(reader, size),
		},
	}
}

// Register replaces the extractor used for a family.
func (r *Registry) Register(f scene.Family, e Extractor) {
	r.extractors[f] = e
}

// Extract implements Extractor.
func (r *Registry) Extract(ctx context.Context, sel scene.Selected, box geowindow.BoundingBox) (raster.Raster, error) {
	e, ok := r.extractors[sel.Family]
	if !ok {
		return raster.Raster{}, fmt.Errorf("no extractor for %s scene %s: %w", sel.Family, sel.ID, errkind.ErrExtractionFailed)
	}
	return e.Extract(ctx, sel, box)
}

// HighResolution extracts from a pre-rendered 8-bit true-color asset. Values are
// copied without rescaling.
type HighResolution struct {
	reader   BandReader
	size     int
	assetKey string
	logger   *slog.Logger
}

// NewHighResolution creates an extractor reading the "visual" asset.
func NewHighResolution(reader BandReader, size int) *HighResolution {
	if size <= 0 {
		size = DefaultSize
	}
	return &HighResolution{reader: reader, size: size, assetKey: "visual", logger: slog.Default()}
}

// WithAssetKey overrides the true-color asset key.
func (h *HighResolution) WithAssetKey(key string) *HighResolution {
	h.assetKey = key
	return h
}

// WithLogger sets a custom logger.
func (h *HighResolution) WithLogger(logger *slog.Logger) *HighResolution {
	h.logger = logger
	return h
}

// Extract implements Extractor.
func (h *HighResolution) Extract(ctx context.Context, sel scene.Selected, box geowindow.BoundingBox) (raster.Raster, error) {
	href, ok := sel.Asset(h.assetKey)
	if !ok {
		return raster.Raster{}, fmt.Errorf("scene %s has no %q asset: %w", sel.ID, h.assetKey, errkind.ErrExtractionFailed)
	}

	planes, err := h.reader.ReadWindow(ctx, href, box, h.size, h.size)
	if err != nil {
		return raster.Raster{}, wrapRead(sel.ID, h.assetKey, err)
	}
	if len(planes) < raster.Channels {
		return raster.Raster{}, fmt.Errorf("asset %q of %s has %d bands, want %d: %w", h.assetKey, sel.ID, len(planes), raster.Channels, errkind.ErrExtractionFailed)
	}

	h.logger.DebugContext(ctx, "clipped true-color asset",
		slog.String("scene", sel.ID),
		slog.Int("bands", len(planes)),
	)

	r, err := raster.FromPlanes(planes[:raster.Channels], h.size, h.size)
	if err != nil {
		return raster.Raster{}, fmt.Errorf("scene %s: %v: %w", sel.ID, err, errkind.ErrExtractionFailed)
	}
	return checkSignal(sel.ID, r)
}

// ModerateResolution extracts from separate red, green and blue surface-reflectance
// assets and rescales the combined array to the full 8-bit range.
type ModerateResolution struct {
	reader    BandReader
	size      int
	assetKeys [raster.Channels]string
	logger    *slog.Logger
}

// NewModerateResolution creates an extractor reading the "red", "green" and "blue" assets.
func NewModerateResolution(reader BandReader, size int) *ModerateResolution {
	if size <= 0 {
		size = DefaultSize
	}
	return &ModerateResolution{
		reader:    reader,
		size:      size,
		assetKeys: [raster.Channels]string{"red", "green", "blue"},
		logger:    slog.Default(),
	}
}

// WithAssetKeys overrides the red, green and blue asset keys.
func (m *ModerateResolution) WithAssetKeys(red, green, blue string) *ModerateResolution {
	m.assetKeys = [raster.Channels]string{red, green, blue}
	return m
}

// WithLogger sets a custom logger.
func (m *ModerateResolution) WithLogger(logger *slog.Logger) *ModerateResolution {
	m.logger = logger
	return m
}

// Extract implements Extractor.
func (m *ModerateResolution) Extract(ctx context.Context, sel scene.Selected, box geowindow.BoundingBox) (raster.Raster, error) {
	planes := make([][]float64, raster.Channels)
	for c, key := range m.assetKeys {
		href, ok := sel.Asset(key)
		if !ok {
			return raster.Raster{}, fmt.Errorf("scene %s has no %q asset: %w", sel.ID, key, errkind.ErrExtractionFailed)
		}
		bands, err := m.reader.ReadWindow(ctx, href, box, m.size, m.size)
		if err != nil {
			return raster.Raster{}, wrapRead(sel.ID, key, err)
		}
		if len(bands) != 1 {
			return raster.Raster{}, fmt.Errorf("asset %q of %s has %d bands, want 1: %w", key, sel.ID, len(bands), errkind.ErrExtractionFailed)
		}
		if c > 0 && len(bands[0]) != len(planes[0]) {
			return raster.Raster{}, fmt.Errorf("asset %q of %s has %d pixels, %q has %d: %w",
				key, sel.ID, len(bands[0]), m.assetKeys[0], len(planes[0]), errkind.ErrExtractionFailed)
		}
		planes[c] = bands[0]
	}

	m.logger.DebugContext(ctx, "clipped reflectance bands", slog.String("scene", sel.ID))

	r, err := raster.Normalize(planes, m.size, m.size)
	if err != nil {
		return raster.Raster{}, fmt.Errorf("scene %s: %v: %w", sel.ID, err, errkind.ErrExtractionFailed)
	}
	return checkSignal(sel.ID, r)
}

func wrapRead(sceneID, key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("reading %q of %s: %w: %w", key, sceneID, errkind.ErrExtractionFailed, err)
	}
	if errors.Is(err, errkind.ErrExtractionFailed) {
		return fmt.Errorf("reading %q of %s: %w", key, sceneID, err)
	}
	return fmt.Errorf("reading %q of %s: %v: %w", key, sceneID, err, errkind.ErrExtractionFailed)
}

func checkSignal(sceneID string, r raster.Raster) (raster.Raster, error) {
	if r.Degenerate() {
		return r, fmt.Errorf("scene %s produced an all-zero raster: %w", sceneID, errkind.ErrDegenerateRaster)
	}
	return r, nil
}
