// Package errkind defines the failure taxonomy shared by the acquisition pipeline.
//
// Components wrap one of the sentinel errors with fmt.Errorf("...: %w", ...) so callers
// can classify a failure with errors.Is or KindOf without losing the original cause.
package errkind

import "errors"

var (
	// ErrInvalidGeometry is returned for out-of-range coordinates, radius or lookback.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrCatalogUnavailable is returned when the catalog cannot be reached, rejects the
	// request, times out, or returns an undecodable response.
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrExtractionFailed is returned when pixel data cannot be fetched or clipped.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrDegenerateRaster is returned when an extracted raster carries no signal.
	ErrDegenerateRaster = errors.New("degenerate raster")

	// ErrNoScene is returned when no candidate scene contains the sample point.
	ErrNoScene = errors.New("no scene found")
)

// Kind names a failure class.
type Kind string

const (
	KindNone               Kind = ""
	KindInvalidGeometry    Kind = "invalid-geometry"
	KindCatalogUnavailable Kind = "catalog-unavailable"
	KindExtractionFailed   Kind = "extraction-failed"
	KindDegenerateRaster   Kind = "degenerate-raster"
	KindNoScene            Kind = "no-scene-found"
	KindUnknown            Kind = "unknown"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidGeometry, KindInvalidGeometry},
	{ErrCatalogUnavailable, KindCatalogUnavailable},
	{ErrExtractionFailed, KindExtractionFailed},
	{ErrDegenerateRaster, KindDegenerateRaster},
	{ErrNoScene, KindNoScene},
}

// KindOf classifies err. A nil error has KindNone; an error that wraps none of the
// sentinels is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}
