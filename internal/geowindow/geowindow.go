// Package geowindow computes the spatial and temporal search windows around a sample.
package geowindow

import (
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/robert-malhotra/scene-chipper/internal/errkind"
)

// DateLayout is the ISO calendar date layout used for search windows.
const DateLayout = "2006-01-02"

// cardinal bearings in degrees clockwise from north.
var cardinalBearings = [4]float64{0, 90, 180, 270}

// BoundingBox is a WGS84 extent in decimal degrees.
type BoundingBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// BoundingBoxAround returns the extent of the four points reached by travelling
// radiusMeters from (lat, lon) along the cardinal bearings.
func BoundingBoxAround(lat, lon, radiusMeters float64) (BoundingBox, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return BoundingBox{}, fmt.Errorf("latitude %v outside [-90, 90]: %w", lat, errkind.ErrInvalidGeometry)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return BoundingBox{}, fmt.Errorf("longitude %v outside [-180, 180]: %w", lon, errkind.ErrInvalidGeometry)
	}
	if math.IsNaN(radiusMeters) || radiusMeters <= 0 {
		return BoundingBox{}, fmt.Errorf("radius %v must be positive: %w", radiusMeters, errkind.ErrInvalidGeometry)
	}

	origin := orb.Point{lon, lat}
	points := make(orb.MultiPoint, 0, len(cardinalBearings))
	for _, bearing := range cardinalBearings {
		points = append(points, geo.PointAtBearingAndDistance(origin, bearing, radiusMeters))
	}
	b := points.Bound()
	east, west := points[1], points[3]

	// Longitudes are taken as offsets from the origin so a box touching the antimeridian
	// is clipped at ±180 instead of spilling past it or spanning the globe.
	box := BoundingBox{
		MinLon: math.Max(-180, lon+lonOffset(west.Lon(), lon)),
		MinLat: b.Min.Lat(),
		MaxLon: math.Min(180, lon+lonOffset(east.Lon(), lon)),
		MaxLat: b.Max.Lat(),
	}

	// An arc over a pole covers every longitude up to that pole.
	arc := radiusMeters / orb.EarthRadius * 180 / math.Pi
	if lat+arc >= 90 {
		box.MaxLat, box.MinLon, box.MaxLon = 90, -180, 180
	}
	if lat-arc <= -90 {
		box.MinLat, box.MinLon, box.MaxLon = -90, -180, 180
	}

	if !box.Valid() {
		return BoundingBox{}, fmt.Errorf("degenerate extent %s around (%v, %v): %w", box, lat, lon, errkind.ErrInvalidGeometry)
	}
	return box, nil
}

// lonOffset returns p - origin in degrees, normalised to (-180, 180].
func lonOffset(p, origin float64) float64 {
	d := p - origin
	for d > 180 {
		d -= 360
	}
	for d <= -180 {
		d += 360
	}
	return d
}

// NewBoundingBox builds a box from [west, south, east, north] values.
func NewBoundingBox(bbox []float64) (BoundingBox, error) {
	if len(bbox) != 4 && len(bbox) != 6 {
		return BoundingBox{}, fmt.Errorf("bbox must have 4 or 6 values, got %d: %w", len(bbox), errkind.ErrInvalidGeometry)
	}
	// 3D bbox: [west, south, minz, east, north, maxz]
	if len(bbox) == 6 {
		bbox = []float64{bbox[0], bbox[1], bbox[3], bbox[4]}
	}
	box := BoundingBox{MinLon: bbox[0], MinLat: bbox[1], MaxLon: bbox[2], MaxLat: bbox[3]}
	if !box.Valid() {
		return BoundingBox{}, fmt.Errorf("bbox %s is not ordered west<east, south<north: %w", box, errkind.ErrInvalidGeometry)
	}
	return box, nil
}

// Valid reports whether min < max on both axes.
func (b BoundingBox) Valid() bool {
	return b.MinLon < b.MaxLon && b.MinLat < b.MaxLat
}

// Contains reports whether the point lies strictly inside the box.
func (b BoundingBox) Contains(lon, lat float64) bool {
	return b.MinLon < lon && lon < b.MaxLon && b.MinLat < lat && lat < b.MaxLat
}

// Center returns the midpoint of the box as (lon, lat).
func (b BoundingBox) Center() (float64, float64) {
	return (b.MinLon + b.MaxLon) / 2, (b.MinLat + b.MaxLat) / 2
}

// Slice returns the box as [west, south, east, north].
func (b BoundingBox) Slice() []float64 {
	return []float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat}
}

// Bound returns the box as an orb.Bound.
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinLon, b.MinLat}, Max: orb.Point{b.MaxLon, b.MaxLat}}
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%g,%g,%g,%g]", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

// SearchWindow is an inclusive calendar date range.
type SearchWindow struct {
	Start time.Time
	End   time.Time
}

// NewSearchWindow returns the window ending on target and starting lookbackDays before it.
// Times are truncated to the UTC calendar date.
func NewSearchWindow(target time.Time, lookbackDays int) (SearchWindow, error) {
	if lookbackDays < 0 {
		return SearchWindow{}, fmt.Errorf("lookback %d days must not be negative: %w", lookbackDays, errkind.ErrInvalidGeometry)
	}
	end := Date(target)
	return SearchWindow{
		Start: end.AddDate(0, 0, -lookbackDays),
		End:   end,
	}, nil
}

// Days returns the number of calendar days between Start and End.
func (w SearchWindow) Days() int {
	return int(w.End.Sub(w.Start).Hours() / 24)
}

// String formats the window as a STAC datetime interval "start/end".
func (w SearchWindow) String() string {
	return w.Start.Format(DateLayout) + "/" + w.End.Format(DateLayout)
}

// Interval formats the window as an RFC 3339 interval covering every instant of both
// boundary dates, from Start at midnight to the last second of End.
func (w SearchWindow) Interval() string {
	end := w.End.AddDate(0, 0, 1).Add(-time.Second)
	return w.Start.Format(time.RFC3339) + "/" + end.Format(time.RFC3339)
}

// Date truncates t to midnight UTC of its calendar date.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
