// Package geojson provides helpers for the GeoJSON footprints of catalog items.
package geojson

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbjson "github.com/paulmach/orb/geojson"
)

// Parse decodes a GeoJSON geometry object.
func Parse(raw json.RawMessage) (orb.Geometry, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("geometry is empty")
	}
	g, err := orbjson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal geometry: %w", err)
	}
	if g.Geometry() == nil {
		return nil, fmt.Errorf("unsupported geometry type: %s", g.Type)
	}
	return g.Geometry(), nil
}

// ComputeBBox computes the bounding box of a GeoJSON geometry.
// Returns [west, south, east, north].
func ComputeBBox(raw json.RawMessage) ([]float64, error) {
	g, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	b := g.Bound()
	for _, v := range []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("failed to compute bounding box: no valid coordinates found")
		}
	}
	return []float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}, nil
}

// NewPolygonFromBBox creates a polygon geometry from a bounding box.
// bbox should be [west, south, east, north].
func NewPolygonFromBBox(bbox []float64) (json.RawMessage, error) {
	if len(bbox) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values [west, south, east, north], got %d", len(bbox))
	}
	b := orb.Bound{Min: orb.Point{bbox[0], bbox[1]}, Max: orb.Point{bbox[2], bbox[3]}}

	data, err := orbjson.NewGeometry(b.ToPolygon()).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal polygon: %w", err)
	}
	return data, nil
}
