package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	gostac "github.com/planetlabs/go-stac"

	"github.com/robert-malhotra/scene-chipper/internal/geowindow"
	"github.com/robert-malhotra/scene-chipper/internal/scene"
	"github.com/robert-malhotra/scene-chipper/internal/stac"
	"github.com/robert-malhotra/scene-chipper/pkg/geojson"
)

var (
	// ErrMissingID is returned for features without an id.
	ErrMissingID = errors.New("item has no id")

	// ErrMissingDatetime is returned for features without a parseable capture time.
	ErrMissingDatetime = errors.New("item has no datetime")

	// ErrMissingFootprint is returned for features with neither a bbox nor a geometry.
	ErrMissingFootprint = errors.New("item has no footprint")
)

// TranslateFeature converts a raw search feature to a STAC Item. Items without a bbox get
// one computed from their geometry, and items without a geometry get the bbox polygon.
func TranslateFeature(f *stac.Feature) (*stac.Item, error) {
	if f.ID == "" {
		return nil, ErrMissingID
	}

	item := stac.NewItem(f.ID, f.Collection, stac.Version)
	for k, v := range f.Properties {
		item.Properties[k] = v
	}

	hasGeometry := len(f.Geometry) > 0 && string(f.Geometry) != "null"
	switch {
	case len(f.BBox) >= 4:
		item.Bbox = footprintBBox(f.BBox)
		if hasGeometry {
			item.Geometry = f.Geometry
		} else {
			poly, err := geojson.NewPolygonFromBBox(item.Bbox)
			if err != nil {
				return nil, fmt.Errorf("item %s: %w", f.ID, err)
			}
			item.Geometry = poly
		}
	case hasGeometry:
		bbox, err := geojson.ComputeBBox(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w: %w", f.ID, ErrMissingFootprint, err)
		}
		item.Bbox = bbox
		item.Geometry = f.Geometry
	default:
		return nil, fmt.Errorf("item %s: %w", f.ID, ErrMissingFootprint)
	}

	for key, a := range f.Assets {
		if a.Href == "" {
			continue
		}
		item.Assets[key] = &gostac.Asset{
			Href:  a.Href,
			Title: a.Title,
			Type:  a.Type,
			Roles: a.Roles,
		}
	}

	return item, nil
}

// CandidateFromItem extracts the fields used for scene selection from a STAC Item.
func CandidateFromItem(item *stac.Item) (scene.Candidate, error) {
	captured, err := itemDatetime(item.Properties)
	if err != nil {
		return scene.Candidate{}, fmt.Errorf("item %s: %w", item.Id, err)
	}

	bbox, err := geowindow.NewBoundingBox(item.Bbox)
	if err != nil {
		return scene.Candidate{}, fmt.Errorf("item %s: %w", item.Id, err)
	}

	platform, _ := item.Properties["platform"].(string)

	cand := scene.Candidate{
		ID:         item.Id,
		Collection: item.Collection,
		Platform:   strings.ToLower(platform),
		Captured:   captured,
		BBox:       bbox,
		Assets:     make(map[string]string, len(item.Assets)),
	}
	if cc, ok := item.Properties["eo:cloud_cover"].(float64); ok {
		cand.CloudCover = &cc
	}
	for key, a := range item.Assets {
		cand.Assets[key] = a.Href
	}
	return cand, nil
}

// itemDatetime returns "datetime", falling back to "start_datetime" when it is null.
func itemDatetime(props map[string]any) (time.Time, error) {
	for _, key := range []string{"datetime", "start_datetime"} {
		s, ok := props[key].(string)
		if !ok || s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q: %v", ErrMissingDatetime, s, err)
		}
		return t.UTC(), nil
	}
	return time.Time{}, ErrMissingDatetime
}

// footprintBBox reduces a 2D or 3D bbox to [west, south, east, north].
func footprintBBox(b []float64) []float64 {
	if len(b) == 6 {
		return []float64{b[0], b[1], b[3], b[4]}
	}
	return []float64{b[0], b[1], b[2], b[3]}
}
