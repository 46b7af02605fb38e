package catalog

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/robert-malhotra/scene-chipper/internal/stac"
)

func TestTranslateFeature_GeometryOnly(t *testing.T) {
	f := &stac.Feature{
		ID:         "LC08_L2SP_021033_20160823",
		Collection: "landsat-c2-l2",
		Geometry:   json.RawMessage(`{"type":"Polygon","coordinates":[[[-87,38],[-85,38],[-85,40],[-87,40],[-87,38]]]}`),
		Properties: map[string]any{
			"datetime":       nil,
			"start_datetime": "2016-08-23T16:12:07Z",
			"platform":       "LANDSAT_8",
		},
		Assets: map[string]stac.FeatureAsset{
			"red":       {Href: "https://blob/red.tif"},
			"thumbnail": {Href: ""},
		},
	}

	item, err := TranslateFeature(f)
	if err != nil {
		t.Fatalf("TranslateFeature() error = %v", err)
	}
	if len(item.Bbox) != 4 || item.Bbox[0] != -87 || item.Bbox[3] != 40 {
		t.Errorf("Bbox = %v", item.Bbox)
	}
	if _, ok := item.Assets["thumbnail"]; ok {
		t.Error("assets without href should be dropped")
	}

	cand, err := CandidateFromItem(item)
	if err != nil {
		t.Fatalf("CandidateFromItem() error = %v", err)
	}
	if cand.Platform != "landsat_8" {
		t.Errorf("Platform = %s", cand.Platform)
	}
	if !cand.Captured.Equal(time.Date(2016, 8, 23, 16, 12, 7, 0, time.UTC)) {
		t.Errorf("Captured = %s", cand.Captured)
	}
	if cand.CloudCover != nil {
		t.Errorf("CloudCover = %v, want nil", *cand.CloudCover)
	}
}

func TestTranslateFeature_BBox3D(t *testing.T) {
	f := &stac.Feature{
		ID:         "x",
		BBox:       []float64{-1, -2, 0, 1, 2, 100},
		Properties: map[string]any{"datetime": "2020-01-01T00:00:00Z"},
	}
	item, err := TranslateFeature(f)
	if err != nil {
		t.Fatalf("TranslateFeature() error = %v", err)
	}
	if item.Bbox[2] != 1 || item.Bbox[3] != 2 {
		t.Errorf("Bbox = %v, want [-1 -2 1 2]", item.Bbox)
	}
	if item.Geometry == nil {
		t.Error("geometry should be derived from bbox")
	}
}

func TestTranslateFeature_Errors(t *testing.T) {
	if _, err := TranslateFeature(&stac.Feature{}); !errors.Is(err, ErrMissingID) {
		t.Errorf("error = %v, want ErrMissingID", err)
	}
	if _, err := TranslateFeature(&stac.Feature{ID: "x"}); !errors.Is(err, ErrMissingFootprint) {
		t.Errorf("error = %v, want ErrMissingFootprint", err)
	}

	item, err := TranslateFeature(&stac.Feature{
		ID:         "x",
		BBox:       []float64{0, 0, 1, 1},
		Properties: map[string]any{"datetime": "yesterday"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := CandidateFromItem(item); !errors.Is(err, ErrMissingDatetime) {
		t.Errorf("error = %v, want ErrMissingDatetime", err)
	}
}
