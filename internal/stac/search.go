package stac

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FilterLangCQL2JSON is the filter-lang value for CQL2 JSON filters.
const FilterLangCQL2JSON = "cql2-json"

// SearchRequest is a STAC Item Search POST body.
type SearchRequest struct {
	BBox        []float64 `json:"bbox,omitempty"`
	DateTime    string    `json:"datetime,omitempty"`
	Collections []string  `json:"collections,omitempty"`
	Limit       int       `json:"limit,omitempty"`

	// Filter extension
	Filter     any    `json:"filter,omitempty"`
	FilterLang string `json:"filter-lang,omitempty"`

	// Token is set from next links on servers that paginate with a body token.
	Token string `json:"token,omitempty"`
}

// Validate checks the request before it is sent.
func (req *SearchRequest) Validate() error {
	if req == nil {
		return fmt.Errorf("search request cannot be nil")
	}
	if len(req.BBox) > 0 {
		if err := ValidateBBox(req.BBox); err != nil {
			return fmt.Errorf("invalid bbox: %w", err)
		}
	}
	if req.DateTime != "" {
		if err := ValidateDatetime(req.DateTime); err != nil {
			return fmt.Errorf("invalid datetime: %w", err)
		}
	}
	if req.Limit < 0 {
		return fmt.Errorf("limit must be non-negative, got %d", req.Limit)
	}
	for i, coll := range req.Collections {
		if strings.TrimSpace(coll) == "" {
			return fmt.Errorf("collection at index %d cannot be empty", i)
		}
	}
	return nil
}

// Merge returns a copy of the request body with the fields of a next link body applied.
func (req *SearchRequest) Merge(body map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}
	for k, v := range body {
		out[k] = v
	}
	return out, nil
}

// ValidateBBox validates a bounding box
func ValidateBBox(bbox []float64) error {
	if len(bbox) != 4 {
		return fmt.Errorf("bbox must have 4 coordinates, got %d", len(bbox))
	}
	west, south, east, north := bbox[0], bbox[1], bbox[2], bbox[3]
	if west < -180 || west > 180 || east < -180 || east > 180 {
		return fmt.Errorf("longitude must be between -180 and 180")
	}
	if south < -90 || south > 90 || north < -90 || north > 90 {
		return fmt.Errorf("latitude must be between -90 and 90")
	}
	if south > north {
		return fmt.Errorf("south latitude (%f) must be less than north latitude (%f)", south, north)
	}
	return nil
}

// ValidateDatetime validates a datetime or "start/end" interval. Open ends ("..") and
// full dates or RFC 3339 timestamps are accepted.
func ValidateDatetime(datetime string) error {
	parts := strings.Split(datetime, "/")
	if len(parts) > 2 {
		return fmt.Errorf("datetime interval must have at most 2 parts")
	}
	for _, part := range parts {
		if part == ".." || part == "" {
			continue
		}
		if _, err := time.Parse(time.RFC3339, part); err == nil {
			continue
		}
		if _, err := time.Parse("2006-01-02", part); err != nil {
			return fmt.Errorf("invalid datetime %q", part)
		}
	}
	return nil
}
