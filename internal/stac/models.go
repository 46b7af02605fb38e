// Package stac provides STAC API Item Search types, wrapping planetlabs/go-stac
// for core types and adding the client-side response envelope.
package stac

import (
	"encoding/json"

	gostac "github.com/planetlabs/go-stac"
)

// Re-export core types from planetlabs/go-stac for convenience
type (
	Item  = gostac.Item
	Asset = gostac.Asset
	Link  = gostac.Link
)

// Version is the STAC version stamped on translated items.
const Version = "1.0.0"

// RelNext is the link relation of the following Item Search page.
const RelNext = "next"

// ItemCollection is an Item Search response page (GeoJSON FeatureCollection).
// Features are kept in their raw form so unknown extensions never fail a whole page.
type ItemCollection struct {
	Type           string       `json:"type"`
	Features       []Feature    `json:"features"`
	Links          []SearchLink `json:"links"`
	NumberMatched  *int         `json:"numberMatched,omitempty"`
	NumberReturned int          `json:"numberReturned"`
	Context        *Context     `json:"context,omitempty"`
}

// Context provides additional metadata about the response (STAC Context extension)
type Context struct {
	Returned int  `json:"returned"`
	Limit    int  `json:"limit,omitempty"`
	Matched  *int `json:"matched,omitempty"`
}

// Feature is a single STAC Item as returned by the catalog.
type Feature struct {
	Type       string                  `json:"type"`
	ID         string                  `json:"id"`
	Collection string                  `json:"collection"`
	Geometry   json.RawMessage         `json:"geometry"`
	BBox       []float64               `json:"bbox,omitempty"`
	Properties map[string]any          `json:"properties"`
	Assets     map[string]FeatureAsset `json:"assets"`
}

// FeatureAsset is the subset of asset fields read from the catalog.
type FeatureAsset struct {
	Href  string   `json:"href"`
	Type  string   `json:"type,omitempty"`
	Title string   `json:"title,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// SearchLink is a link in a search response. Item Search servers may describe the next
// page as a POST with a body to merge into the original request.
type SearchLink struct {
	Rel    string         `json:"rel"`
	Href   string         `json:"href"`
	Type   string         `json:"type,omitempty"`
	Method string         `json:"method,omitempty"`
	Body   map[string]any `json:"body,omitempty"`
	Merge  bool           `json:"merge,omitempty"`
}

// NextLink returns the rel=next link of the page, if any.
func (ic *ItemCollection) NextLink() (SearchLink, bool) {
	for _, l := range ic.Links {
		if l.Rel == RelNext && l.Href != "" {
			return l, true
		}
	}
	return SearchLink{}, false
}

// NewItem creates a new STAC Item with the given ID and collection.
func NewItem(id, collection, version string) *gostac.Item {
	return &gostac.Item{
		Version:    version,
		Id:         id,
		Collection: collection,
		Properties: make(map[string]any),
		Assets:     make(map[string]*gostac.Asset),
		Links:      make([]*gostac.Link, 0),
	}
}
