// Package scene holds catalog scene records and the best-scene selection algorithm.
package scene

import (
	"strings"
	"time"

	"github.com/robert-malhotra/scene-chipper/internal/geowindow"
)

// Family groups platforms by sensor resolution and processing characteristics.
type Family int

const (
	// FamilyUnknown is any platform not present in the lookup table.
	FamilyUnknown Family = iota
	// FamilyHighResolution is high-resolution multispectral imagery with a pre-rendered
	// 8-bit true-color product (Sentinel-2).
	FamilyHighResolution
	// FamilyModerateResolution is moderate-resolution multispectral imagery delivered as
	// separate surface-reflectance bands (Landsat).
	FamilyModerateResolution
)

func (f Family) String() string {
	switch f {
	case FamilyHighResolution:
		return "high-resolution"
	case FamilyModerateResolution:
		return "moderate-resolution"
	default:
		return "unknown"
	}
}

// platformFamilies maps lowercase STAC platform names to their family.
var platformFamilies = map[string]Family{
	"sentinel-2a": FamilyHighResolution,
	"sentinel-2b": FamilyHighResolution,
	"sentinel-2c": FamilyHighResolution,
	"landsat-4":   FamilyModerateResolution,
	"landsat-5":   FamilyModerateResolution,
	"landsat-7":   FamilyModerateResolution,
	"landsat-8":   FamilyModerateResolution,
	"landsat-9":   FamilyModerateResolution,
}

// FamilyOf returns the family of a platform name. Matching is case-insensitive and
// tolerates underscores or spaces in place of hyphens ("Sentinel-2A", "LANDSAT_8").
func FamilyOf(platform string) Family {
	key := strings.ToLower(strings.TrimSpace(platform))
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
	return platformFamilies[key]
}

// Platforms returns every platform name in the lookup table for the given family.
func Platforms(f Family) []string {
	var out []string
	for p, fam := range platformFamilies {
		if fam == f {
			out = append(out, p)
		}
	}
	return out
}

// Candidate is one catalog record for a single capture event.
type Candidate struct {
	ID         string
	Collection string
	Platform   string
	Captured   time.Time
	BBox       geowindow.BoundingBox
	CloudCover *float64

	// Assets maps asset keys ("visual", "red", ...) to fetchable, already signed hrefs.
	Assets map[string]string
}

// Family returns the candidate's provider family.
func (c Candidate) Family() Family {
	return FamilyOf(c.Platform)
}

// Asset returns the href for an asset key.
func (c Candidate) Asset(key string) (string, bool) {
	href, ok := c.Assets[key]
	return href, ok && href != ""
}

// Selected is the scene chosen for a sample.
type Selected struct {
	Candidate
	Family Family
}
