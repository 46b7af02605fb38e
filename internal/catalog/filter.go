package catalog

import (
	"github.com/planetlabs/go-ogc/filter"
)

// Queryable property names used in search filters.
const (
	PropertyCloudCover = "eo:cloud_cover"
	PropertyPlatform   = "platform"
)

// BuildFilter returns the CQL2 filter for a query, or nil when the query places no
// restriction on cloud cover or platform.
func BuildFilter(q Query) *filter.Filter {
	var args []filter.BooleanExpression

	if q.MaxCloudCover >= 0 && q.MaxCloudCover < 100 {
		args = append(args, &filter.Comparison{
			Name:  filter.LessThanOrEquals,
			Left:  &filter.Property{Name: PropertyCloudCover},
			Right: &filter.Number{Value: q.MaxCloudCover},
		})
	}

	if len(q.Platforms) > 0 {
		platforms := make([]filter.BooleanExpression, 0, len(q.Platforms))
		for _, p := range q.Platforms {
			// Catalogs disagree on casing ("Sentinel-2A" vs "sentinel-2a").
			platforms = append(platforms, &filter.Comparison{
				Name:  filter.Equals,
				Left:  &filter.CaseInsensitive{Value: &filter.Property{Name: PropertyPlatform}},
				Right: &filter.CaseInsensitive{Value: &filter.String{Value: p}},
			})
		}
		if len(platforms) == 1 {
			args = append(args, platforms[0])
		} else {
			args = append(args, &filter.Or{Args: platforms})
		}
	}

	switch len(args) {
	case 0:
		return nil
	case 1:
		return &filter.Filter{Expression: args[0]}
	default:
		return &filter.Filter{Expression: &filter.And{Args: args}}
	}
}
