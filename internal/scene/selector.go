package scene

import (
	"time"

	"github.com/robert-malhotra/scene-chipper/internal/geowindow"
)

// Select picks the best scene for a point and target date.
//
// Candidates whose footprint does not strictly contain the point are discarded first,
// along with unknown platforms and captures dated after target. If any remaining
// candidate is high-resolution, only high-resolution candidates are kept. The candidate
// whose capture date is closest before (or on) target wins; ties go to the earlier
// candidate in iteration order. Dates are compared at calendar-day granularity. The
// second return value is false when nothing qualifies.
func Select(candidates []Candidate, lon, lat float64, target time.Time) (Selected, bool) {
	day := geowindow.Date(target)

	eligible := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Family() == FamilyUnknown {
			continue
		}
		if !c.BBox.Contains(lon, lat) {
			continue
		}
		if geowindow.Date(c.Captured).After(day) {
			continue
		}
		eligible = append(eligible, c)
	}
	if len(eligible) == 0 {
		return Selected{}, false
	}

	family := FamilyModerateResolution
	for _, c := range eligible {
		if c.Family() == FamilyHighResolution {
			family = FamilyHighResolution
			break
		}
	}

	var (
		best     Candidate
		bestGap  time.Duration
		haveBest bool
	)
	for _, c := range eligible {
		if c.Family() != family {
			continue
		}
		gap := day.Sub(geowindow.Date(c.Captured))
		if !haveBest || gap < bestGap {
			best, bestGap, haveBest = c, gap, true
		}
	}

	return Selected{Candidate: best, Family: family}, true
}
