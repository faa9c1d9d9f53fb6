package gtfs

import (
	"cmp"
	"slices"
)

// SortStops orders stops without a parent station before stops with one, and
// by stop_id within each group, so a station precedes its platforms when both
// are inserted in sequence. Deeper hierarchies are not ordered by depth.
func SortStops(stops []Stop) {
	slices.SortStableFunc(stops, func(a, b Stop) int {
		if c := cmp.Compare(hasParent(a), hasParent(b)); c != 0 {
			return c
		}
		return cmp.Compare(deref(a.StopID), deref(b.StopID))
	})
}

func hasParent(s Stop) int {
	if s.ParentStation != nil && *s.ParentStation != "" {
		return 1
	}
	return 0
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
