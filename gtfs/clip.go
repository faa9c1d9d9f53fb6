package gtfs

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/tidwall/geojson"
	"github.com/tidwall/geojson/geometry"
)

// ParseClipFeature parses a GeoJSON object to clip a feed to.
func ParseClipFeature(src string) (geojson.Object, error) {
	feature, err := geojson.Parse(src, &geojson.ParseOptions{RequireValid: true})
	if err != nil {
		return nil, fmt.Errorf("parse clip feature: %w", err)
	}
	return feature, nil
}

// Clip returns a copy of the feed reduced to the trips that call at a stop
// inside feature, and to the rows those trips need. Agencies are kept as is.
func (f *Feed) Clip(feature geojson.Object) *Feed {
	slog.Info(fmt.Sprintf("Clipping feed (clip feature has %d points)", feature.NumPoints()))

	inside := make(map[string]bool)
	for _, stop := range f.Stops {
		stopID := deref(stop.StopID)
		lng, err := strconv.ParseFloat(stop.StopLon, 64)
		if err != nil {
			slog.Error("Failed to parse stop_lon", "stop_id", stopID)
			continue
		}
		lat, err := strconv.ParseFloat(stop.StopLat, 64)
		if err != nil {
			slog.Error("Failed to parse stop_lat", "stop_id", stopID)
			continue
		}
		if feature.Contains(geojson.NewPoint(geometry.Point{X: lng, Y: lat})) {
			inside[stopID] = true
		}
	}
	slog.Info(fmt.Sprintf("%d of %d stops are inside", len(inside), len(f.Stops)))

	trips := make(map[string]bool)
	for _, st := range f.StopTimes {
		if inside[st.StopID] {
			trips[deref(st.TripID)] = true
		}
	}

	out := &Feed{Agencies: f.Agencies}

	stops := make(map[string]bool)
	for _, st := range f.StopTimes {
		if trips[deref(st.TripID)] {
			out.StopTimes = append(out.StopTimes, st)
			stops[st.StopID] = true
		}
	}

	routes := make(map[string]bool)
	services := make(map[string]bool)
	shapes := make(map[string]bool)
	for _, trip := range f.Trips {
		if !trips[deref(trip.TripID)] {
			continue
		}
		out.Trips = append(out.Trips, trip)
		routes[trip.RouteID] = true
		services[trip.ServiceID] = true
		if trip.ShapeID != nil {
			shapes[*trip.ShapeID] = true
		}
	}

	parents := make(map[string]bool)
	for _, stop := range f.Stops {
		if stops[deref(stop.StopID)] && stop.ParentStation != nil {
			parents[*stop.ParentStation] = true
		}
	}
	for _, stop := range f.Stops {
		id := deref(stop.StopID)
		if stops[id] || parents[id] {
			out.Stops = append(out.Stops, stop)
		}
	}
	for id := range parents {
		stops[id] = true
	}

	for _, route := range f.Routes {
		if routes[deref(route.RouteID)] {
			out.Routes = append(out.Routes, route)
		}
	}
	for _, cal := range f.Calendars {
		if services[deref(cal.ServiceID)] {
			out.Calendars = append(out.Calendars, cal)
		}
	}
	for _, cd := range f.CalendarDates {
		if services[deref(cd.ServiceID)] {
			out.CalendarDates = append(out.CalendarDates, cd)
		}
	}
	for _, shape := range f.Shapes {
		if shapes[deref(shape.ShapeID)] {
			out.Shapes = append(out.Shapes, shape)
		}
	}
	for _, freq := range f.Frequencies {
		if trips[deref(freq.TripID)] {
			out.Frequencies = append(out.Frequencies, freq)
		}
	}
	for _, tr := range f.Transfers {
		if stops[deref(tr.FromStopID)] && stops[deref(tr.ToStopID)] {
			out.Transfers = append(out.Transfers, tr)
		}
	}

	slog.Info(fmt.Sprintf("Clipped to %d trips, %d stops, %d routes", len(out.Trips), len(out.Stops), len(out.Routes)))
	return out
}
