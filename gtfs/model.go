// Package gtfs holds the ten static GTFS record types loaded into the store,
// their table descriptors, and in-memory feed operations.
package gtfs

import "github.com/dzfranklin/gtfsreload/record"

type Agency struct {
	AgencyName     *string `db:"agency_name,primary"`
	AgencyURL      string  `db:"agency_url"`
	AgencyTimezone string  `db:"agency_timezone"`
	AgencyLang     string  `db:"agency_lang"`
	AgencyPhone    string  `db:"agency_phone"`
	AgencyFareURL  string  `db:"agency_fare_url"`
}

// Route has no agency column; single-agency feeds reference the agency implicitly.
type Route struct {
	RouteID        *string `db:"route_id,primary"`
	RouteShortName *string `db:"route_short_name"`
	RouteLongName  *string `db:"route_long_name"`
	RouteType      uint8   `db:"route_type"`
	RouteURL       *string `db:"route_url"`
	RouteColor     *string `db:"route_color"`
	RouteTextColor *string `db:"route_text_color"`
}

type Stop struct {
	StopID             *string `db:"stop_id,primary"`
	StopCode           *string `db:"stop_code"`
	StopName           string  `db:"stop_name"`
	StopDesc           *string `db:"stop_desc"`
	StopLat            string  `db:"stop_lat"`
	StopLon            string  `db:"stop_lon"`
	LocationType       uint8   `db:"location_type"`
	ParentStation      *string `db:"parent_station,ref=gtfs_stop.stop_id"`
	WheelchairBoarding uint8   `db:"wheelchair_boarding"`
}

type Calendar struct {
	ServiceID *string `db:"service_id,primary"`
	Monday    uint8   `db:"monday"`
	Tuesday   uint8   `db:"tuesday"`
	Wednesday uint8   `db:"wednesday"`
	Thursday  uint8   `db:"thursday"`
	Friday    uint8   `db:"friday"`
	Saturday  uint8   `db:"saturday"`
	Sunday    uint8   `db:"sunday"`
	StartDate string  `db:"start_date"`
	EndDate   string  `db:"end_date"`
}

type CalendarDate struct {
	ServiceID     *string `db:"service_id,primary,ref=gtfs_calendar.service_id"`
	Date          *string `db:"date,primary"`
	ExceptionType uint8   `db:"exception_type"`
}

// Trip.ShapeID points at gtfs_shape but is not declared as a reference:
// shape_id alone is not a key of gtfs_shape.
type Trip struct {
	RouteID              string  `db:"route_id,ref=gtfs_route.route_id"`
	ServiceID            string  `db:"service_id,ref=gtfs_calendar.service_id"`
	TripID               *string `db:"trip_id,primary"`
	DirectionID          *uint8  `db:"direction_id"`
	BlockID              *string `db:"block_id"`
	ShapeID              *string `db:"shape_id"`
	WheelchairAccessible *uint8  `db:"wheelchair_accessible"`
	SchdTripID           *string `db:"schd_trip_id"`
}

type Frequency struct {
	TripID      *string `db:"trip_id,primary,ref=gtfs_trip.trip_id"`
	StartTime   *string `db:"start_time,primary"`
	EndTime     string  `db:"end_time"`
	HeadwaySecs uint64  `db:"headway_secs"`
}

type Shape struct {
	ShapeID           *string `db:"shape_id,primary"`
	ShapePtLat        string  `db:"shape_pt_lat"`
	ShapePtLon        string  `db:"shape_pt_lon"`
	ShapePtSequence   *uint64 `db:"shape_pt_sequence,primary"`
	ShapeDistTraveled *uint64 `db:"shape_dist_traveled"`
}

type StopTime struct {
	TripID            *string `db:"trip_id,primary,ref=gtfs_trip.trip_id"`
	ArrivalTime       *string `db:"arrival_time"`
	DepartureTime     *string `db:"departure_time"`
	StopID            string  `db:"stop_id,ref=gtfs_stop.stop_id"`
	StopSequence      *uint64 `db:"stop_sequence,primary"`
	StopHeadsign      *string `db:"stop_headsign"`
	PickupType        *uint8  `db:"pickup_type"`
	ShapeDistTraveled *uint64 `db:"shape_dist_traveled"`
}

type Transfer struct {
	FromStopID   *string `db:"from_stop_id,primary,ref=gtfs_stop.stop_id"`
	ToStopID     *string `db:"to_stop_id,primary,ref=gtfs_stop.stop_id"`
	TransferType uint8   `db:"transfer_type"`
}

var (
	Agencies      = record.NewMapper[Agency](record.MustDescribe[Agency]("gtfs_agency"))
	Routes        = record.NewMapper[Route](record.MustDescribe[Route]("gtfs_route"))
	Stops         = record.NewMapper[Stop](record.MustDescribe[Stop]("gtfs_stop"))
	Calendars     = record.NewMapper[Calendar](record.MustDescribe[Calendar]("gtfs_calendar"))
	CalendarDates = record.NewMapper[CalendarDate](record.MustDescribe[CalendarDate]("gtfs_calendar_date"))
	Trips         = record.NewMapper[Trip](record.MustDescribe[Trip]("gtfs_trip"))
	Frequencies   = record.NewMapper[Frequency](record.MustDescribe[Frequency]("gtfs_frequency"))
	Shapes        = record.NewMapper[Shape](record.MustDescribe[Shape]("gtfs_shape"))
	StopTimes     = record.NewMapper[StopTime](record.MustDescribe[StopTime]("gtfs_stop_time"))
	Transfers     = record.NewMapper[Transfer](record.MustDescribe[Transfer]("gtfs_transfer"))
)
