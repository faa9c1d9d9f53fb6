package gtfs

import (
	"context"

	"github.com/dzfranklin/gtfsreload/record"
)

// Table pairs a feed file with the descriptor of the table it loads into.
type Table struct {
	File string
	Desc *record.Descriptor
}

// Tables lists every table parents first: each table comes after all tables
// it can reference.
var Tables = []Table{
	{File: "agency.txt", Desc: Agencies.Descriptor()},
	{File: "shapes.txt", Desc: Shapes.Descriptor()},
	{File: "stops.txt", Desc: Stops.Descriptor()},
	{File: "routes.txt", Desc: Routes.Descriptor()},
	{File: "calendar.txt", Desc: Calendars.Descriptor()},
	{File: "calendar_dates.txt", Desc: CalendarDates.Descriptor()},
	{File: "trips.txt", Desc: Trips.Descriptor()},
	{File: "stop_times.txt", Desc: StopTimes.Descriptor()},
	{File: "frequencies.txt", Desc: Frequencies.Descriptor()},
	{File: "transfers.txt", Desc: Transfers.Descriptor()},
}

// CreateSchema creates any missing table.
func CreateSchema(ctx context.Context, conn record.Conn) error {
	for _, t := range Tables {
		if err := conn.Exec(ctx, t.Desc.CreateTableSQL(conn.Dialect())); err != nil {
			return err
		}
	}
	return nil
}

// Feed is one fully parsed snapshot of the ten tables.
type Feed struct {
	Agencies      []Agency
	Routes        []Route
	Stops         []Stop
	Calendars     []Calendar
	CalendarDates []CalendarDate
	Trips         []Trip
	Frequencies   []Frequency
	Shapes        []Shape
	StopTimes     []StopTime
	Transfers     []Transfer
}

// RowCounts returns the number of rows per table name.
func (f *Feed) RowCounts() map[string]int {
	return map[string]int{
		Agencies.Descriptor().Table:      len(f.Agencies),
		Routes.Descriptor().Table:        len(f.Routes),
		Stops.Descriptor().Table:         len(f.Stops),
		Calendars.Descriptor().Table:     len(f.Calendars),
		CalendarDates.Descriptor().Table: len(f.CalendarDates),
		Trips.Descriptor().Table:         len(f.Trips),
		Frequencies.Descriptor().Table:   len(f.Frequencies),
		Shapes.Descriptor().Table:        len(f.Shapes),
		StopTimes.Descriptor().Table:     len(f.StopTimes),
		Transfers.Descriptor().Table:     len(f.Transfers),
	}
}
