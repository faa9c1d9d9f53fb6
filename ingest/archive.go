// Package ingest retrieves a GTFS archive and parses its tables into a
// gtfs.Feed.
package ingest

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/dzfranklin/gtfsreload/gtfs"
	"github.com/dzfranklin/gtfsreload/record"
)

var ErrMissingTable = errors.New("missing table")

// ReadArchive parses the ten tables of the zip archive at archivePath. Files
// may sit at the archive root or inside a single top-level directory.
func ReadArchive(archivePath string) (*gtfs.Feed, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()
	return readFeed(&zr.Reader)
}

func readFeed(zr *zip.Reader) (*gtfs.Feed, error) {
	files := make(map[string]*zip.File)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Base(f.Name)
		if _, ok := files[name]; !ok || !strings.Contains(f.Name, "/") {
			files[name] = f
		}
	}

	feed := &gtfs.Feed{}
	var err error
	if feed.Agencies, err = readTable[gtfs.Agency](files, "agency.txt", gtfs.Agencies); err != nil {
		return nil, err
	}
	if feed.Routes, err = readTable[gtfs.Route](files, "routes.txt", gtfs.Routes); err != nil {
		return nil, err
	}
	if feed.Stops, err = readTable[gtfs.Stop](files, "stops.txt", gtfs.Stops); err != nil {
		return nil, err
	}
	if feed.Calendars, err = readTable[gtfs.Calendar](files, "calendar.txt", gtfs.Calendars); err != nil {
		return nil, err
	}
	if feed.CalendarDates, err = readTable[gtfs.CalendarDate](files, "calendar_dates.txt", gtfs.CalendarDates); err != nil {
		return nil, err
	}
	if feed.Trips, err = readTable[gtfs.Trip](files, "trips.txt", gtfs.Trips); err != nil {
		return nil, err
	}
	if feed.Frequencies, err = readTable[gtfs.Frequency](files, "frequencies.txt", gtfs.Frequencies); err != nil {
		return nil, err
	}
	if feed.Shapes, err = readTable[gtfs.Shape](files, "shapes.txt", gtfs.Shapes); err != nil {
		return nil, err
	}
	if feed.StopTimes, err = readTable[gtfs.StopTime](files, "stop_times.txt", gtfs.StopTimes); err != nil {
		return nil, err
	}
	if feed.Transfers, err = readTable[gtfs.Transfer](files, "transfers.txt", gtfs.Transfers); err != nil {
		return nil, err
	}
	return feed, nil
}

func readTable[T any](files map[string]*zip.File, filename string, mapper *record.Mapper[T]) ([]T, error) {
	f, ok := files[filename]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingTable, filename)
	}
	input, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = input.Close() }()

	rows, err := ParseTable[T](input, mapper.Descriptor())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	slog.Info(fmt.Sprintf("Read %d rows from %s", len(rows), filename))
	return rows, nil
}

// ParseTable reads a CSV table with a header row into records described by
// desc. Columns are matched by name and unknown columns are ignored. An absent
// or empty value is nil for optional fields and "" for text fields; key fields
// and required integers must be present.
func ParseTable[T any](input io.Reader, desc *record.Descriptor) ([]T, error) {
	inputCSV := csv.NewReader(input)
	inputCSV.FieldsPerRecord = -1 // Allow variable numbers of fields
	inputCSV.TrimLeadingSpace = true

	header, err := inputCSV.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty file")
	} else if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	columnIndex := make(map[string]int, len(header))
	for i, column := range header {
		columnIndex[strings.TrimSpace(column)] = i
	}
	positions := make([]int, len(desc.Fields))
	for i, f := range desc.Fields {
		pos, ok := columnIndex[f.Name]
		if !ok {
			pos = -1
		}
		positions[i] = pos
	}

	var out []T
	for {
		row, err := inputCSV.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, err
		}
		line, _ := inputCSV.FieldPos(0)

		values := make([]any, len(desc.Fields))
		for i, f := range desc.Fields {
			var cell string
			if pos := positions[i]; pos >= 0 && pos < len(row) {
				cell = strings.TrimSpace(row[pos])
			}
			switch {
			case cell != "":
				values[i] = cell
			case f.Primary:
				return nil, fmt.Errorf("line %d: missing value for %s", line, f.Name)
			case f.Type.Optional():
				values[i] = nil
			case f.Type == record.Text:
				values[i] = ""
			default:
				return nil, fmt.Errorf("line %d: missing value for %s", line, f.Name)
			}
		}

		var rec T
		if err := desc.Scan(&rec, values); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
