package gtfsreload

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"

	"github.com/dzfranklin/gtfsreload/gtfs"
	"github.com/dzfranklin/gtfsreload/record"
)

// Export writes the ten tables in conn to a GTFS zip at outputPath, one file
// per table with columns in field order. NULL is written as an empty value.
func Export(ctx context.Context, conn record.Conn, outputPath string) error {
	if outputPath == "" {
		panic("Missing outputPath")
	}

	slog.Info(fmt.Sprintf("Exporting to %s", outputPath))

	outputF, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	outputZip := zip.NewWriter(outputF)
	defer func() {
		_ = outputZip.Close()
		_ = outputF.Close()
	}()

	tables := []tableExporter{
		exportTable("agency.txt", gtfs.Agencies),
		exportTable("routes.txt", gtfs.Routes),
		exportTable("stops.txt", gtfs.Stops),
		exportTable("calendar.txt", gtfs.Calendars),
		exportTable("calendar_dates.txt", gtfs.CalendarDates),
		exportTable("trips.txt", gtfs.Trips),
		exportTable("frequencies.txt", gtfs.Frequencies),
		exportTable("shapes.txt", gtfs.Shapes),
		exportTable("stop_times.txt", gtfs.StopTimes),
		exportTable("transfers.txt", gtfs.Transfers),
	}
	for _, export := range tables {
		if err := export(ctx, conn, outputZip); err != nil {
			return err
		}
	}

	if err := outputZip.Close(); err != nil {
		return err
	}
	if err := outputF.Close(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("Wrote %s", outputPath))
	return nil
}

type tableExporter func(ctx context.Context, conn record.Conn, outputZip *zip.Writer) error

func exportTable[T any](outputName string, m *record.Mapper[T]) tableExporter {
	return func(ctx context.Context, conn record.Conn, outputZip *zip.Writer) error {
		desc := m.Descriptor()
		recs, err := m.All(ctx, conn)
		if err != nil {
			return err
		}

		outputF, err := outputZip.Create(outputName)
		if err != nil {
			return err
		}
		outputCSV := csv.NewWriter(outputF)

		if err := outputCSV.Write(desc.Columns()); err != nil {
			return err
		}
		row := make([]string, len(desc.Fields))
		for i := range recs {
			for j, v := range desc.Values(&recs[i]) {
				row[j] = text(v)
			}
			if err := outputCSV.Write(row); err != nil {
				return err
			}
		}
		slog.Info(fmt.Sprintf("Wrote %d rows to %s", len(recs), outputName))

		outputCSV.Flush()
		return outputCSV.Error()
	}
}
