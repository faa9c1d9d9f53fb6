package gtfsreload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dzfranklin/gtfsreload/gtfs"
	"github.com/dzfranklin/gtfsreload/record"
)

var ErrInvalidInput = errors.New("invalid input")

// auditRefs are checked in addition to every declared reference. They point at
// columns that are not unique on their own and so cannot be foreign keys.
var auditRefs = []struct {
	desc   *record.Descriptor
	column string
	ref    record.Reference
}{
	{gtfs.Trips.Descriptor(), "shape_id", record.Reference{Table: "gtfs_shape", Column: "shape_id"}},
}

// Validate reports every row whose reference column holds a value that is
// absent from the referenced table. It returns ErrInvalidInput alongside the
// issues when there are any.
func Validate(ctx context.Context, conn record.Conn, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	v := &validator{conn: conn, logger: logger}

	logger.Info("Validating")

	for _, table := range gtfs.Tables {
		for _, f := range table.Desc.References() {
			if err := v.validateRef(ctx, table.Desc, f.Name, *f.Ref); err != nil {
				return nil, err
			}
		}
	}
	for _, r := range auditRefs {
		if err := v.validateRef(ctx, r.desc, r.column, r.ref); err != nil {
			return nil, err
		}
	}

	if len(v.issues) > 0 {
		return v.issues, fmt.Errorf("%w: %d issue(s)", ErrInvalidInput, len(v.issues))
	}
	return nil, nil
}

type validator struct {
	conn   record.Conn
	logger *slog.Logger
	issues []string
}

func (v *validator) append(msg string, args ...any) {
	issue := fmt.Sprintf(msg, args...)
	v.logger.Warn(issue)
	v.issues = append(v.issues, issue)
}

func (v *validator) validateRef(ctx context.Context, desc *record.Descriptor, column string, ref record.Reference) error {
	keys := desc.PrimaryFields()
	selected := make([]string, 0, len(keys)+1)
	selected = append(selected, column)
	for _, k := range keys {
		selected = append(selected, k.Name)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL AND %s NOT IN (SELECT %s FROM %s)",
		strings.Join(selected, ", "), desc.Table, column, column, ref.Column, ref.Table)

	err := v.conn.Query(ctx, query, nil, func(row []any) error {
		var key []string
		for i, k := range keys {
			key = append(key, fmt.Sprintf("%s: %s", k.Name, text(row[i+1])))
		}
		v.append("%s in %s is not a valid %s [%s]", text(row[0]), desc.Table, column, strings.Join(key, ", "))
		return nil
	})
	if err != nil {
		return fmt.Errorf("validate %s.%s: %w", desc.Table, column, err)
	}
	return nil
}

func text(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
