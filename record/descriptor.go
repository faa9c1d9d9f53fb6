// Package record derives table-level data access (fetch-all, save, truncate,
// batch insert) from a Go struct annotated with `db` tags.
package record

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var ErrNoPrimaryKey = errors.New("no primary key field")

type FieldType int

const (
	Text FieldType = iota
	Int
	OptionalText
	OptionalInt
)

func (t FieldType) String() string {
	switch t {
	case Text:
		return "text"
	case Int:
		return "int"
	case OptionalText:
		return "optional text"
	case OptionalInt:
		return "optional int"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

func (t FieldType) Optional() bool {
	return t == OptionalText || t == OptionalInt
}

// Reference names the parent column a field points at.
type Reference struct {
	Table  string
	Column string
}

func (r Reference) String() string {
	return r.Table + "." + r.Column
}

type Field struct {
	Name    string
	Type    FieldType
	Primary bool
	Ref     *Reference

	index int
}

// Descriptor is the immutable table metadata for one record type. Field order
// fixes column order in every generated statement.
type Descriptor struct {
	Table  string
	Fields []Field

	typ reflect.Type
}

// Describe builds the descriptor for T from its `db` struct tags:
//
//	StopID *string `db:"stop_id,primary"`
//	Parent *string `db:"parent_station,ref=gtfs_stop.stop_id"`
//
// Untagged fields and fields tagged "-" are skipped. Primary-key fields must be
// pointers so a record can represent a row whose key is not yet known.
func Describe[T any](table string) (*Descriptor, error) {
	typ := reflect.TypeFor[T]()
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("describe %s: %s is not a struct", table, typ)
	}
	if table == "" {
		return nil, fmt.Errorf("describe %s: missing table name", typ)
	}

	d := &Descriptor{Table: table, typ: typ}
	seen := make(map[string]bool)
	hasPrimary := false
	for i := range typ.NumField() {
		sf := typ.Field(i)
		tag, ok := sf.Tag.Lookup("db")
		if !ok || tag == "-" || !sf.IsExported() {
			continue
		}

		f, err := parseField(sf, tag)
		if err != nil {
			return nil, fmt.Errorf("describe %s: %w", table, err)
		}
		f.index = i
		if seen[f.Name] {
			return nil, fmt.Errorf("describe %s: duplicate column %s", table, f.Name)
		}
		seen[f.Name] = true
		if f.Primary {
			hasPrimary = true
		}
		d.Fields = append(d.Fields, f)
	}

	if !hasPrimary {
		return nil, fmt.Errorf("describe %s: %w", table, ErrNoPrimaryKey)
	}
	return d, nil
}

// MustDescribe is like Describe but panics. Use it for package-level
// descriptors so a malformed record type stops the process at startup.
func MustDescribe[T any](table string) *Descriptor {
	d, err := Describe[T](table)
	if err != nil {
		panic(err)
	}
	return d
}

func parseField(sf reflect.StructField, tag string) (Field, error) {
	parts := strings.Split(tag, ",")
	f := Field{Name: parts[0]}
	if f.Name == "" {
		return f, fmt.Errorf("field %s: empty column name", sf.Name)
	}

	for _, opt := range parts[1:] {
		switch {
		case opt == "primary":
			f.Primary = true
		case strings.HasPrefix(opt, "ref="):
			table, column, ok := strings.Cut(strings.TrimPrefix(opt, "ref="), ".")
			if !ok || table == "" || column == "" {
				return f, fmt.Errorf("field %s: malformed reference %q", sf.Name, opt)
			}
			f.Ref = &Reference{Table: table, Column: column}
		default:
			return f, fmt.Errorf("field %s: unknown option %q", sf.Name, opt)
		}
	}

	typ := sf.Type
	optional := false
	if typ.Kind() == reflect.Pointer {
		optional = true
		typ = typ.Elem()
	}
	switch {
	case typ.Kind() == reflect.String && optional:
		f.Type = OptionalText
	case typ.Kind() == reflect.String:
		f.Type = Text
	case isInteger(typ.Kind()) && optional:
		f.Type = OptionalInt
	case isInteger(typ.Kind()):
		f.Type = Int
	default:
		return f, fmt.Errorf("field %s: unsupported type %s", sf.Name, sf.Type)
	}

	if f.Primary && !optional {
		return f, fmt.Errorf("field %s: primary key must be a pointer, got %s", sf.Name, sf.Type)
	}
	return f, nil
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func (d *Descriptor) PrimaryFields() []Field {
	var out []Field
	for _, f := range d.Fields {
		if f.Primary {
			out = append(out, f)
		}
	}
	return out
}

// DataFields returns the non-key fields in descriptor order.
func (d *Descriptor) DataFields() []Field {
	var out []Field
	for _, f := range d.Fields {
		if !f.Primary {
			out = append(out, f)
		}
	}
	return out
}

func (d *Descriptor) Columns() []string {
	out := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		out[i] = f.Name
	}
	return out
}

// References returns the fields that point at another table.
func (d *Descriptor) References() []Field {
	var out []Field
	for _, f := range d.Fields {
		if f.Ref != nil {
			out = append(out, f)
		}
	}
	return out
}
