package record

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

var ErrMissingPrimaryKey = errors.New("missing primary key")

// values returns the bind parameters for fields of the struct v, in order.
// Nil pointers become nil and integers are widened to int64.
func values(v reflect.Value, fields []Field) []any {
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = fieldValue(v.Field(f.index))
	}
	return out
}

func fieldValue(fv reflect.Value) any {
	if fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			return nil
		}
		fv = fv.Elem()
	}
	switch fv.Kind() {
	case reflect.String:
		return fv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(fv.Uint())
	}
	panic("unreachable: field kind " + fv.Kind().String())
}

// keyValues returns the key parameters, or ErrMissingPrimaryKey if any key
// field is nil.
func (d *Descriptor) keyValues(v reflect.Value) ([]any, error) {
	keys := d.PrimaryFields()
	for _, f := range keys {
		if v.Field(f.index).IsNil() {
			return nil, fmt.Errorf("%w: %s.%s", ErrMissingPrimaryKey, d.Table, f.Name)
		}
	}
	return values(v, keys), nil
}

// Values returns the bind parameters of rec in descriptor order.
func (d *Descriptor) Values(rec any) []any {
	v := reflect.Indirect(reflect.ValueOf(rec))
	if v.Type() != d.typ {
		panic(fmt.Sprintf("record: %s descriptor given %s", d.typ, v.Type()))
	}
	return values(v, d.Fields)
}

// assign stores a column value read from the store into field fv.
func assign(fv reflect.Value, f Field, src any) error {
	if src == nil {
		if !f.Type.Optional() {
			return fmt.Errorf("column %s: NULL in non-optional field", f.Name)
		}
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}

	target := fv
	var ptr reflect.Value
	if fv.Kind() == reflect.Pointer {
		ptr = reflect.New(fv.Type().Elem())
		target = ptr.Elem()
	}

	switch target.Kind() {
	case reflect.String:
		switch s := src.(type) {
		case string:
			target.SetString(s)
		case []byte:
			target.SetString(string(s))
		default:
			target.SetString(fmt.Sprint(s))
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt64(src)
		if err != nil {
			return fmt.Errorf("column %s: %w", f.Name, err)
		}
		if target.OverflowInt(n) {
			return fmt.Errorf("column %s: %d overflows %s", f.Name, n, target.Type())
		}
		target.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := toInt64(src)
		if err != nil {
			return fmt.Errorf("column %s: %w", f.Name, err)
		}
		if n < 0 || target.OverflowUint(uint64(n)) {
			return fmt.Errorf("column %s: %d overflows %s", f.Name, n, target.Type())
		}
		target.SetUint(uint64(n))
	default:
		return fmt.Errorf("column %s: unsupported kind %s", f.Name, target.Kind())
	}

	if ptr.IsValid() {
		fv.Set(ptr)
	}
	return nil
}

func toInt64(src any) (int64, error) {
	switch n := src.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", src)
	}
}

// Scan stores row, one value per field in descriptor order, into the struct
// dst points to. String values are parsed for integer fields.
func (d *Descriptor) Scan(dst any, row []any) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.Elem().Type() != d.typ {
		panic(fmt.Sprintf("record: %s descriptor given %T", d.typ, dst))
	}
	return d.scan(v.Elem(), row)
}

func (d *Descriptor) scan(v reflect.Value, row []any) error {
	if len(row) != len(d.Fields) {
		return fmt.Errorf("got %d columns, want %d", len(row), len(d.Fields))
	}
	for i, f := range d.Fields {
		if err := assign(v.Field(f.index), f, row[i]); err != nil {
			return err
		}
	}
	return nil
}
