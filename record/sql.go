package record

import (
	"fmt"
	"strings"
)

func names(fields []Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}

// keyCondition renders "k1 = ?n AND k2 = ?n+1" starting at placeholder start.
func (d *Descriptor) keyCondition(dialect *Dialect, start int) string {
	keys := d.PrimaryFields()
	conds := make([]string, len(keys))
	for i, f := range keys {
		conds[i] = fmt.Sprintf("%s = %s", f.Name, dialect.Placeholder(start+i))
	}
	return strings.Join(conds, " AND ")
}

func (d *Descriptor) SelectAllSQL() string {
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(d.Columns(), ", "), d.Table)
}

func (d *Descriptor) SelectByKeySQL(dialect *Dialect) string {
	return fmt.Sprintf("%s WHERE %s", d.SelectAllSQL(), d.keyCondition(dialect, 1))
}

func (d *Descriptor) CountByKeySQL(dialect *Dialect) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", d.Table, d.keyCondition(dialect, 1))
}

func (d *Descriptor) InsertSQL(dialect *Dialect) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Table,
		strings.Join(d.Columns(), ", "),
		strings.Join(dialect.placeholders(1, len(d.Fields)), ", "))
}

// UpdateSQL sets every non-key field and filters on the key. Its parameters
// are the non-key values followed by the key values, both in descriptor order.
// It returns "" when every field is part of the key.
func (d *Descriptor) UpdateSQL(dialect *Dialect) string {
	data := d.DataFields()
	if len(data) == 0 {
		return ""
	}
	sets := make([]string, len(data))
	for i, f := range data {
		sets[i] = fmt.Sprintf("%s = %s", f.Name, dialect.Placeholder(i+1))
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		d.Table, strings.Join(sets, ", "), d.keyCondition(dialect, len(data)+1))
}

func (d *Descriptor) TruncateSQL(dialect *Dialect) string {
	return fmt.Sprintf(dialect.Truncate, d.Table)
}

// CreateTableSQL renders the DDL for the descriptor, including declared
// references as foreign keys.
func (d *Descriptor) CreateTableSQL(dialect *Dialect) string {
	var cols []string
	for _, f := range d.Fields {
		typ := dialect.TextType
		if f.Type == Int || f.Type == OptionalInt {
			typ = dialect.IntegerType
		}
		col := f.Name + " " + typ
		if f.Primary || !f.Type.Optional() {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(names(d.PrimaryFields()), ", ")))
	for _, f := range d.References() {
		fk := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)", f.Name, f.Ref.Table, f.Ref.Column)
		if dialect.DeferrableRefs {
			fk += " DEFERRABLE INITIALLY IMMEDIATE"
		}
		cols = append(cols, fk)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", d.Table, strings.Join(cols, ",\n\t"))
}
