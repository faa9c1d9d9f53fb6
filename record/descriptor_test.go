package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Kind     string  `db:"kind"`
	ID       *string `db:"id,primary"`
	Size     uint8   `db:"size"`
	Part     *int64  `db:"part,primary"`
	Note     *string `db:"note"`
	ParentID *string `db:"parent_id,ref=widget.id"`
	Weight   *int    `db:"weight"`
	scratch  string
	Ignored  string `db:"-"`
}

func TestDescribe(t *testing.T) {
	d, err := Describe[widget]("widget")
	require.NoError(t, err)

	assert.Equal(t, "widget", d.Table)
	assert.Equal(t, []string{"kind", "id", "size", "part", "note", "parent_id", "weight"}, d.Columns())
	assert.Equal(t, []string{"id", "part"}, names(d.PrimaryFields()))
	assert.Equal(t, []string{"kind", "size", "note", "parent_id", "weight"}, names(d.DataFields()))

	types := make(map[string]FieldType)
	for _, f := range d.Fields {
		types[f.Name] = f.Type
	}
	assert.Equal(t, map[string]FieldType{
		"kind":      Text,
		"id":        OptionalText,
		"size":      Int,
		"part":      OptionalInt,
		"note":      OptionalText,
		"parent_id": OptionalText,
		"weight":    OptionalInt,
	}, types)

	refs := d.References()
	require.Len(t, refs, 1)
	assert.Equal(t, "widget.id", refs[0].Ref.String())
}

func TestDescribeRejectsMissingPrimaryKey(t *testing.T) {
	type keyless struct {
		Name string `db:"name"`
	}
	_, err := Describe[keyless]("keyless")
	require.ErrorIs(t, err, ErrNoPrimaryKey)

	assert.Panics(t, func() { MustDescribe[keyless]("keyless") })
}

func TestDescribeRejectsBadFields(t *testing.T) {
	type valueKey struct {
		ID string `db:"id,primary"`
	}
	_, err := Describe[valueKey]("t")
	assert.ErrorContains(t, err, "primary key must be a pointer")

	type floaty struct {
		ID  *string `db:"id,primary"`
		Lat float64 `db:"lat"`
	}
	_, err = Describe[floaty]("t")
	assert.ErrorContains(t, err, "unsupported type")

	type dup struct {
		ID  *string `db:"id,primary"`
		ID2 *string `db:"id"`
	}
	_, err = Describe[dup]("t")
	assert.ErrorContains(t, err, "duplicate column")

	type badRef struct {
		ID *string `db:"id,primary,ref=nowhere"`
	}
	_, err = Describe[badRef]("t")
	assert.ErrorContains(t, err, "malformed reference")

	_, err = Describe[int]("t")
	assert.ErrorContains(t, err, "not a struct")
}

func TestStatements(t *testing.T) {
	d := MustDescribe[widget]("widget")

	assert.Equal(t,
		"SELECT kind, id, size, part, note, parent_id, weight FROM widget",
		d.SelectAllSQL())
	assert.Equal(t,
		"SELECT COUNT(*) FROM widget WHERE id = ?1 AND part = ?2",
		d.CountByKeySQL(SQLite))
	assert.Equal(t,
		"INSERT INTO widget (kind, id, size, part, note, parent_id, weight) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		d.InsertSQL(Postgres))
	assert.Equal(t,
		"UPDATE widget SET kind = $1, size = $2, note = $3, parent_id = $4, weight = $5 WHERE id = $6 AND part = $7",
		d.UpdateSQL(Postgres))
	assert.Equal(t, "DELETE FROM widget", d.TruncateSQL(SQLite))
}

func TestUpdateSQLAllKeys(t *testing.T) {
	type pair struct {
		A *string `db:"a,primary"`
		B *string `db:"b,primary"`
	}
	assert.Equal(t, "", MustDescribe[pair]("pair").UpdateSQL(SQLite))
}

func TestCreateTableSQL(t *testing.T) {
	d := MustDescribe[widget]("widget")

	ddl := d.CreateTableSQL(Postgres)
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS widget")
	assert.Contains(t, ddl, "kind TEXT NOT NULL")
	assert.Contains(t, ddl, "size BIGINT NOT NULL")
	assert.Contains(t, ddl, "note TEXT,")
	assert.Contains(t, ddl, "PRIMARY KEY (id, part)")
	assert.Contains(t, ddl, "FOREIGN KEY (parent_id) REFERENCES widget (id) DEFERRABLE INITIALLY IMMEDIATE")

	assert.NotContains(t, d.CreateTableSQL(SQLite), "DEFERRABLE")
}
