package dataframe_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oneprompteu/oneprompt/internal/dataframe"
)

func TestNew(t *testing.T) {
	t.Run("short rows padded with nil", func(t *testing.T) {
		df, err := dataframe.New([]string{"a", "b"}, [][]any{{1.0}})
		assert.NoError(t, err)
		assert.Equal(t, 1, df.NumRows())

		col, err := df.Column("b")
		assert.NoError(t, err)
		assert.Nil(t, col[0])
	})

	t.Run("long rows rejected", func(t *testing.T) {
		_, err := dataframe.New([]string{"a"}, [][]any{{1.0, 2.0}})
		assert.Error(t, err)
	})
}

func TestFromCSV(t *testing.T) {
	csvData := "name,age,active\nalice,30,true\nbob,25,false\n"

	df, err := dataframe.FromCSV([]byte(csvData))
	assert.NoError(t, err)
	assert.Equal(t, 2, df.NumRows())
	assert.Equal(t, 3, df.NumColumns())
	assert.Equal(t, []string{"name", "age", "active"}, df.Columns())

	t.Run("numeric cells coerced", func(t *testing.T) {
		ages, err := df.Column("age")
		assert.NoError(t, err)
		assert.Equal(t, []any{30.0, 25.0}, ages)
	})

	t.Run("boolean cells coerced", func(t *testing.T) {
		active, err := df.Column("active")
		assert.NoError(t, err)
		assert.Equal(t, []any{true, false}, active)
	})

	t.Run("strings stay strings", func(t *testing.T) {
		names, err := df.Column("name")
		assert.NoError(t, err)
		assert.Equal(t, []any{"alice", "bob"}, names)
	})

	t.Run("empty input", func(t *testing.T) {
		empty, err := dataframe.FromCSV(nil)
		assert.NoError(t, err)
		assert.Equal(t, 0, empty.NumRows())
	})
}

func TestFromRecords(t *testing.T) {
	df, err := dataframe.FromRecords([]map[string]any{
		{"b": 2.0, "a": 1.0},
		{"a": 3.0, "c": "x"},
	})
	assert.NoError(t, err)

	// Column order is the sorted key union, so missing keys become nil.
	assert.Equal(t, []string{"a", "b", "c"}, df.Columns())
	assert.Equal(t, 2, df.NumRows())

	recs := df.Records()
	assert.Equal(t, 2.0, recs[0]["b"])
	assert.Nil(t, recs[1]["b"])
	assert.Equal(t, "x", recs[1]["c"])
}

func TestHead(t *testing.T) {
	df, err := dataframe.FromCSV([]byte("n\n1\n2\n3\n4\n5\n"))
	assert.NoError(t, err)

	assert.Equal(t, 2, df.Head(2).NumRows())
	assert.Equal(t, 5, df.Head(10).NumRows())
	assert.Equal(t, 0, df.Head(-1).NumRows())
}

func TestColumn_Missing(t *testing.T) {
	df, err := dataframe.FromCSV([]byte("a\n1\n"))
	assert.NoError(t, err)

	_, err = df.Column("missing")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no column")
}

func TestToCSV_RoundTrip(t *testing.T) {
	original := "a,b\n1,x\n2,y\n"
	df, err := dataframe.FromCSV([]byte(original))
	assert.NoError(t, err)

	out, err := df.ToCSV()
	assert.NoError(t, err)
	assert.Equal(t, original, out)
}

func TestToJSON(t *testing.T) {
	df, err := dataframe.FromCSV([]byte("a\n1\n"))
	assert.NoError(t, err)

	out, err := df.ToJSON()
	assert.NoError(t, err)
	assert.JSONEq(t, `[{"a": 1}]`, out)
}

func TestString_AlignedTable(t *testing.T) {
	df, err := dataframe.FromCSV([]byte("name,n\nalice,1\nbo,22\n"))
	assert.NoError(t, err)

	lines := strings.Split(df.String(), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, "name   n ", lines[0])
	assert.Equal(t, "alice  1 ", lines[1])
	assert.Equal(t, "bo     22", lines[2])
}
