package tabular

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"aadhaarlens/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileReaderCSV(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "jan.csv",
		"date,state,district,age_0_5,age_5_17,age_18_greater\n"+
			"15-01-2023,Karnataka,Bangalore,10,20,70\n"+
			"16-01-2023,Karnataka,Mysore,5,10,25\n")

	table, err := NewFileReader(path).Read()
	require.NoError(t, err)

	assert.Equal(t, []string{"date", "state", "district", "age_0_5", "age_5_17", "age_18_greater"}, table.Headers)
	assert.Len(t, table.Records, 2)
	assert.Equal(t, "Bangalore", table.Records[0][2])
}

func TestFileReaderHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "empty.csv", "date,state,district\n")

	_, err := NewFileReader(path).Read()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrEmptyTable))
}

func TestFileReaderPadsShortRows(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "ragged.csv", "a,b,c\n1,2\n")

	table, err := NewFileReader(path).Read()
	require.NoError(t, err)
	require.Len(t, table.Records[0], 3)
	assert.Equal(t, "", table.Records[0][2])
}

func TestColumnIndexCaseInsensitive(t *testing.T) {
	table := &Table{Headers: []string{"Date", " State", "district"}}

	assert.Equal(t, 0, table.ColumnIndex("date"))
	assert.Equal(t, 1, table.ColumnIndex("state"))
	assert.Equal(t, -1, table.ColumnIndex("missing"))
}

func TestRequireColumns(t *testing.T) {
	table := &Table{Path: "x/y.csv", Headers: []string{"date", "state"}}

	assert.NoError(t, table.RequireColumns("date", "state"))

	err := table.RequireColumns("district")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrMissingColumn))
}

func TestReadDirEmptyIsFatal(t *testing.T) {
	_, err := ReadDir(t.TempDir(), "enrolment")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNoDataFound))
}

func TestReadDirLoadsAllFiles(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "a.csv", "date,state\n1,2\n")
	writeCSV(t, dir, "b.csv", "date,state\n3,4\n")

	tables, err := ReadDir(dir, "enrolment")
	require.NoError(t, err)
	assert.Len(t, tables, 2)
}
