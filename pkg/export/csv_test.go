package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/digitalsleuth/dfir-glossary/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSVHeaderAndQuoting(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []db.ExportRow{
		{Term: "RAM", Definition: "Random Access Memory", Source: ""},
		{Term: "a,b", Definition: `say "hi"`, Source: "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Term,Definition,Source\nRAM,Random Access Memory,\n\"a,b\",\"say \"\"hi\"\"\",x\n", buf.String())
}

func TestRoundTripThroughStore(t *testing.T) {
	s, err := db.OpenMemory()
	require.NoError(t, err)
	defer s.Close()

	inputs := []db.ExportRow{
		{Term: "RAM", Definition: "Random Access Memory", Source: "NIST"},
		{Term: "comma, term", Definition: "has \"quotes\" and, commas", Source: ""},
		{Term: "multi", Definition: "line one\nline two\r\nline three", Source: "src\nnext"},
		{Term: "日本語", Definition: "ユニコード", Source: "é"},
	}
	var names []string
	for _, in := range inputs {
		_, err := s.Add(in.Term, in.Definition, in.Source)
		require.NoError(t, err)
		names = append(names, in.Term)
	}

	rows, err := s.ExportSubset(names)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))

	back, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, back, len(inputs))

	byTerm := map[string]db.ExportRow{}
	for _, r := range back {
		byTerm[r.Term] = r
	}
	for _, in := range inputs {
		got, ok := byTerm[in.Term]
		require.True(t, ok, "missing %q", in.Term)
		// encoding/csv normalises \r\n inside quoted fields to \n.
		in.Definition = strings.ReplaceAll(in.Definition, "\r\n", "\n")
		assert.Equal(t, in, got)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, WriteFile(path, []db.ExportRow{{Term: "MFT", Definition: "Master File Table"}}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Term,Definition,Source\nMFT,Master File Table,\n", string(data))
}

func TestReadCSVHeader(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	require.ErrorIs(t, err, ErrBadHeader)

	_, err = ReadCSV(strings.NewReader("Name,Value\nx,y\n"))
	require.ErrorIs(t, err, ErrBadHeader)

	rows, err := ReadCSV(strings.NewReader("\ufeffterm,definition,source\nRAM\nROM,Read Only Memory\n"))
	require.NoError(t, err)
	assert.Equal(t, []db.ExportRow{
		{Term: "RAM"},
		{Term: "ROM", Definition: "Read Only Memory"},
	}, rows)
}
