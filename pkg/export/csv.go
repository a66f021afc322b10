// Package export writes and reads the glossary CSV exchange format: UTF-8,
// comma separated, header "Term,Definition,Source".
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/digitalsleuth/dfir-glossary/pkg/db"
)

// Header is the first row of every export.
var Header = []string{"Term", "Definition", "Source"}

// ErrBadHeader is returned by ReadCSV when the first row is not Header.
var ErrBadHeader = errors.New("unexpected csv header")

// WriteCSV writes the header followed by one row per entry.
func WriteCSV(w io.Writer, rows []db.ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Term, r.Definition, r.Source}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile creates or truncates path and writes rows to it.
func WriteFile(path string, rows []db.ExportRow) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteCSV(f, rows)
}

// ReadCSV parses rows written by WriteCSV. Missing trailing columns read as
// empty strings.
func ReadCSV(r io.Reader) ([]db.ExportRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty input", ErrBadHeader)
	}
	if err != nil {
		return nil, err
	}
	if len(head) > 0 {
		head[0] = strings.TrimPrefix(head[0], "\ufeff")
	}
	if len(head) < len(Header) {
		return nil, fmt.Errorf("%w: %q", ErrBadHeader, head)
	}
	for i, h := range Header {
		if !strings.EqualFold(strings.TrimSpace(head[i]), h) {
			return nil, fmt.Errorf("%w: %q", ErrBadHeader, head)
		}
	}

	var out []db.ExportRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		var row db.ExportRow
		if len(rec) > 0 {
			row.Term = rec[0]
		}
		if len(rec) > 1 {
			row.Definition = rec[1]
		}
		if len(rec) > 2 {
			row.Source = rec[2]
		}
		out = append(out, row)
	}
	return out, nil
}
