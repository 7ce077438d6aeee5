// Package input reads document codes from the tab-separated exports the
// portal operators work with.
package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"autorndc/internal/fields"
)

// ErrColumnOutOfRange means no row had the requested column.
var ErrColumnOutOfRange = errors.New("column out of range")

// DefaultColumn is the 0-based code column of each export.
func DefaultColumn(kind fields.Kind) int {
	if kind == fields.KindManifest {
		return 8
	}
	return 9
}

// ReadFile reads codes from path. See Read.
func ReadFile(path string, column int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	codes, err := Read(f, column)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return codes, nil
}

// Read decodes Latin-1 TSV with no header and returns the trimmed
// non-empty values of column, in file order. Rows may be ragged.
func Read(r io.Reader, column int) ([]string, error) {
	if column < 0 {
		return nil, fmt.Errorf("%w: %d", ErrColumnOutOfRange, column)
	}
	cr := csv.NewReader(transform.NewReader(r, charmap.ISO8859_1.NewDecoder()))
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var codes []string
	widest := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		if len(rec) > widest {
			widest = len(rec)
		}
		if column >= len(rec) {
			continue
		}
		if v := strings.TrimSpace(rec[column]); v != "" {
			codes = append(codes, v)
		}
	}
	if widest > 0 && column >= widest {
		return nil, fmt.Errorf("%w: %d (file has %d columns)", ErrColumnOutOfRange, column, widest)
	}
	return codes, nil
}
