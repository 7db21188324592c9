package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// record is one physical row of the input with its 1-based line number.
type record struct {
	cells []string
	line  int
}

func (r record) blank() bool {
	for _, c := range r.cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// cell returns the trimmed value at i, or "" when the row is too short.
func (r record) cell(i int) string {
	if i < 0 || i >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[i])
}

// nonEmpty returns the number of non-blank cells.
func (r record) nonEmpty() int {
	n := 0
	for _, c := range r.cells {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

// first returns the first cell, trimmed.
func (r record) first() string {
	return r.cell(0)
}

// text joins every cell with single spaces for phrase matching.
func (r record) text() string {
	return normalizePhrase(strings.Join(r.cells, " "))
}

// readTable decodes raw upload bytes into rows. It strips a UTF-8 BOM,
// decodes UTF-16 when a BOM says so, accepts ragged rows and quoted fields
// with embedded delimiters or newlines, and sniffs tab-delimited input.
func readTable(data []byte) ([]record, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	decoded, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode input: %w", err)
	}

	r := csv.NewReader(bytes.NewReader(decoded))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.Comma = sniffDelimiter(decoded)

	var rows []record
	for {
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(rows)+1, err)
		}
		line, _ := r.FieldPos(0)
		rows = append(rows, record{cells: cells, line: line})
	}
	return rows, nil
}

func sniffDelimiter(data []byte) rune {
	firstLine := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		firstLine = data[:i]
	}
	if bytes.Count(firstLine, []byte{'\t'}) > bytes.Count(firstLine, []byte{','}) {
		return '\t'
	}
	return ','
}

var (
	nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)
	hyphenSpace = regexp.MustCompile(`[\s\-_]+`)
)

// normalizeHeader maps "Mkt Val (Market Value)" to "mkt_val_market_value".
func normalizeHeader(s string) string {
	s = nonAlnumRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_")
	return strings.Trim(s, "_")
}

// normalizePhrase lower-cases and folds hyphens and whitespace runs to single spaces.
func normalizePhrase(s string) string {
	return strings.TrimSpace(hyphenSpace.ReplaceAllString(strings.ToLower(s), " "))
}
