package deck

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Workbook is a parsed spreadsheet: ordered sheet names and the raw cell
// rows of each sheet.
type Workbook struct {
	SheetNames []string
	Sheets     map[string][][]string
}

// Sheet returns the rows of the named sheet.
func (w *Workbook) Sheet(name string) ([][]string, error) {
	rows, ok := w.Sheets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, name)
	}
	return rows, nil
}

// First returns the first sheet's name and rows.
func (w *Workbook) First() (string, [][]string, error) {
	if len(w.SheetNames) == 0 {
		return "", nil, ErrEmptyWorkbook
	}
	name := w.SheetNames[0]
	rows, err := w.Sheet(name)
	return name, rows, err
}

// CSVParser reads comma separated data as a workbook. A line of the form
// "#sheet <name>" starts a new sheet; input without such a line becomes a
// single sheet named DefaultSheet.
type CSVParser struct {
	DefaultSheet string
	Comma        rune
}

const sheetMarker = "#sheet "

func (p CSVParser) Parse(ctx context.Context, data []byte) (*Workbook, error) {
	type section struct {
		name string
		text strings.Builder
	}
	defaultName := p.DefaultSheet
	if defaultName == "" {
		defaultName = "Sheet1"
	}

	sections := []*section{{name: defaultName}}
	for _, line := range strings.SplitAfter(string(data), "\n") {
		if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, sheetMarker) {
			name := strings.TrimSpace(strings.TrimPrefix(trimmed, sheetMarker))
			sections = append(sections, &section{name: name})
			continue
		}
		sections[len(sections)-1].text.WriteString(line)
	}
	// Leading blank lines before the first marker do not make a sheet.
	if len(sections) > 1 && strings.TrimSpace(sections[0].text.String()) == "" {
		sections = sections[1:]
	}

	wb := &Workbook{Sheets: make(map[string][][]string, len(sections))}
	for _, sec := range sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := p.readRows([]byte(sec.text.String()))
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sec.name, err)
		}
		if _, exists := wb.Sheets[sec.name]; !exists {
			wb.SheetNames = append(wb.SheetNames, sec.name)
		}
		wb.Sheets[sec.name] = append(wb.Sheets[sec.name], rows...)
	}
	return wb, nil
}

func (p CSVParser) readRows(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	if p.Comma != 0 {
		r.Comma = p.Comma
	}
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, record)
	}
}
