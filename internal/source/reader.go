package source

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/catalog"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

// missingTokens are cell contents providers use for absent values.
var missingTokens = map[string]bool{
	"":     true,
	"-":    true,
	"n.a.": true,
	"n/a":  true,
	"na":   true,
	"nan":  true,
	"null": true,
}

// Read turns a raw file into a frame sorted by timestamp. Rows repeating an
// earlier timestamp are dropped, which keeps the first of the two wall clock
// hours repeated at the end of daylight saving time.
func Read(f File) (*timeseries.Frame, error) {
	format := f.Entry.Format
	if ext := FormatOf(f.Key); ext != "" {
		format = ext
	}

	var (
		rows [][]string
		err  error
	)
	switch format {
	case catalog.FormatCSV:
		rows, err = csvRows(f.Entry, f.Data)
	case catalog.FormatXLSX:
		rows, err = xlsxRows(f.Entry, f.Data)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, readError(f, err)
	}
	frame, err := tabulate(f.Entry, rows)
	if err != nil {
		return nil, readError(f, err)
	}
	return frame, nil
}

func csvRows(e *catalog.Entry, data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = []rune(e.Separator)[0]
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return rows, nil
}

func xlsxRows(e *catalog.Entry, data []byte) ([][]string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	sheet := e.Sheet
	if sheet == "" {
		sheets := wb.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

type row struct {
	ts     time.Time
	values []float64
}

// tabulate maps the rows below the skipped preamble and the header to a frame.
func tabulate(e *catalog.Entry, rows [][]string) (*timeseries.Frame, error) {
	if len(rows) <= e.SkipRows {
		return nil, fmt.Errorf("%w: no header after %d skipped rows", ErrMissingColumn, e.SkipRows)
	}
	header := rows[e.SkipRows]
	position := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, dup := position[name]; !dup {
			position[name] = i
		}
	}
	lookup := func(name string) (int, error) {
		i, ok := position[name]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
		return i, nil
	}

	timeIdx := make([]int, len(e.TimeColumns))
	for i, name := range e.TimeColumns {
		idx, err := lookup(name)
		if err != nil {
			return nil, err
		}
		timeIdx[i] = idx
	}
	valueIdx := make([]int, len(e.Columns))
	for i, c := range e.Columns {
		idx, err := lookup(c.Name)
		if err != nil {
			return nil, err
		}
		valueIdx[i] = idx
	}

	loc, err := e.TimeLocation()
	if err != nil {
		return nil, err
	}

	var parsed []row
	parts := make([]string, len(timeIdx))
	for n, cells := range rows[e.SkipRows+1:] {
		blank := false
		for i, idx := range timeIdx {
			parts[i] = strings.TrimSpace(cell(cells, idx))
			if parts[i] == "" {
				blank = true
			}
		}
		if blank {
			// footers and empty trailing rows
			continue
		}
		ts, err := time.ParseInLocation(e.TimeLayout, strings.Join(parts, " "), loc)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrInvalidTimestamp, e.SkipRows+2+n, err)
		}
		r := row{ts: ts.UTC().Add(e.Shift), values: make([]float64, len(valueIdx))}
		for i, idx := range valueIdx {
			v, err := parseValue(cell(cells, idx), e.Decimal)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", e.SkipRows+2+n, e.Columns[i].Name, err)
			}
			r.values[i] = v
		}
		parsed = append(parsed, r)
	}

	sort.SliceStable(parsed, func(i, j int) bool { return parsed[i].ts.Before(parsed[j].ts) })

	frame := timeseries.NewFrame()
	labels := e.Labels()
	for _, l := range labels {
		frame.Columns[l] = make([]float64, 0, len(parsed))
	}
	for i, r := range parsed {
		if i > 0 && r.ts.Equal(parsed[i-1].ts) {
			continue
		}
		frame.Timestamps = append(frame.Timestamps, r.ts)
		for j, l := range labels {
			frame.Columns[l] = append(frame.Columns[l], r.values[j])
		}
	}
	return frame, nil
}

func cell(cells []string, i int) string {
	if i < len(cells) {
		return cells[i]
	}
	return ""
}

// parseValue parses a numeric cell written with the given decimal mark.
// Thousands separators are dropped.
func parseValue(s, decimal string) (float64, error) {
	s = strings.TrimSpace(s)
	if missingTokens[strings.ToLower(s)] {
		return timeseries.Missing, nil
	}
	s = strings.ReplaceAll(s, " ", "")
	if decimal == "," {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse value %q: %w", s, err)
	}
	return v, nil
}
