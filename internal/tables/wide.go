package tables

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

// TimestampHeader heads the timestamp column of wide tables.
const TimestampHeader = "utc_timestamp"

// header returns the label header rows of a wide table: one row per label
// part, first cell naming the part. The last row's first cell is
// TimestampHeader, since it sits on top of the timestamp column.
func header(series []*timeseries.Series) [][]string {
	rows := make([][]string, len(timeseries.HeaderNames))
	for k, name := range timeseries.HeaderNames {
		row := make([]string, 0, len(series)+1)
		if k == len(timeseries.HeaderNames)-1 {
			name = TimestampHeader
		}
		row = append(row, name)
		for _, s := range series {
			row = append(row, s.Label.Parts()[k])
		}
		rows[k] = row
	}
	return rows
}

func formatValue(v float64) string {
	if timeseries.IsMissing(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// EncodeCSV writes ds as a wide table: a column per series, headed by the
// label parts, and a row per grid timestamp in RFC 3339 UTC.
func EncodeCSV(ds *timeseries.Dataset) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	series := ds.All()
	if err := w.WriteAll(header(series)); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	g := ds.Grid()
	record := make([]string, len(series)+1)
	for i := 0; i < g.Len; i++ {
		record[0] = g.At(i).Format(time.RFC3339)
		for j, s := range series {
			record[j+1] = formatValue(s.Values[i])
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeXLSX writes a workbook with one wide sheet per dataset, named after
// its resolution.
func EncodeXLSX(datasets []*timeseries.Dataset) ([]byte, error) {
	wb := excelize.NewFile()
	defer wb.Close()

	for n, ds := range datasets {
		sheet := string(ds.Resolution)
		if n == 0 {
			if err := wb.SetSheetName(wb.GetSheetName(0), sheet); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := wb.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("add sheet %s: %w", sheet, err)
		}
		if err := writeSheet(wb, sheet, ds); err != nil {
			return nil, err
		}
	}

	buf, err := wb.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(wb *excelize.File, sheet string, ds *timeseries.Dataset) error {
	sw, err := wb.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("stream sheet %s: %w", sheet, err)
	}
	series := ds.All()

	rowNum := 1
	for _, h := range header(series) {
		cells := make([]interface{}, len(h))
		for i, v := range h {
			cells[i] = v
		}
		if err := setRow(sw, rowNum, cells); err != nil {
			return err
		}
		rowNum++
	}

	g := ds.Grid()
	for i := 0; i < g.Len; i++ {
		cells := make([]interface{}, len(series)+1)
		cells[0] = g.At(i).Format(time.RFC3339)
		for j, s := range series {
			if v := s.Values[i]; !timeseries.IsMissing(v) {
				cells[j+1] = v
			}
		}
		if err := setRow(sw, rowNum, cells); err != nil {
			return err
		}
		rowNum++
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet %s: %w", sheet, err)
	}
	return nil
}

func setRow(sw *excelize.StreamWriter, row int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := sw.SetRow(cell, cells); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}
