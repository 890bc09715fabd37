// Package report reads and writes the per-subject joint angle workbook.
package report

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/andresmejia3/goniometer/internal/pose"
)

const (
	// Sheet holds the angle table.
	Sheet = "Angles"
	// NotAvailable marks an angle that could not be measured.
	NotAvailable = "n/a"

	keyHeader = "image"
)

// Cell is one angle in the table.
type Cell struct {
	Degrees float64
	Valid   bool
}

func (c Cell) value() any {
	if !c.Valid {
		return NotAvailable
	}
	return pose.Round2(c.Degrees)
}

// Row is one image: its numeric key followed by the angles in joint order.
type Row struct {
	Key   int
	Cells [pose.NumJoints]Cell
}

// RowFrom builds a row from a full set of measurements.
func RowFrom(key int, ms []pose.Measurement) Row {
	r := Row{Key: key}
	for _, m := range ms {
		if !m.Joint.Valid() {
			continue
		}
		r.Cells[m.Joint] = Cell{Degrees: m.Degrees, Valid: m.OK()}
	}
	return r
}

// Header is the first row of the sheet.
func Header() []string {
	h := make([]string, 0, pose.NumJoints+1)
	h = append(h, keyHeader)
	for _, j := range pose.Joints() {
		h = append(h, j.String())
	}
	return h
}

// Write replaces path with a workbook holding rows in the given order.
func Write(path string, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", Sheet); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(Sheet)
	if err != nil {
		return err
	}

	header := make([]any, 0, pose.NumJoints+1)
	for _, h := range Header() {
		header = append(header, h)
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	for i, r := range rows {
		values := make([]any, 0, pose.NumJoints+1)
		values = append(values, r.Key)
		for _, c := range r.Cells {
			values = append(values, c.value())
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, values); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report %s: %w", path, err)
	}
	return nil
}

// Read loads every row of a workbook written by Write.
func Read(path string) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report %s: %w", path, err)
	}
	defer f.Close()

	table, err := f.GetRows(Sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	if len(table) == 0 || !slices.Equal(table[0], Header()) {
		return nil, fmt.Errorf("%s: sheet %q does not start with the angle header", path, Sheet)
	}

	rows := make([]Row, 0, len(table)-1)
	for n, line := range table[1:] {
		if len(line) == 0 {
			continue
		}
		r, err := parseRow(line)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, n+2, err)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func parseRow(line []string) (Row, error) {
	var r Row
	key, err := strconv.Atoi(line[0])
	if err != nil {
		return r, fmt.Errorf("image key %q is not an integer", line[0])
	}
	r.Key = key

	for i := range r.Cells {
		col := i + 1
		if col >= len(line) || line[col] == "" || line[col] == NotAvailable {
			continue
		}
		v, err := strconv.ParseFloat(line[col], 64)
		if err != nil {
			return r, fmt.Errorf("column %s: %q is not an angle", pose.Joint(i), line[col])
		}
		r.Cells[i] = Cell{Degrees: v, Valid: true}
	}
	return r, nil
}

// Sort orders rows by ascending key. Rows sharing a key keep their order.
func Sort(rows []Row) {
	slices.SortStableFunc(rows, func(a, b Row) int { return cmp.Compare(a.Key, b.Key) })
}

// SortFile rewrites a workbook with its rows ordered by key.
func SortFile(path string) error {
	rows, err := Read(path)
	if err != nil {
		return err
	}
	Sort(rows)
	return Write(path, rows)
}
