// Package report renders score tables as CSV files or an XLSX workbook.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ahrav/go-consensus/internal/domain"
)

// Output formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Decimals is the precision of every number written.
const Decimals = 6

var (
	bootstrapHeader = []string{"brand", "worth", "worth_lo", "worth_hi", "worth_se", "n_lists"}
	approxHeader    = []string{"brand", "worth", "approx_ci_95", "n_lists"}

	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)
)

// Header returns the column names for t.
func Header(t domain.ScoreTable) []string {
	if t.Bootstrapped() {
		return bootstrapHeader
	}
	return approxHeader
}

// Rows formats the rows of t as strings in Header order.
func Rows(t domain.ScoreTable) [][]string {
	out := make([][]string, 0, len(t.Rows))
	boot := t.Bootstrapped()
	for _, r := range t.Rows {
		if boot {
			out = append(out, []string{
				r.Item, num(r.Worth), num(r.Interval.Lo), num(r.Interval.Hi), num(r.StdErr), strconv.Itoa(r.NLists),
			})
			continue
		}
		out = append(out, []string{r.Item, num(r.Worth), num(r.ApproxCI), strconv.Itoa(r.NLists)})
	}
	return out
}

func num(x float64) string { return strconv.FormatFloat(x, 'f', Decimals, 64) }

// SafeName turns a group key into a file name stem: runs of characters
// outside [A-Za-z0-9_.-] become one underscore.
func SafeName(group string) string {
	name := unsafeChars.ReplaceAllString(group, "_")
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}

// WriteCSV writes one table to w.
func WriteCSV(w io.Writer, t domain.ScoreTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(t)); err != nil {
		return err
	}
	if err := cw.WriteAll(Rows(t)); err != nil {
		return err
	}
	return cw.Error()
}

// WriteCSVFile writes one table to path, creating parent directories.
func WriteCSVFile(path string, t domain.ScoreTable) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, t); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// WriteXLSX writes every table to its own sheet of a workbook at path.
// Numbers are stored as numeric cells rounded to Decimals places.
func WriteXLSX(path string, tables []domain.ScoreTable) error {
	f := excelize.NewFile()
	defer f.Close()

	used := make(map[string]bool)
	for i, t := range tables {
		sheet := sheetName(t.Group, used)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return err
		}

		for c, h := range Header(t) {
			cell, _ := excelize.CoordinatesToCellName(c+1, 1)
			if err := f.SetCellValue(sheet, cell, h); err != nil {
				return err
			}
		}
		for r, row := range cellRows(t) {
			for c, v := range row {
				cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
				if err := f.SetCellValue(sheet, cell, v); err != nil {
					return err
				}
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return f.SaveAs(path)
}

func cellRows(t domain.ScoreTable) [][]any {
	out := make([][]any, 0, len(t.Rows))
	boot := t.Bootstrapped()
	for _, r := range t.Rows {
		if boot {
			out = append(out, []any{r.Item, round(r.Worth), round(r.Interval.Lo), round(r.Interval.Hi), round(r.StdErr), r.NLists})
			continue
		}
		out = append(out, []any{r.Item, round(r.Worth), round(r.ApproxCI), r.NLists})
	}
	return out
}

func round(x float64) float64 {
	v, _ := strconv.ParseFloat(num(x), 64)
	return v
}

// sheetName derives a unique sheet name of at most 31 characters.
func sheetName(group string, used map[string]bool) string {
	base := SafeName(group)
	if len(base) > 31 {
		base = base[:31]
	}
	name := base
	for n := 2; used[name]; n++ {
		suffix := "_" + strconv.Itoa(n)
		name = base[:min(len(base), 31-len(suffix))] + suffix
	}
	used[name] = true
	return name
}

// fileName returns a unique file stem for group. Stems are compared
// case-insensitively and collisions get _2, _3 suffixes.
func fileName(group string, used map[string]bool) string {
	base := SafeName(group)
	name := base
	for n := 2; used[strings.ToLower(name)]; n++ {
		name = base + "_" + strconv.Itoa(n)
	}
	used[strings.ToLower(name)] = true
	return name
}

// Write renders tables in format. For CSV with grouped set, out is a
// directory receiving one <group>.csv per table, with colliding safe names
// suffixed as in fileName; otherwise out is a file
// and "-" means w. It returns the paths written.
func Write(w io.Writer, out, format string, grouped bool, tables []domain.ScoreTable) ([]string, error) {
	switch strings.ToLower(format) {
	case "", FormatCSV:
		if grouped {
			paths := make([]string, 0, len(tables))
			used := make(map[string]bool, len(tables))
			for _, t := range tables {
				path := filepath.Join(out, fileName(t.Group, used)+".csv")
				if err := WriteCSVFile(path, t); err != nil {
					return paths, err
				}
				paths = append(paths, path)
			}
			return paths, nil
		}
		if len(tables) != 1 {
			return nil, fmt.Errorf("ungrouped output expects one table, got %d", len(tables))
		}
		if out == "-" {
			return nil, WriteCSV(w, tables[0])
		}
		return []string{out}, WriteCSVFile(out, tables[0])
	case FormatXLSX:
		if out == "-" {
			return nil, fmt.Errorf("xlsx output needs a file path")
		}
		return []string{out}, WriteXLSX(out, tables)
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}
