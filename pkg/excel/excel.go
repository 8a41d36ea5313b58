// Package excel merges the spreadsheets of a workspace directory into one
// report an LLM can read, alongside a structured per-file summary.
package excel

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/freitascorp/deskclaw/pkg/config"
	"github.com/freitascorp/deskclaw/pkg/logger"
)

const (
	// DataSheet is read in preference to the first sheet.
	DataSheet = "数据"

	// DefaultMaxRows bounds the rows rendered per file.
	DefaultMaxRows = 10000

	unknown = "unknown"
)

// ErrLegacyFormat is returned for .xls workbooks.
var ErrLegacyFormat = errors.New("legacy .xls workbooks are not supported, save the file as .xlsx")

// Metadata is derived from the file itself and from its name, which is
// expected to look like category_subcategory_date_time.xlsx.
type Metadata struct {
	FileName    string   `json:"file_name"`
	FilePath    string   `json:"file_path"`
	FileSize    int64    `json:"file_size"`
	Modified    string   `json:"modified_time"`
	NameParts   []string `json:"name_parts"`
	Category    string   `json:"category"`
	SubCategory string   `json:"sub_category"`
	DateStr     string   `json:"date_str"`
	TimeStr     string   `json:"time_str"`
}

// ColumnSummary describes the numeric cells of one column.
type ColumnSummary struct {
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
}

// FileResult is one workbook's contribution to the report.
type FileResult struct {
	Metadata Metadata                 `json:"metadata"`
	Success  bool                     `json:"success"`
	Error    string                   `json:"error,omitempty"`
	Sheet    string                   `json:"sheet,omitempty"`
	Rows     int                      `json:"rows"`
	Columns  int                      `json:"columns"`
	Headers  []string                 `json:"headers,omitempty"`
	Records  []map[string]string      `json:"records,omitempty"`
	Summary  map[string]ColumnSummary `json:"numeric_summary,omitempty"`
}

// Report is the aggregate over a workspace.
type Report struct {
	Workspace string       `json:"workspace"`
	Files     []FileResult `json:"files"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Text      string       `json:"-"`
}

// Aggregator reads every workbook in a workspace.
type Aggregator struct {
	Workspace string
	MaxRows   int
}

func New(workspace string) *Aggregator {
	return &Aggregator{Workspace: config.ExpandPath(workspace), MaxRows: DefaultMaxRows}
}

func isWorkbook(name string) bool {
	if strings.HasPrefix(name, "~$") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".xlsx" || ext == ".xls"
}

// Scan lists the workbooks directly inside the workspace, sorted by name.
// Office lock files (~$name.xlsx) are skipped.
func (a *Aggregator) Scan() ([]string, error) {
	des, err := os.ReadDir(a.Workspace)
	if err != nil {
		return nil, fmt.Errorf("scan workspace: %w", err)
	}
	var files []string
	for _, de := range des {
		if de.Type().IsRegular() && isWorkbook(de.Name()) {
			files = append(files, filepath.Join(a.Workspace, de.Name()))
		}
	}
	sort.Slice(files, func(i, j int) bool { return filepath.Base(files[i]) < filepath.Base(files[j]) })
	return files, nil
}

// Aggregate reads every workbook. A file that cannot be read is reported
// with its error and does not stop the run.
func (a *Aggregator) Aggregate() (*Report, error) {
	files, err := a.Scan()
	if err != nil {
		return nil, err
	}
	rep := &Report{Workspace: a.Workspace, Files: make([]FileResult, 0, len(files))}
	for _, path := range files {
		res := a.processFile(path)
		if res.Success {
			rep.Succeeded++
		} else {
			rep.Failed++
			logger.WarnCF("excel", "Workbook skipped", map[string]any{"file": res.Metadata.FileName, "error": res.Error})
		}
		rep.Files = append(rep.Files, res)
	}
	rep.Text = a.render(rep)
	logger.InfoCF("excel", "Workspace aggregated", map[string]any{
		"workspace": a.Workspace,
		"files":     len(files),
		"failed":    rep.Failed,
	})
	return rep, nil
}

func (a *Aggregator) processFile(path string) FileResult {
	res := FileResult{Metadata: metadataFor(path)}
	sheet, rows, err := readSheet(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.Sheet = sheet
	if len(rows) == 0 {
		return res
	}

	res.Headers = headers(rows[0])
	data := rows[1:]
	res.Rows = len(data)
	res.Columns = len(res.Headers)
	limit := min(len(data), a.maxRows())
	res.Records = make([]map[string]string, 0, limit)
	for _, row := range data[:limit] {
		rec := make(map[string]string, len(res.Headers))
		for i, h := range res.Headers {
			rec[h] = cell(row, i)
		}
		res.Records = append(res.Records, rec)
	}
	res.Summary = summarize(res.Headers, data)
	return res
}

func (a *Aggregator) maxRows() int {
	if a.MaxRows <= 0 {
		return DefaultMaxRows
	}
	return a.MaxRows
}

func metadataFor(path string) Metadata {
	name := filepath.Base(path)
	parts := strings.Split(strings.TrimSuffix(name, filepath.Ext(name)), "_")
	part := func(i int) string {
		if i < len(parts) && parts[i] != "" {
			return parts[i]
		}
		return unknown
	}
	md := Metadata{
		FileName:    name,
		FilePath:    path,
		NameParts:   parts,
		Category:    part(0),
		SubCategory: part(1),
		DateStr:     part(2),
		TimeStr:     part(3),
	}
	if fi, err := os.Stat(path); err == nil {
		md.FileSize = fi.Size()
		md.Modified = fi.ModTime().Format(time.RFC3339)
	}
	return md
}

// readSheet returns the rows of the 数据 sheet, or of the first sheet.
func readSheet(path string) (string, [][]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".xls") {
		return "", nil, ErrLegacyFormat
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := DataSheet
	if idx, err := f.GetSheetIndex(DataSheet); err != nil || idx < 0 {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return "", nil, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return "", nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return sheet, rows, nil
}

func headers(row []string) []string {
	out := make([]string, len(row))
	for i, h := range row {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		out[i] = h
	}
	return out
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func summarize(hdrs []string, data [][]string) map[string]ColumnSummary {
	out := make(map[string]ColumnSummary)
	for i, h := range hdrs {
		s := ColumnSummary{Min: math.Inf(1), Max: math.Inf(-1)}
		for _, row := range data {
			v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(cell(row, i)), ",", ""), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			s.Count++
			s.Sum += v
			s.Min = math.Min(s.Min, v)
			s.Max = math.Max(s.Max, v)
		}
		if s.Count == 0 {
			continue
		}
		s.Mean = s.Sum / float64(s.Count)
		out[h] = s
	}
	return out
}
