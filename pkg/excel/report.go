package excel

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
)

func (a *Aggregator) render(rep *Report) string {
	if len(rep.Files) == 0 {
		return "No Excel files found in " + rep.Workspace
	}

	groups := make(map[string][]FileResult)
	for _, f := range rep.Files {
		groups[f.Metadata.Category] = append(groups[f.Metadata.Category], f)
	}
	categories := make([]string, 0, len(groups))
	for c := range groups {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	var b strings.Builder
	rule := strings.Repeat("-", 80)
	for _, c := range categories {
		files := groups[c]
		fmt.Fprintf(&b, "%s\nCategory: %s (%d files)\n%s\n\n", rule, c, len(files), rule)
		for _, f := range files {
			status := "ok"
			if !f.Success {
				status = "failed"
			}
			fmt.Fprintf(&b, "File: %s\nSubcategory: %s\nDate: %s\nStatus: %s\n\n",
				f.Metadata.FileName, f.Metadata.SubCategory, f.Metadata.DateStr, status)
			if f.Success {
				b.WriteString("Content:\n")
				b.WriteString(table(f))
				b.WriteString(summaryText(f))
			} else {
				fmt.Fprintf(&b, "Content: unreadable (%s)\n", f.Error)
			}
			fmt.Fprintf(&b, "\n%s\n\n", strings.Repeat("-", 40))
		}
	}
	return b.String()
}

func table(f FileResult) string {
	if len(f.Headers) == 0 {
		return "(empty sheet)\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Columns: %s\nShape: %d rows x %d columns (sheet %s)\n\n",
		strings.Join(f.Headers, ", "), f.Rows, f.Columns, f.Sheet)

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(f.Headers, "\t"))
	for _, rec := range f.Records {
		vals := make([]string, len(f.Headers))
		for i, h := range f.Headers {
			vals[i] = strings.ReplaceAll(rec[h], "\n", " ")
		}
		fmt.Fprintln(tw, strings.Join(vals, "\t"))
	}
	tw.Flush()
	if len(f.Records) < f.Rows {
		fmt.Fprintf(&b, "... (first %d of %d rows)\n", len(f.Records), f.Rows)
	}
	return b.String()
}

func summaryText(f FileResult) string {
	if len(f.Summary) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nNumeric summary:\n")
	for _, h := range f.Headers {
		s, ok := f.Summary[h]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "  %s: count=%d sum=%g min=%g max=%g mean=%.4g\n", h, s.Count, s.Sum, s.Min, s.Max, s.Mean)
	}
	return b.String()
}
