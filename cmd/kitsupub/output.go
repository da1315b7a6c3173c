package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"kitsupub/internal/tasktree"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// colorEnabled reports whether w is an interactive terminal. Redirected and
// captured output stays plain.
func colorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func colorize(w io.Writer, s string, colors ...text.Color) string {
	if !colorEnabled(w) || len(colors) == 0 {
		return s
	}
	return text.Colors(colors).Sprint(s)
}

func passFail(w io.Writer, ok bool) string {
	if ok {
		return colorize(w, "ok", text.FgGreen)
	}
	return colorize(w, "FAIL", text.FgRed, text.Bold)
}

func renderTable(w io.Writer, headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	if !colorEnabled(w) {
		tw.Style().Color = table.ColorOptions{}
	}

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render() + "\n"
}

// renderTree draws the task hierarchy. Task leaves show their context ID so
// it can be passed to "kitsupub publish --task".
func renderTree(w io.Writer, roots []*tasktree.Node) string {
	lw := list.NewWriter()
	lw.SetStyle(list.StyleConnectedRounded)

	var add func(nodes []*tasktree.Node)
	add = func(nodes []*tasktree.Node) {
		for _, n := range nodes {
			label := n.Label
			if n.Selectable() {
				label = n.Label + "  " + colorize(w, n.ContextID, text.FgHiBlack)
			} else if n.Level == tasktree.LevelProject {
				label = colorize(w, n.Label, text.Bold)
			}
			lw.AppendItem(label)
			if len(n.Children) > 0 {
				lw.Indent()
				add(n.Children)
				lw.UnIndent()
			}
		}
	}
	add(roots)
	return lw.Render() + "\n"
}

// treeJSON is the --json shape of a task tree.
type treeJSON struct {
	Label     string     `json:"label"`
	Level     string     `json:"level"`
	ContextID string     `json:"context_id,omitempty"`
	Children  []treeJSON `json:"children,omitempty"`
}

func toTreeJSON(nodes []*tasktree.Node) []treeJSON {
	out := make([]treeJSON, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, treeJSON{
			Label:     n.Label,
			Level:     n.Level.String(),
			ContextID: n.ContextID,
			Children:  toTreeJSON(n.Children),
		})
	}
	return out
}
