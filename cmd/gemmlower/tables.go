// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Reverse(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)

	// repeatStyle marks the rows belonging to a repeat invocation (non-zero A or B offset).
	repeatStyle = cellStyle.Foreground(lipgloss.AdaptiveColor{Light: "4", Dark: "12"})

	titleStyle = lipgloss.NewStyle().Bold(true).Underline(true).MarginTop(1)
)

// planTable is a lipgloss table whose columns have fixed alignments and where rows can
// be marked as belonging to a repeat.
type planTable struct {
	*lgtable.Table
	align   []lipgloss.Position
	repeats map[int]bool
	numRows int
}

// newPlanTable creates a table with the given headers (none for a key/value table) and
// per-column alignments; missing alignments default to left.
func newPlanTable(headers []string, align ...lipgloss.Position) *planTable {
	t := &planTable{align: align, repeats: make(map[int]bool)}
	t.Table = lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Faint(true)).
		StyleFunc(t.style)
	if len(headers) > 0 {
		t.Table = t.Headers(headers...)
	}
	return t
}

func (t *planTable) style(row, col int) lipgloss.Style {
	if row < 0 {
		return headerStyle
	}
	s := cellStyle
	if t.repeats[row] {
		s = repeatStyle
	}
	if col < len(t.align) {
		return s.Align(t.align[col])
	}
	return s.Align(lipgloss.Left)
}

// AddRow appends a row, marked if it belongs to a repeat.
func (t *planTable) AddRow(repeat bool, cells ...string) {
	if repeat {
		t.repeats[t.numRows] = true
	}
	t.Row(cells...)
	t.numRows++
}
