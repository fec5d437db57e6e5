// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package markterm

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
)

// tableSeparator is the gap between rendered table columns.
const tableSeparator = "  "

// renderTable renders a GFM table with padded columns, a bold header
// row, and a rule separating header from body. Over-wide tables
// shrink columns proportionally down to a 3-character floor.
func (state *renderState) renderTable(node ast.Node) {
	table := node.(*extast.Table)
	alignments := table.Alignments

	var headerCells []string
	var bodyRows [][]string

	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.Kind() {
		case extast.KindTableHeader:
			headerCells = state.collectTableRow(child)
		case extast.KindTableRow:
			bodyRows = append(bodyRows, state.collectTableRow(child))
		}
	}

	columnCount := len(headerCells)
	if columnCount == 0 && len(bodyRows) > 0 {
		columnCount = len(bodyRows[0])
	}
	if columnCount == 0 {
		return
	}

	// Column widths from visible content width.
	columnWidths := make([]int, columnCount)
	for index, cell := range headerCells {
		if index < columnCount {
			if width := lipgloss.Width(cell); width > columnWidths[index] {
				columnWidths[index] = width
			}
		}
	}
	for _, row := range bodyRows {
		for index, cell := range row {
			if index < columnCount {
				if width := lipgloss.Width(cell); width > columnWidths[index] {
					columnWidths[index] = width
				}
			}
		}
	}

	totalWidth := len(tableSeparator) * (columnCount - 1)
	for _, width := range columnWidths {
		totalWidth += width
	}
	available := state.currentWidth()
	if totalWidth > available {
		usable := available - len(tableSeparator)*(columnCount-1)
		if usable < columnCount*3 {
			usable = columnCount * 3
		}
		for index := range columnWidths {
			columnWidths[index] = (columnWidths[index] * usable) / totalWidth
			if columnWidths[index] < 3 {
				columnWidths[index] = 3
			}
		}
	}

	state.ensureBlankLine()

	if len(headerCells) > 0 {
		bold := state.newStyle().Bold(true).Foreground(state.palette.Heading)
		state.writeOutput(state.consumeLinePrefix() +
			state.formatTableRow(headerCells, columnWidths, alignments, bold))
		state.ensureNewline()

		var separatorParts []string
		for _, width := range columnWidths {
			separatorParts = append(separatorParts, strings.Repeat("─", width))
		}
		borderStyle := state.newStyle().Foreground(state.palette.Border)
		state.writeOutput(state.linePrefix +
			borderStyle.Render(strings.Join(separatorParts, tableSeparator)))
		state.ensureNewline()
	}

	for _, row := range bodyRows {
		state.writeOutput(state.linePrefix +
			state.formatTableRow(row, columnWidths, alignments, state.newStyle()))
		state.ensureNewline()
	}

	state.ensureBlankLine()
}

// collectTableRow extracts cell content strings from a row node.
func (state *renderState) collectTableRow(row ast.Node) []string {
	var cells []string
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		if cell.Kind() == extast.KindTableCell {
			cells = append(cells, state.renderInlineContent(cell))
		}
	}
	return cells
}

// formatTableRow formats a single row with padded, aligned columns.
// Cells wider than their column are truncated with an ellipsis.
func (state *renderState) formatTableRow(
	cells []string,
	columnWidths []int,
	alignments []extast.Alignment,
	baseStyle lipgloss.Style,
) string {
	var parts []string
	for index, width := range columnWidths {
		var cell string
		if index < len(cells) {
			cell = cells[index]
		}

		visibleWidth := lipgloss.Width(cell)
		if visibleWidth > width {
			cell = ansi.Truncate(cell, width, "…")
			visibleWidth = lipgloss.Width(cell)
		}

		padding := width - visibleWidth
		if padding < 0 {
			padding = 0
		}

		var alignment extast.Alignment
		if index < len(alignments) {
			alignment = alignments[index]
		}

		switch alignment {
		case extast.AlignRight:
			cell = strings.Repeat(" ", padding) + cell
		case extast.AlignCenter:
			leftPad := padding / 2
			cell = strings.Repeat(" ", leftPad) + cell + strings.Repeat(" ", padding-leftPad)
		default: // Left or unset.
			cell = cell + strings.Repeat(" ", padding)
		}
		parts = append(parts, cell)
	}
	return baseStyle.Render(strings.Join(parts, tableSeparator))
}
