package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	ColorPrimary   = lipgloss.Color("39")  // Cyan
	ColorSecondary = lipgloss.Color("212") // Pink
	ColorSuccess   = lipgloss.Color("82")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorError     = lipgloss.Color("196") // Red
	ColorMuted     = lipgloss.Color("245") // Gray
	ColorHighlight = lipgloss.Color("226") // Yellow
)

// Styles for various UI elements
var (
	// Text styles
	Bold      = lipgloss.NewStyle().Bold(true)
	Italic    = lipgloss.NewStyle().Italic(true)
	Dim       = lipgloss.NewStyle().Foreground(ColorMuted)
	Highlight = lipgloss.NewStyle().Foreground(ColorHighlight)
	Header    = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)

	// Status styles
	Success = lipgloss.NewStyle().Foreground(ColorSuccess)
	Warning = lipgloss.NewStyle().Foreground(ColorWarning)
	Error   = lipgloss.NewStyle().Foreground(ColorError)

	// Code styles
	Code     = lipgloss.NewStyle().Foreground(ColorPrimary)
	FilePath = lipgloss.NewStyle().Foreground(ColorPrimary)
	LineNum  = lipgloss.NewStyle().Foreground(ColorMuted)

	// Search result styles
	ResultHeader = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)
	ResultScore = lipgloss.NewStyle().
			Foreground(ColorSuccess)
	ResultContent = lipgloss.NewStyle().
			Foreground(ColorMuted).
			PaddingLeft(2)

	// Section styles
	SectionTitle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true).
			MarginTop(1)
	Divider = lipgloss.NewStyle().
		Foreground(ColorMuted)

	// Table styles
	TableHeader = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true).
			PaddingRight(2)
	TableCell = lipgloss.NewStyle().
			PaddingRight(2)
)

// HorizontalRule returns a styled horizontal divider.
func HorizontalRule(width int) string {
	return Divider.Render(strings.Repeat("─", width))
}

// FormatFilePath formats a file path with line numbers.
func FormatFilePath(path string, startLine, endLine int) string {
	return FilePath.Render(path) + LineNum.Render(fmt.Sprintf(":%d-%d", startLine, endLine))
}

// FormatScore formats a similarity score with four decimals.
func FormatScore(score float64) string {
	return ResultScore.Render(fmt.Sprintf("(score %.4f)", score))
}

// Table renders rows under a header with aligned columns.
func Table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	renderRow := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = style.Width(widths[i] + 2).Render(cell)
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	}

	lines := []string{renderRow(header, TableHeader)}
	for _, row := range rows {
		lines = append(lines, renderRow(row, TableCell))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
