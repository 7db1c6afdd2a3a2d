// Package cli provides styled terminal output for tally commands.
package cli

import (
	"github.com/Veraticus/tally/internal/model"
	"github.com/charmbracelet/lipgloss"
)

// Palette.
var (
	PrimaryColor = lipgloss.Color("#7D56F4")
	SuccessColor = lipgloss.Color("#4ECDC4")
	WarningColor = lipgloss.Color("#FFE66D")
	ErrorColor   = lipgloss.Color("#FF6B6B")
	InfoColor    = lipgloss.Color("#95E1D3")
	SubtleColor  = lipgloss.Color("#666666")
	BorderColor  = lipgloss.Color("#333")
)

var (
	// TitleStyle is used for report and box titles.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor).MarginBottom(1)

	// SubtitleStyle introduces a secondary section of a report.
	SubtitleStyle = lipgloss.NewStyle().Foreground(SubtleColor)

	SuccessStyle = lipgloss.NewStyle().Foreground(SuccessColor)
	WarningStyle = lipgloss.NewStyle().Foreground(WarningColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ErrorColor)
	InfoStyle    = lipgloss.NewStyle().Foreground(InfoColor)

	// BoxStyle frames single-batch details.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(1, 2)

	// TableHeaderStyle underlines the header row of RenderTable.
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(BorderColor)

	// TableCellStyle pads every cell of RenderTable.
	TableCellStyle = lipgloss.NewStyle().PaddingRight(2)

	PromptStyle = lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor)
)

// Icons.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	ChartIcon   = "📊"
)

// FormatSuccess formats a success message with icon.
func FormatSuccess(message string) string {
	return SuccessStyle.Render(SuccessIcon + " " + message)
}

// FormatError formats an error message with icon.
func FormatError(message string) string {
	return ErrorStyle.Render(ErrorIcon + " " + message)
}

// FormatWarning formats a warning message with icon.
func FormatWarning(message string) string {
	return WarningStyle.Render(WarningIcon + " " + message)
}

// FormatInfo formats an info message with icon.
func FormatInfo(message string) string {
	return InfoStyle.Render(InfoIcon + " " + message)
}

// FormatTitle formats a report title.
func FormatTitle(title string) string {
	return TitleStyle.Render(ChartIcon + " " + title)
}

// FormatPrompt formats a question awaiting input.
func FormatPrompt(prompt string) string {
	return PromptStyle.Render(prompt + " → ")
}

// FormatStatus colors an import status by outcome.
func FormatStatus(status model.ImportStatus) string {
	switch status {
	case model.StatusCompleted:
		return SuccessStyle.Render(string(status))
	case model.StatusFailed:
		return ErrorStyle.Render(string(status))
	case model.StatusProcessing:
		return WarningStyle.Render(string(status))
	default:
		return SubtitleStyle.Render(string(status))
	}
}

// FormatBenchmark colors a benchmark comparison status.
func FormatBenchmark(status model.BenchmarkStatus) string {
	switch status {
	case model.BenchmarkAbove, model.BenchmarkMeeting:
		return SuccessStyle.Render(string(status))
	case model.BenchmarkBelow:
		return ErrorStyle.Render(string(status))
	default:
		return SubtitleStyle.Render(string(status))
	}
}

// RenderBox renders content under a title in a rounded box.
func RenderBox(title, content string) string {
	boxTitle := TitleStyle.UnsetMargins().Render(title)
	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, boxTitle, content))
}
