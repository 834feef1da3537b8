package display

import (
	"fmt"
	"io"
)

// DisplayService provides centralized formatting and output management for
// the CLI. All terminal output from commands goes through this interface so
// color, icon, and output-format decisions live in one place.
type DisplayService interface {
	// Output formatting
	PrintHeader(title string)
	PrintSection(title string, content interface{})
	PrintTable(headers []string, rows [][]string)
	PrintSummary(summary *Summary)

	// Progress indicators
	StartSpinner(message string) SpinnerHandle
	UpdateSpinner(handle SpinnerHandle, message string)
	StopSpinner(handle SpinnerHandle, finalMessage string)
	ShowProgress(current, total int, message string)

	// Progress bars
	NewProgressBar(total int, message string) *ProgressBar
	NewMultiProgress() *MultiProgress
	NewProgressTracker(phases []string) *ProgressTracker

	// Status messages
	Success(message string)
	Warning(message string)
	Error(message string)
	Info(message string)

	// Icon rendering
	RenderIcon(name string) string
	RenderIconWithColor(name string) string
	GetIconSystem() IconSystem

	// Table formatting
	NewTableFormatter() TableFormatter

	// Section-based output
	NewSectionFormatter() *SectionFormatter
	RenderSection(section *Section)
	RenderSections(sections []*Section)

	// Configuration
	SetOutput(writer io.Writer)
	GetConfig() *DisplayConfig
	SetConfig(config *DisplayConfig)

	// Structured output
	NewOutputWriter(format OutputFormat) *OutputWriter
	GetFormatterRegistry() *FormatterRegistry

	// Interactive confirmation dialogs
	NewConfirmationDialog() *ConfirmationDialog
	NewConfirmationBuilder() *ConfirmationBuilder
}

// OutputFormat represents different output format options
type OutputFormat string

const (
	FormatTable   OutputFormat = "table"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
	FormatCompact OutputFormat = "compact"
)

// Summary is a titled, ordered list of label/value pairs. Job details,
// backup statistics, and storage usage reports are all rendered through it.
type Summary struct {
	Title  string
	Fields []SummaryField
}

// SummaryField is a single labelled value within a Summary.
type SummaryField struct {
	Label string
	Value string
}

// NewSummary creates an empty summary with the given title.
func NewSummary(title string) *Summary {
	return &Summary{Title: title}
}

// Add appends a label/value pair and returns the summary for chaining.
func (s *Summary) Add(label, value string) *Summary {
	s.Fields = append(s.Fields, SummaryField{Label: label, Value: value})
	return s
}

// Addf appends a formatted value.
func (s *Summary) Addf(label, format string, args ...interface{}) *Summary {
	return s.Add(label, fmt.Sprintf(format, args...))
}

// Color represents terminal color options
type Color int

const (
	ColorReset Color = iota
	ColorBlack
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorWhite
	ColorBrightRed
	ColorBrightGreen
	ColorBrightYellow
	ColorBrightBlue
	ColorBrightMagenta
	ColorBrightCyan
	ColorBrightWhite
)

// ColorTheme defines the color scheme for different message types
type ColorTheme struct {
	Primary   Color
	Success   Color
	Warning   Color
	Error     Color
	Info      Color
	Muted     Color
	Highlight Color
}

// DefaultColorTheme returns the standard theme used when no theme is configured
func DefaultColorTheme() ColorTheme {
	return ColorTheme{
		Primary:   ColorBlue,
		Success:   ColorGreen,
		Warning:   ColorYellow,
		Error:     ColorRed,
		Info:      ColorCyan,
		Muted:     ColorWhite,
		Highlight: ColorBrightBlue,
	}
}

// SpinnerHandle represents a handle to a running spinner
type SpinnerHandle interface {
	ID() string
	IsActive() bool
}

// SpinnerStyle defines the visual style of a spinner
type SpinnerStyle struct {
	Frames []string
	Delay  int // milliseconds between frames
}

// DefaultSpinnerStyles provides common spinner styles
var DefaultSpinnerStyles = map[string]SpinnerStyle{
	"dots": {
		Frames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		Delay:  80,
	},
	"line": {
		Frames: []string{"-", "\\", "|", "/"},
		Delay:  100,
	},
	"arrow": {
		Frames: []string{"←", "↖", "↑", "↗", "→", "↘", "↓", "↙"},
		Delay:  120,
	},
}
