package display

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// OutputFormatter defines the interface for different output format renderers
type OutputFormatter interface {
	FormatSection(title string, content interface{}) (string, error)
	FormatTable(headers []string, rows [][]string) (string, error)
	FormatSummary(summary *Summary) (string, error)
	FormatStatusMessage(level, message string) (string, error)
}

// JSONFormatter implements OutputFormatter for JSON output
type JSONFormatter struct {
	indent string
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{
		indent: "  ",
	}
}

// FormatSection formats a section as JSON
func (f *JSONFormatter) FormatSection(title string, content interface{}) (string, error) {
	data := map[string]interface{}{
		"section": title,
		"content": content,
	}

	jsonData, err := json.MarshalIndent(data, "", f.indent)
	if err != nil {
		return "", fmt.Errorf("failed to marshal section to JSON: %w", err)
	}

	return string(jsonData), nil
}

// FormatTable formats a table as JSON, one object per row keyed by header
func (f *JSONFormatter) FormatTable(headers []string, rows [][]string) (string, error) {
	var data []map[string]string

	for _, row := range rows {
		rowMap := make(map[string]string)
		for i, header := range headers {
			if i < len(row) {
				rowMap[header] = row[i]
			} else {
				rowMap[header] = ""
			}
		}
		data = append(data, rowMap)
	}

	jsonData, err := json.MarshalIndent(data, "", f.indent)
	if err != nil {
		return "", fmt.Errorf("failed to marshal table to JSON: %w", err)
	}

	return string(jsonData), nil
}

// FormatSummary formats a summary as JSON
func (f *JSONFormatter) FormatSummary(summary *Summary) (string, error) {
	fields := make(map[string]string, len(summary.Fields))
	for _, field := range summary.Fields {
		fields[field.Label] = field.Value
	}

	data := map[string]interface{}{
		"summary": summary.Title,
		"fields":  fields,
	}

	jsonData, err := json.MarshalIndent(data, "", f.indent)
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary to JSON: %w", err)
	}

	return string(jsonData), nil
}

// FormatStatusMessage formats a status message as JSON
func (f *JSONFormatter) FormatStatusMessage(level, message string) (string, error) {
	data := map[string]string{
		"level":   level,
		"message": message,
	}

	jsonData, err := json.MarshalIndent(data, "", f.indent)
	if err != nil {
		return "", fmt.Errorf("failed to marshal status message to JSON: %w", err)
	}

	return string(jsonData), nil
}

// YAMLFormatter implements OutputFormatter for YAML output
type YAMLFormatter struct{}

// NewYAMLFormatter creates a new YAML formatter
func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

// FormatSection formats a section as YAML
func (f *YAMLFormatter) FormatSection(title string, content interface{}) (string, error) {
	data := map[string]interface{}{
		"section": title,
		"content": content,
	}

	yamlData, err := yaml.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal section to YAML: %w", err)
	}

	return string(yamlData), nil
}

// FormatTable formats a table as YAML
func (f *YAMLFormatter) FormatTable(headers []string, rows [][]string) (string, error) {
	var data []map[string]string

	for _, row := range rows {
		rowMap := make(map[string]string)
		for i, header := range headers {
			if i < len(row) {
				rowMap[header] = row[i]
			} else {
				rowMap[header] = ""
			}
		}
		data = append(data, rowMap)
	}

	yamlData, err := yaml.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal table to YAML: %w", err)
	}

	return string(yamlData), nil
}

// FormatSummary formats a summary as YAML
func (f *YAMLFormatter) FormatSummary(summary *Summary) (string, error) {
	fields := make(map[string]string, len(summary.Fields))
	for _, field := range summary.Fields {
		fields[field.Label] = field.Value
	}

	data := map[string]interface{}{
		"summary": summary.Title,
		"fields":  fields,
	}

	yamlData, err := yaml.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary to YAML: %w", err)
	}

	return string(yamlData), nil
}

// FormatStatusMessage formats a status message as YAML
func (f *YAMLFormatter) FormatStatusMessage(level, message string) (string, error) {
	data := map[string]string{
		"level":   level,
		"message": message,
	}

	yamlData, err := yaml.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal status message to YAML: %w", err)
	}

	return string(yamlData), nil
}

// CompactFormatter implements OutputFormatter for compact/scripting output.
// Output is single-line and machine-parseable so it can be consumed by
// shell pipelines and cron job wrappers.
type CompactFormatter struct {
	separator      string
	includeHeaders bool
}

// NewCompactFormatter creates a new compact formatter with default settings
func NewCompactFormatter() *CompactFormatter {
	return &CompactFormatter{
		separator:      "\t",
		includeHeaders: true,
	}
}

// NewCompactFormatterWithOptions creates a compact formatter with custom options
func NewCompactFormatterWithOptions(separator string, includeHeaders bool) *CompactFormatter {
	return &CompactFormatter{
		separator:      separator,
		includeHeaders: includeHeaders,
	}
}

// FormatSection formats a section in compact format.
// Output format: SECTION:title:key=value,key=value
func (f *CompactFormatter) FormatSection(title string, content interface{}) (string, error) {
	var result strings.Builder
	result.WriteString("SECTION:")
	result.WriteString(title)
	result.WriteString(":")

	switch v := content.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		var pairs []string
		for _, key := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%v", key, v[key]))
		}
		result.WriteString(strings.Join(pairs, ","))
	case string:
		result.WriteString(v)
	default:
		result.WriteString(fmt.Sprintf("%v", content))
	}

	return result.String(), nil
}

// FormatTable formats a table as separator-separated values (TSV by default)
func (f *CompactFormatter) FormatTable(headers []string, rows [][]string) (string, error) {
	var result strings.Builder

	if f.includeHeaders && len(headers) > 0 {
		result.WriteString(strings.Join(headers, f.separator))
		result.WriteString("\n")
	}

	for _, row := range rows {
		// Pad short rows so every line has the same field count
		paddedRow := make([]string, len(headers))
		for i := range headers {
			if i < len(row) {
				paddedRow[i] = row[i]
			} else {
				paddedRow[i] = ""
			}
		}
		result.WriteString(strings.Join(paddedRow, f.separator))
		result.WriteString("\n")
	}

	return result.String(), nil
}

// FormatSummary formats a summary in compact format.
// Output format: SUMMARY:title:label=value,label=value
func (f *CompactFormatter) FormatSummary(summary *Summary) (string, error) {
	pairs := make([]string, 0, len(summary.Fields))
	for _, field := range summary.Fields {
		// Commas in values would break field splitting downstream
		value := strings.ReplaceAll(field.Value, ",", "\\,")
		pairs = append(pairs, fmt.Sprintf("%s=%s", field.Label, value))
	}

	return fmt.Sprintf("SUMMARY:%s:%s", summary.Title, strings.Join(pairs, ",")), nil
}

// FormatStatusMessage formats a status message in compact format.
// Output format: STATUS:level:message
func (f *CompactFormatter) FormatStatusMessage(level, message string) (string, error) {
	return fmt.Sprintf("STATUS:%s:%s", level, message), nil
}

// SetSeparator changes the field separator for table output
func (f *CompactFormatter) SetSeparator(separator string) {
	f.separator = separator
}

// SetIncludeHeaders controls whether table headers are included
func (f *CompactFormatter) SetIncludeHeaders(include bool) {
	f.includeHeaders = include
}

// GetSeparator returns the current field separator
func (f *CompactFormatter) GetSeparator() string {
	return f.separator
}

// GetIncludeHeaders returns whether headers are included
func (f *CompactFormatter) GetIncludeHeaders() bool {
	return f.includeHeaders
}

// FormatterRegistry manages the available output formatters
type FormatterRegistry struct {
	formatters map[OutputFormat]OutputFormatter
}

// NewFormatterRegistry creates a registry with the default formatters registered
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[OutputFormat]OutputFormatter),
	}

	registry.Register(FormatJSON, NewJSONFormatter())
	registry.Register(FormatYAML, NewYAMLFormatter())
	registry.Register(FormatCompact, NewCompactFormatter())

	return registry
}

// Register registers a formatter for a specific output format
func (r *FormatterRegistry) Register(format OutputFormat, formatter OutputFormatter) {
	r.formatters[format] = formatter
}

// GetFormatter returns the formatter for the specified format
func (r *FormatterRegistry) GetFormatter(format OutputFormat) (OutputFormatter, bool) {
	formatter, exists := r.formatters[format]
	return formatter, exists
}

// FormatOutput formats content using the specified format. The outputType
// selects which formatter method handles the data: "section", "table",
// "summary", or "status".
func (r *FormatterRegistry) FormatOutput(format OutputFormat, outputType string, data interface{}) (string, error) {
	formatter, exists := r.GetFormatter(format)
	if !exists {
		return "", fmt.Errorf("unsupported output format: %s", format)
	}

	switch outputType {
	case "section":
		if sectionData, ok := data.(map[string]interface{}); ok {
			if title, titleOk := sectionData["title"].(string); titleOk {
				if content, contentOk := sectionData["content"]; contentOk {
					return formatter.FormatSection(title, content)
				}
			}
		}
		return "", fmt.Errorf("invalid section data format")

	case "table":
		if tableData, ok := data.(map[string]interface{}); ok {
			if headers, headersOk := tableData["headers"].([]string); headersOk {
				if rows, rowsOk := tableData["rows"].([][]string); rowsOk {
					return formatter.FormatTable(headers, rows)
				}
			}
		}
		return "", fmt.Errorf("invalid table data format")

	case "summary":
		if summary, ok := data.(*Summary); ok {
			return formatter.FormatSummary(summary)
		}
		return "", fmt.Errorf("invalid summary data format")

	case "status":
		if statusData, ok := data.(map[string]string); ok {
			if level, levelOk := statusData["level"]; levelOk {
				if message, messageOk := statusData["message"]; messageOk {
					return formatter.FormatStatusMessage(level, message)
				}
			}
		}
		return "", fmt.Errorf("invalid status message data format")

	default:
		return "", fmt.Errorf("unsupported output type: %s", outputType)
	}
}

// OutputWriter provides a unified interface for writing formatted output
type OutputWriter struct {
	registry *FormatterRegistry
	format   OutputFormat
	writer   io.Writer
}

// NewOutputWriter creates a new output writer with the specified format and writer
func NewOutputWriter(format OutputFormat, writer io.Writer) *OutputWriter {
	return &OutputWriter{
		registry: NewFormatterRegistry(),
		format:   format,
		writer:   writer,
	}
}

// WriteSection writes a formatted section
func (w *OutputWriter) WriteSection(title string, content interface{}) error {
	data := map[string]interface{}{
		"title":   title,
		"content": content,
	}

	output, err := w.registry.FormatOutput(w.format, "section", data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(w.writer, output)
	return err
}

// WriteTable writes a formatted table
func (w *OutputWriter) WriteTable(headers []string, rows [][]string) error {
	data := map[string]interface{}{
		"headers": headers,
		"rows":    rows,
	}

	output, err := w.registry.FormatOutput(w.format, "table", data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(w.writer, output)
	return err
}

// WriteSummary writes a formatted summary
func (w *OutputWriter) WriteSummary(summary *Summary) error {
	output, err := w.registry.FormatOutput(w.format, "summary", summary)
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(w.writer, output)
	return err
}

// WriteStatusMessage writes a formatted status message
func (w *OutputWriter) WriteStatusMessage(level, message string) error {
	data := map[string]string{
		"level":   level,
		"message": message,
	}

	output, err := w.registry.FormatOutput(w.format, "status", data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(w.writer, output)
	return err
}

// SetFormat changes the output format
func (w *OutputWriter) SetFormat(format OutputFormat) {
	w.format = format
}

// GetFormat returns the current output format
func (w *OutputWriter) GetFormat() OutputFormat {
	return w.format
}
