package display

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestJSONFormatterSection(t *testing.T) {
	formatter := NewJSONFormatter()

	output, err := formatter.FormatSection("Destinations", map[string]interface{}{
		"provider": "s3",
		"healthy":  true,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(output), &parsed); err != nil {
		t.Fatalf("Expected valid JSON, got %v:\n%s", err, output)
	}

	if parsed["section"] != "Destinations" {
		t.Errorf("Expected section 'Destinations', got '%v'", parsed["section"])
	}

	content, ok := parsed["content"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected content object, got %T", parsed["content"])
	}
	if content["provider"] != "s3" {
		t.Errorf("Expected provider 's3', got '%v'", content["provider"])
	}
}

func TestJSONFormatterTable(t *testing.T) {
	formatter := NewJSONFormatter()

	output, err := formatter.FormatTable(
		[]string{"id", "status"},
		[][]string{
			{"abc123", "completed"},
			{"def456"},
		},
	)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var parsed []map[string]string
	if err := json.Unmarshal([]byte(output), &parsed); err != nil {
		t.Fatalf("Expected valid JSON, got %v:\n%s", err, output)
	}

	if len(parsed) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(parsed))
	}
	if parsed[0]["id"] != "abc123" || parsed[0]["status"] != "completed" {
		t.Errorf("Unexpected first row: %v", parsed[0])
	}
	// Short rows are padded with empty strings
	if parsed[1]["status"] != "" {
		t.Errorf("Expected empty status for short row, got '%s'", parsed[1]["status"])
	}
}

func TestJSONFormatterSummary(t *testing.T) {
	formatter := NewJSONFormatter()

	summary := NewSummary("Backup Details").
		Add("ID", "abc123").
		Add("Status", "completed")

	output, err := formatter.FormatSummary(summary)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var parsed struct {
		Summary string            `json:"summary"`
		Fields  map[string]string `json:"fields"`
	}
	if err := json.Unmarshal([]byte(output), &parsed); err != nil {
		t.Fatalf("Expected valid JSON, got %v:\n%s", err, output)
	}

	if parsed.Summary != "Backup Details" {
		t.Errorf("Expected summary title 'Backup Details', got '%s'", parsed.Summary)
	}
	if parsed.Fields["ID"] != "abc123" {
		t.Errorf("Expected field ID 'abc123', got '%s'", parsed.Fields["ID"])
	}
	if parsed.Fields["Status"] != "completed" {
		t.Errorf("Expected field Status 'completed', got '%s'", parsed.Fields["Status"])
	}
}

func TestJSONFormatterStatusMessage(t *testing.T) {
	formatter := NewJSONFormatter()

	output, err := formatter.FormatStatusMessage("SUCCESS", "backup completed")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var parsed map[string]string
	if err := json.Unmarshal([]byte(output), &parsed); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	if parsed["level"] != "SUCCESS" || parsed["message"] != "backup completed" {
		t.Errorf("Unexpected status message: %v", parsed)
	}
}

func TestYAMLFormatterSummary(t *testing.T) {
	formatter := NewYAMLFormatter()

	summary := NewSummary("Storage Usage").
		Add("Destination", "s3").
		Add("Used", "4.2 GB")

	output, err := formatter.FormatSummary(summary)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var parsed struct {
		Summary string            `yaml:"summary"`
		Fields  map[string]string `yaml:"fields"`
	}
	if err := yaml.Unmarshal([]byte(output), &parsed); err != nil {
		t.Fatalf("Expected valid YAML, got %v:\n%s", err, output)
	}

	if parsed.Summary != "Storage Usage" {
		t.Errorf("Expected summary title 'Storage Usage', got '%s'", parsed.Summary)
	}
	if parsed.Fields["Used"] != "4.2 GB" {
		t.Errorf("Expected field Used '4.2 GB', got '%s'", parsed.Fields["Used"])
	}
}

func TestYAMLFormatterTable(t *testing.T) {
	formatter := NewYAMLFormatter()

	output, err := formatter.FormatTable(
		[]string{"id", "status"},
		[][]string{{"abc123", "completed"}},
	)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var parsed []map[string]string
	if err := yaml.Unmarshal([]byte(output), &parsed); err != nil {
		t.Fatalf("Expected valid YAML, got %v:\n%s", err, output)
	}
	if len(parsed) != 1 || parsed[0]["id"] != "abc123" {
		t.Errorf("Unexpected YAML table: %v", parsed)
	}
}

func TestCompactFormatterSection(t *testing.T) {
	formatter := NewCompactFormatter()

	output, err := formatter.FormatSection("scheduler", map[string]interface{}{
		"jobs":    3,
		"enabled": true,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// Keys render in sorted order so output is stable
	expected := "SECTION:scheduler:enabled=true,jobs=3"
	if output != expected {
		t.Errorf("Expected '%s', got '%s'", expected, output)
	}
}

func TestCompactFormatterTable(t *testing.T) {
	formatter := NewCompactFormatter()

	output, err := formatter.FormatTable(
		[]string{"id", "status"},
		[][]string{
			{"abc123", "completed"},
			{"def456"},
		},
	)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d:\n%s", len(lines), output)
	}
	if lines[0] != "id\tstatus" {
		t.Errorf("Expected header line 'id\\tstatus', got '%s'", lines[0])
	}
	if lines[1] != "abc123\tcompleted" {
		t.Errorf("Expected row 'abc123\\tcompleted', got '%s'", lines[1])
	}
	// Short rows keep the field count stable for scripting consumers
	if lines[2] != "def456\t" {
		t.Errorf("Expected padded row 'def456\\t', got '%s'", lines[2])
	}
}

func TestCompactFormatterTableWithoutHeaders(t *testing.T) {
	formatter := NewCompactFormatterWithOptions(",", false)

	output, err := formatter.FormatTable(
		[]string{"id", "status"},
		[][]string{{"abc123", "completed"}},
	)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if output != "abc123,completed\n" {
		t.Errorf("Expected 'abc123,completed', got '%s'", output)
	}
}

func TestCompactFormatterSummary(t *testing.T) {
	formatter := NewCompactFormatter()

	summary := NewSummary("backup").
		Add("id", "abc123").
		Add("tags", "db=prod, app=billing")

	output, err := formatter.FormatSummary(summary)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// Commas inside values are escaped so the pair list stays parseable
	expected := `SUMMARY:backup:id=abc123,tags=db=prod\, app=billing`
	if output != expected {
		t.Errorf("Expected '%s', got '%s'", expected, output)
	}
}

func TestCompactFormatterStatusMessage(t *testing.T) {
	formatter := NewCompactFormatter()

	output, err := formatter.FormatStatusMessage("ERROR", "dump tool not found")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if output != "STATUS:ERROR:dump tool not found" {
		t.Errorf("Unexpected status output: '%s'", output)
	}
}

func TestFormatterRegistry(t *testing.T) {
	registry := NewFormatterRegistry()

	for _, format := range []OutputFormat{FormatJSON, FormatYAML, FormatCompact} {
		if _, exists := registry.GetFormatter(format); !exists {
			t.Errorf("Expected formatter registered for %s", format)
		}
	}

	if _, exists := registry.GetFormatter(FormatTable); exists {
		t.Error("Expected no formatter for the table format; tables render directly")
	}
}

func TestFormatterRegistryFormatOutput(t *testing.T) {
	registry := NewFormatterRegistry()

	t.Run("summary", func(t *testing.T) {
		summary := NewSummary("job").Add("id", "abc")
		output, err := registry.FormatOutput(FormatCompact, "summary", summary)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if output != "SUMMARY:job:id=abc" {
			t.Errorf("Unexpected output: '%s'", output)
		}
	})

	t.Run("status", func(t *testing.T) {
		data := map[string]string{"level": "INFO", "message": "starting"}
		output, err := registry.FormatOutput(FormatCompact, "status", data)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if output != "STATUS:INFO:starting" {
			t.Errorf("Unexpected output: '%s'", output)
		}
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := registry.FormatOutput("csv", "status", map[string]string{"level": "x", "message": "y"})
		if err == nil {
			t.Error("Expected error for unsupported format")
		}
	})

	t.Run("unsupported output type", func(t *testing.T) {
		_, err := registry.FormatOutput(FormatJSON, "chart", nil)
		if err == nil {
			t.Error("Expected error for unsupported output type")
		}
	})

	t.Run("invalid summary payload", func(t *testing.T) {
		_, err := registry.FormatOutput(FormatJSON, "summary", "not a summary")
		if err == nil {
			t.Error("Expected error for invalid summary data")
		}
	})
}

func TestOutputWriter(t *testing.T) {
	var buf bytes.Buffer
	writer := NewOutputWriter(FormatCompact, &buf)

	if writer.GetFormat() != FormatCompact {
		t.Errorf("Expected compact format, got %s", writer.GetFormat())
	}

	if err := writer.WriteStatusMessage("SUCCESS", "done"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if buf.String() != "STATUS:SUCCESS:done" {
		t.Errorf("Unexpected writer output: '%s'", buf.String())
	}

	buf.Reset()
	writer.SetFormat(FormatJSON)
	if err := writer.WriteSummary(NewSummary("job").Add("id", "abc")); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("Expected valid JSON after format switch, got %v", err)
	}
	if parsed["summary"] != "job" {
		t.Errorf("Expected summary 'job', got '%v'", parsed["summary"])
	}
}
