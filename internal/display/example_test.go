package display

import "fmt"

// The compact format is designed for scripting: every statement is a
// single prefixed line, so cron wrappers can grep for SUMMARY or STATUS.
func ExampleNewDisplayService() {
	config := DefaultDisplayConfig()
	config.OutputFormat = string(FormatCompact)
	service := NewDisplayService(config)

	service.PrintSummary(NewSummary("backup").
		Add("id", "full-20260815-030000").
		Add("status", "completed"))

	service.Error("verification failed for full-20260816")

	// Output:
	// SUMMARY:backup:id=full-20260815-030000,status=completed
	// STATUS:ERROR:verification failed for full-20260816
}

func ExampleSummary() {
	summary := NewSummary("verification").
		Add("strategy", "checksum").
		Addf("duration", "%dms", 420)

	for _, field := range summary.Fields {
		fmt.Printf("%s=%s\n", field.Label, field.Value)
	}

	// Output:
	// strategy=checksum
	// duration=420ms
}
