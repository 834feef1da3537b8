package display

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestProgressBarUpdate(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(10, "uploading", &buf, disabledColorSystem(t), DefaultColorTheme())

	bar.Update(5, "")

	output := buf.String()
	if !strings.Contains(output, "50.0%") {
		t.Errorf("Expected 50.0%% in output, got '%s'", output)
	}
	if !strings.Contains(output, "(5/10)") {
		t.Errorf("Expected (5/10) in output, got '%s'", output)
	}
	if !strings.Contains(output, "uploading") {
		t.Errorf("Expected message in output, got '%s'", output)
	}
	if !strings.Contains(output, "█") || !strings.Contains(output, "░") {
		t.Errorf("Expected bar characters in output, got '%s'", output)
	}
}

func TestProgressBarIncrementAndFinish(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(2, "copying", &buf, disabledColorSystem(t), DefaultColorTheme())

	bar.Increment("first chunk")
	if !strings.Contains(buf.String(), "(1/2)") {
		t.Errorf("Expected (1/2) after increment, got '%s'", buf.String())
	}

	buf.Reset()
	bar.Finish("upload complete")

	output := buf.String()
	if !strings.Contains(output, "100.0%") {
		t.Errorf("Expected 100.0%% after finish, got '%s'", output)
	}
	if !strings.Contains(output, "upload complete") {
		t.Errorf("Expected final message, got '%s'", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Error("Expected trailing newline after finish")
	}
}

func TestProgressBarWithoutPercent(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(4, "verify", &buf, disabledColorSystem(t), DefaultColorTheme())
	bar.SetShowPercent(false)

	bar.Update(1, "")

	output := buf.String()
	if strings.Contains(output, "%") {
		t.Errorf("Expected no percentage, got '%s'", output)
	}
	if !strings.Contains(output, "(1/4)") {
		t.Errorf("Expected counts, got '%s'", output)
	}
}

func TestProgressBarZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(0, "empty", &buf, disabledColorSystem(t), DefaultColorTheme())

	// Rendering with a zero total must not divide by zero
	bar.Update(1, "")

	if buf.Len() != 0 {
		t.Errorf("Expected no output for zero total, got '%s'", buf.String())
	}
}

func TestSpinnerLifecycle(t *testing.T) {
	var buf bytes.Buffer
	manager := newSpinnerManager()

	s := manager.createSpinner("dumping database", DefaultSpinnerStyles["line"], &buf, disabledColorSystem(t), DefaultColorTheme())

	if s.IsActive() {
		t.Error("Expected spinner to be inactive before start")
	}

	s.start()
	if !s.IsActive() {
		t.Error("Expected spinner to be active after start")
	}

	// Give the animation loop time to draw at least one frame
	time.Sleep(250 * time.Millisecond)

	s.stop("dump finished")
	if s.IsActive() {
		t.Error("Expected spinner to be inactive after stop")
	}

	output := buf.String()
	if !strings.Contains(output, "dumping database") {
		t.Errorf("Expected spinner message in output, got '%s'", output)
	}
	if !strings.Contains(output, "dump finished") {
		t.Errorf("Expected final message in output, got '%s'", output)
	}

	// Stopping twice is a no-op
	s.stop("again")
}

func TestSpinnerManagerTracking(t *testing.T) {
	var buf bytes.Buffer
	manager := newSpinnerManager()

	s1 := manager.createSpinner("one", DefaultSpinnerStyles["line"], &buf, nil, DefaultColorTheme())
	s2 := manager.createSpinner("two", DefaultSpinnerStyles["line"], &buf, nil, DefaultColorTheme())

	if s1.ID() == s2.ID() {
		t.Error("Expected distinct spinner ids")
	}

	if got := manager.getSpinner(s1); got != s1 {
		t.Error("Expected manager to return the tracked spinner")
	}

	manager.removeSpinner(s1)
	if got := manager.getSpinner(s1); got != nil {
		t.Error("Expected nil after spinner removal")
	}
	if got := manager.getSpinner(s2); got != s2 {
		t.Error("Expected remaining spinner to stay tracked")
	}
}

func TestMultiProgress(t *testing.T) {
	var buf bytes.Buffer
	mp := NewMultiProgress(&buf)

	cs := disabledColorSystem(t)
	bar1 := NewProgressBar(10, "postgres", &buf, cs, DefaultColorTheme())
	bar2 := NewProgressBar(10, "mysql", &buf, cs, DefaultColorTheme())

	mp.AddBar(bar1)
	mp.AddBar(bar2)

	// Render before Start is a no-op
	mp.Render()
	if buf.Len() != 0 {
		t.Errorf("Expected no output before start, got '%s'", buf.String())
	}

	mp.Start()
	bar1.current = 5
	bar2.current = 2
	mp.Render()

	output := buf.String()
	if !strings.Contains(output, "postgres") || !strings.Contains(output, "mysql") {
		t.Errorf("Expected both bars in output, got '%s'", output)
	}

	mp.Stop()
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Error("Expected newline after stop")
	}
}

func TestProgressTrackerPhases(t *testing.T) {
	var buf bytes.Buffer
	phases := []string{"dump", "compress", "upload"}
	tracker := NewProgressTracker(phases, &buf, disabledColorSystem(t), DefaultColorTheme())

	if tracker.GetPhaseCount() != 3 {
		t.Errorf("Expected 3 phases, got %d", tracker.GetPhaseCount())
	}
	if tracker.IsCompleted() {
		t.Error("Expected tracker to start incomplete")
	}

	tracker.StartPhase(0, 100, "dumping schema")
	if tracker.GetCurrentPhase() != 0 {
		t.Errorf("Expected current phase 0, got %d", tracker.GetCurrentPhase())
	}

	output := buf.String()
	if !strings.Contains(output, "Overall: 0% (0/3 phases)") {
		t.Errorf("Expected overall progress line, got '%s'", output)
	}
	if !strings.Contains(output, "dump") {
		t.Errorf("Expected phase name, got '%s'", output)
	}

	buf.Reset()
	tracker.UpdatePhase(50, "half way")
	if !strings.Contains(buf.String(), "50%") {
		t.Errorf("Expected phase percentage, got '%s'", buf.String())
	}

	tracker.CompletePhase("dump done")
	tracker.StartPhase(1, 10, "")
	tracker.CompletePhase("")
	tracker.StartPhase(2, 10, "")
	tracker.CompletePhase("")

	if !tracker.IsCompleted() {
		t.Error("Expected tracker to be completed after all phases")
	}
	if !strings.Contains(buf.String(), "3/3 phases") {
		t.Errorf("Expected all phases completed in output, got '%s'", buf.String())
	}
}

func TestProgressTrackerOutOfRangePhase(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker([]string{"only"}, &buf, disabledColorSystem(t), DefaultColorTheme())

	// Out-of-range indices are ignored rather than panicking
	tracker.StartPhase(5, 10, "bogus")
	if tracker.GetCurrentPhase() != 0 {
		t.Errorf("Expected current phase to stay 0, got %d", tracker.GetCurrentPhase())
	}
}

func TestProgressTrackerEmpty(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(nil, &buf, disabledColorSystem(t), DefaultColorTheme())

	tracker.UpdatePhase(1, "nothing")

	if buf.Len() != 0 {
		t.Errorf("Expected no output for empty tracker, got '%s'", buf.String())
	}
	if !tracker.IsCompleted() {
		t.Error("Expected empty tracker to report completed")
	}
}
