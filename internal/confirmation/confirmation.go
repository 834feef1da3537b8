package confirmation

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"backup-orchestrator/internal/display"
)

// ConfirmationService guards operations that mutate backup state. Restores,
// deletes and retention cleanup all pass through Confirm before running.
type ConfirmationService interface {
	// Confirm shows the request and waits for a yes/no answer. With
	// autoApprove set the prompt is skipped and the request is approved.
	Confirm(request *Request, autoApprove bool) (bool, error)

	// DisplaySummary renders the request without prompting.
	DisplaySummary(request *Request)

	// HandleInterruption reports a user interrupt (Ctrl+C) cleanly.
	HandleInterruption()
}

// Request describes the operation awaiting approval.
type Request struct {
	// Action is a short verb phrase, e.g. "Restore Backup".
	Action string

	// Subject identifies what the action applies to, e.g.
	// "full-20260815-030000 (postgres/appdb)".
	Subject string

	// Impact lines summarize what will happen, shown before the prompt.
	Impact []string

	// Details are shown only when the user asks for them.
	Details []string

	// Warnings are always shown.
	Warnings []string

	// Destructive requests render a data-loss banner and never default
	// to yes.
	Destructive bool
}

type confirmationService struct {
	display display.DisplayService
	input   io.Reader
}

// NewService creates a confirmation service rendering through the given
// display service and reading answers from stdin.
func NewService(displayService display.DisplayService) ConfirmationService {
	return &confirmationService{
		display: displayService,
	}
}

// SetInput redirects answer reading, used by tests to script responses.
func (cs *confirmationService) SetInput(r io.Reader) {
	cs.input = r
}

// Confirm renders the request and prompts for approval. A SIGINT or
// SIGTERM while waiting counts as a refusal, not an error.
func (cs *confirmationService) Confirm(request *Request, autoApprove bool) (bool, error) {
	if request == nil {
		return false, fmt.Errorf("confirmation request is nil")
	}

	cs.DisplaySummary(request)

	if autoApprove {
		cs.display.Info("Auto-approval enabled, proceeding without confirmation")
		return true, nil
	}

	if !cs.display.GetConfig().IsInteractiveEnabled() {
		return false, fmt.Errorf("confirmation required for %q but interactive mode is disabled; re-run with --auto-approve", request.Action)
	}

	builder := cs.display.NewConfirmationBuilder().
		Message(cs.promptMessage(request)).
		YesNo()

	if request.Destructive {
		builder.Destructive()
	}
	if len(request.Warnings) > 0 {
		builder.Warning(strings.Join(request.Warnings, "; "))
	}
	if len(request.Details) > 0 {
		builder.Details(request.Details...)
	}
	if cs.input != nil {
		builder.Reader(cs.input)
	}

	dialog := builder.Build()

	interruptChan := make(chan os.Signal, 1)
	signal.Notify(interruptChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interruptChan)

	resultChan := make(chan *display.ConfirmationResult, 1)
	errorChan := make(chan error, 1)

	go func() {
		result, err := dialog.Show()
		if err != nil {
			errorChan <- err
			return
		}
		resultChan <- result
	}()

	select {
	case <-interruptChan:
		cs.HandleInterruption()
		return false, nil

	case err := <-errorChan:
		return false, fmt.Errorf("failed to read confirmation: %w", err)

	case result := <-resultChan:
		if result.Cancelled {
			cs.display.Info(fmt.Sprintf("%s cancelled", request.Action))
		}
		return result.Confirmed, nil
	}
}

// DisplaySummary renders the request as a section: the subject and impact
// lines as bullets, warnings as warning messages.
func (cs *confirmationService) DisplaySummary(request *Request) {
	if request == nil {
		return
	}

	lines := make([]string, 0, len(request.Impact)+1)
	if request.Subject != "" {
		lines = append(lines, request.Subject)
	}
	lines = append(lines, request.Impact...)

	section := display.NewSection(request.Action)
	if len(lines) > 0 {
		section.SetContent(lines)
	}
	cs.display.RenderSection(section)

	for _, warning := range request.Warnings {
		cs.display.Warning(warning)
	}
}

// HandleInterruption reports a user interrupt.
func (cs *confirmationService) HandleInterruption() {
	cs.display.Warning("Operation interrupted, no changes were made")
}

func (cs *confirmationService) promptMessage(request *Request) string {
	if request.Subject != "" {
		return fmt.Sprintf("%s: %s?", request.Action, request.Subject)
	}
	return fmt.Sprintf("%s?", request.Action)
}
