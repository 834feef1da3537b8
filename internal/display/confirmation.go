package display

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ConfirmationDialog is an interactive prompt used before operations that
// mutate backup state, such as restores, deletes and retention cleanup.
type ConfirmationDialog struct {
	Title          string
	Message        string
	Options        []ConfirmationOption
	DefaultOption  int
	IsDestructive  bool
	ShowWarning    bool
	WarningMessage string
	Details        []string
	colorSystem    ColorSystem
	iconSystem     IconSystem
	theme          ColorTheme
	writer         io.Writer
	reader         *bufio.Reader
}

// ConfirmationOption is a single selectable answer in a dialog.
type ConfirmationOption struct {
	Key         string
	Label       string
	Description string
	IsDefault   bool
	IsCancel    bool
}

// ConfirmationResult reports what the user chose.
type ConfirmationResult struct {
	Confirmed   bool
	SelectedKey string
	ShowDetails bool
	Cancelled   bool
}

// NewConfirmationDialog creates a dialog reading from stdin. Until an option
// is marked as default, empty input reprompts instead of picking one.
func NewConfirmationDialog(colorSystem ColorSystem, iconSystem IconSystem, theme ColorTheme, writer io.Writer) *ConfirmationDialog {
	return &ConfirmationDialog{
		DefaultOption: -1,
		colorSystem:   colorSystem,
		iconSystem:    iconSystem,
		theme:         theme,
		writer:        writer,
		reader:        bufio.NewReader(os.Stdin),
	}
}

// SetReader replaces the input source. Used by the confirmation service and
// by tests to drive the dialog without a terminal.
func (cd *ConfirmationDialog) SetReader(r io.Reader) *ConfirmationDialog {
	cd.reader = bufio.NewReader(r)
	return cd
}

// SetTitle sets the dialog title.
func (cd *ConfirmationDialog) SetTitle(title string) *ConfirmationDialog {
	cd.Title = title
	return cd
}

// SetMessage sets the main message.
func (cd *ConfirmationDialog) SetMessage(message string) *ConfirmationDialog {
	cd.Message = message
	return cd
}

// AddOption adds a selectable answer. Keys "n" and "no" are treated as
// cancel answers regardless of casing.
func (cd *ConfirmationDialog) AddOption(key, label, description string, isDefault bool) *ConfirmationDialog {
	lower := strings.ToLower(key)
	option := ConfirmationOption{
		Key:         key,
		Label:       label,
		Description: description,
		IsDefault:   isDefault,
		IsCancel:    lower == "n" || lower == "no",
	}
	cd.Options = append(cd.Options, option)

	if isDefault {
		cd.DefaultOption = len(cd.Options) - 1
	}

	return cd
}

// AddCancelOption adds an answer that counts as cancelling the operation.
func (cd *ConfirmationDialog) AddCancelOption(key, label, description string, isDefault bool) *ConfirmationDialog {
	option := ConfirmationOption{
		Key:         key,
		Label:       label,
		Description: description,
		IsDefault:   isDefault,
		IsCancel:    true,
	}
	cd.Options = append(cd.Options, option)

	if isDefault {
		cd.DefaultOption = len(cd.Options) - 1
	}

	return cd
}

// SetDestructive marks the dialog as guarding a destructive operation.
func (cd *ConfirmationDialog) SetDestructive(isDestructive bool) *ConfirmationDialog {
	cd.IsDestructive = isDestructive
	return cd
}

// SetWarning attaches a warning line shown above the message.
func (cd *ConfirmationDialog) SetWarning(message string) *ConfirmationDialog {
	cd.ShowWarning = true
	cd.WarningMessage = message
	return cd
}

// AddDetails appends detail lines available through the "d" answer.
func (cd *ConfirmationDialog) AddDetails(details ...string) *ConfirmationDialog {
	cd.Details = append(cd.Details, details...)
	return cd
}

// Show renders the dialog and blocks until the user picks a valid answer.
func (cd *ConfirmationDialog) Show() (*ConfirmationResult, error) {
	for {
		cd.render()

		input, err := cd.readInput()
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}

		result := cd.parseInput(input)
		if result != nil {
			return result, nil
		}

		cd.showError("Invalid input. Please try again.")
		fmt.Fprintln(cd.writer)
	}
}

func (cd *ConfirmationDialog) render() {
	fmt.Fprintln(cd.writer)

	if cd.Title != "" {
		cd.renderTitle()
	}

	if cd.IsDestructive {
		cd.renderDestructiveWarning()
	}

	if cd.ShowWarning && cd.WarningMessage != "" {
		cd.renderWarning()
	}

	if cd.Message != "" {
		fmt.Fprintln(cd.writer, cd.Message)
		fmt.Fprintln(cd.writer)
	}

	cd.renderOptions()
	cd.renderPrompt()
}

func (cd *ConfirmationDialog) renderTitle() {
	titleIcon := cd.iconSystem.RenderIcon("info")
	title := fmt.Sprintf("%s %s", titleIcon, cd.Title)

	if cd.colorSystem.IsColorSupported() {
		title = cd.colorSystem.Colorize(title, cd.theme.Primary)
	}

	fmt.Fprintln(cd.writer, title)
	fmt.Fprintln(cd.writer, cd.rule(len(cd.Title)+4))
	fmt.Fprintln(cd.writer)
}

func (cd *ConfirmationDialog) renderDestructiveWarning() {
	warningIcon := cd.iconSystem.RenderIcon("warning")
	warningText := fmt.Sprintf("%s DESTRUCTIVE OPERATION", warningIcon)

	if cd.colorSystem.IsColorSupported() {
		warningText = cd.colorSystem.Colorize(warningText, cd.theme.Error)
	}

	fmt.Fprintln(cd.writer, warningText)
	fmt.Fprintln(cd.writer, "This operation may result in data loss. Please review carefully.")
	fmt.Fprintln(cd.writer)
}

func (cd *ConfirmationDialog) renderWarning() {
	warningIcon := cd.iconSystem.RenderIcon("warning")
	warningText := fmt.Sprintf("%s %s", warningIcon, cd.WarningMessage)

	if cd.colorSystem.IsColorSupported() {
		warningText = cd.colorSystem.Colorize(warningText, cd.theme.Warning)
	}

	fmt.Fprintln(cd.writer, warningText)
	fmt.Fprintln(cd.writer)
}

func (cd *ConfirmationDialog) renderOptions() {
	if len(cd.Options) == 0 {
		return
	}

	fmt.Fprintln(cd.writer, "Options:")

	for _, option := range cd.Options {
		cd.renderOption(option)
	}

	if len(cd.Details) > 0 {
		cd.renderOption(ConfirmationOption{
			Key:         "d",
			Label:       "details",
			Description: "Show detailed information",
		})
	}

	fmt.Fprintln(cd.writer)
}

func (cd *ConfirmationDialog) renderOption(option ConfirmationOption) {
	keyDisplay := fmt.Sprintf("[%s]", option.Key)

	if option.IsDefault {
		if cd.colorSystem.IsColorSupported() {
			keyDisplay = cd.colorSystem.Colorize(keyDisplay, cd.theme.Highlight)
		} else {
			keyDisplay = fmt.Sprintf("%s (default)", keyDisplay)
		}
	}

	var color Color
	switch {
	case option.IsCancel:
		color = cd.theme.Muted
	case option.IsDefault:
		color = cd.theme.Success
	default:
		color = cd.theme.Info
	}

	optionText := fmt.Sprintf("  %s %s", keyDisplay, option.Label)
	if cd.colorSystem.IsColorSupported() {
		optionText = cd.colorSystem.Colorize(optionText, color)
	}

	fmt.Fprintln(cd.writer, optionText)

	if option.Description != "" {
		description := fmt.Sprintf("      %s", option.Description)
		if cd.colorSystem.IsColorSupported() {
			description = cd.colorSystem.Colorize(description, cd.theme.Muted)
		}
		fmt.Fprintln(cd.writer, description)
	}
}

func (cd *ConfirmationDialog) renderPrompt() {
	var keys []string
	for _, option := range cd.Options {
		if option.IsDefault {
			keys = append(keys, strings.ToUpper(option.Key))
		} else {
			keys = append(keys, option.Key)
		}
	}

	if len(cd.Details) > 0 {
		keys = append(keys, "d")
	}

	promptText := fmt.Sprintf("Choose [%s]: ", strings.Join(keys, "/"))

	if cd.colorSystem.IsColorSupported() {
		promptText = cd.colorSystem.Colorize(promptText, cd.theme.Primary)
	}

	fmt.Fprint(cd.writer, promptText)
}

func (cd *ConfirmationDialog) readInput() (string, error) {
	input, err := cd.reader.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", err
	}

	return strings.TrimSpace(input), nil
}

// parseInput maps an answer to a result. A nil return means the input was
// not recognized and the dialog should reprompt.
func (cd *ConfirmationDialog) parseInput(input string) *ConfirmationResult {
	input = strings.ToLower(strings.TrimSpace(input))

	if input == "" {
		if cd.DefaultOption < 0 || cd.DefaultOption >= len(cd.Options) {
			return nil
		}
		defaultOption := cd.Options[cd.DefaultOption]
		return &ConfirmationResult{
			Confirmed:   !defaultOption.IsCancel,
			SelectedKey: defaultOption.Key,
			Cancelled:   defaultOption.IsCancel,
		}
	}

	if (input == "d" || input == "details") && len(cd.Details) > 0 {
		cd.showDetails()
		return nil
	}

	for _, option := range cd.Options {
		if strings.ToLower(option.Key) == input || strings.ToLower(option.Label) == input {
			return &ConfirmationResult{
				Confirmed:   !option.IsCancel,
				SelectedKey: option.Key,
				Cancelled:   option.IsCancel,
			}
		}
	}

	return nil
}

func (cd *ConfirmationDialog) showDetails() {
	fmt.Fprintln(cd.writer)

	detailsIcon := cd.iconSystem.RenderIcon("info")
	title := fmt.Sprintf("%s Detailed Information", detailsIcon)

	if cd.colorSystem.IsColorSupported() {
		title = cd.colorSystem.Colorize(title, cd.theme.Info)
	}

	fmt.Fprintln(cd.writer, title)
	fmt.Fprintln(cd.writer, cd.rule(30))

	for i, detail := range cd.Details {
		fmt.Fprintf(cd.writer, "%d. %s\n", i+1, detail)
	}

	fmt.Fprintln(cd.writer, cd.rule(30))
	fmt.Fprintln(cd.writer)
}

func (cd *ConfirmationDialog) showError(message string) {
	errorIcon := cd.iconSystem.RenderIcon("error")
	errorText := fmt.Sprintf("%s %s", errorIcon, message)

	if cd.colorSystem.IsColorSupported() {
		errorText = cd.colorSystem.Colorize(errorText, cd.theme.Error)
	}

	fmt.Fprintln(cd.writer, errorText)
}

// rule returns a horizontal separator matching the terminal's charset.
func (cd *ConfirmationDialog) rule(width int) string {
	ch := "─"
	if !cd.iconSystem.IsUnicodeSupported() {
		ch = "-"
	}
	return strings.Repeat(ch, width)
}

// ConfirmationBuilder assembles dialogs fluently. Command handlers use it to
// build the restore, delete and cleanup prompts.
type ConfirmationBuilder struct {
	dialog *ConfirmationDialog
}

// NewConfirmationBuilder creates a builder around a fresh dialog.
func NewConfirmationBuilder(colorSystem ColorSystem, iconSystem IconSystem, theme ColorTheme, writer io.Writer) *ConfirmationBuilder {
	return &ConfirmationBuilder{
		dialog: NewConfirmationDialog(colorSystem, iconSystem, theme, writer),
	}
}

// Title sets the dialog title.
func (cb *ConfirmationBuilder) Title(title string) *ConfirmationBuilder {
	cb.dialog.SetTitle(title)
	return cb
}

// Message sets the main message.
func (cb *ConfirmationBuilder) Message(message string) *ConfirmationBuilder {
	cb.dialog.SetMessage(message)
	return cb
}

// YesNo adds yes/no answers with no as the safe default.
func (cb *ConfirmationBuilder) YesNo() *ConfirmationBuilder {
	cb.dialog.AddOption("y", "yes", "Proceed with the operation", false)
	cb.dialog.AddOption("n", "no", "Cancel the operation", true)
	return cb
}

// YesNoDefault adds yes/no answers with yes as the default.
func (cb *ConfirmationBuilder) YesNoDefault() *ConfirmationBuilder {
	cb.dialog.AddOption("y", "yes", "Proceed with the operation", true)
	cb.dialog.AddOption("n", "no", "Cancel the operation", false)
	return cb
}

// Option adds a custom answer.
func (cb *ConfirmationBuilder) Option(key, label, description string, isDefault bool) *ConfirmationBuilder {
	cb.dialog.AddOption(key, label, description, isDefault)
	return cb
}

// CancelOption adds a custom cancel answer.
func (cb *ConfirmationBuilder) CancelOption(key, label, description string, isDefault bool) *ConfirmationBuilder {
	cb.dialog.AddCancelOption(key, label, description, isDefault)
	return cb
}

// Destructive marks the dialog as guarding a destructive operation.
func (cb *ConfirmationBuilder) Destructive() *ConfirmationBuilder {
	cb.dialog.SetDestructive(true)
	return cb
}

// Warning attaches a warning line.
func (cb *ConfirmationBuilder) Warning(message string) *ConfirmationBuilder {
	cb.dialog.SetWarning(message)
	return cb
}

// Details appends detail lines.
func (cb *ConfirmationBuilder) Details(details ...string) *ConfirmationBuilder {
	cb.dialog.AddDetails(details...)
	return cb
}

// Reader replaces the input source on the underlying dialog.
func (cb *ConfirmationBuilder) Reader(r io.Reader) *ConfirmationBuilder {
	cb.dialog.SetReader(r)
	return cb
}

// Build returns the configured dialog.
func (cb *ConfirmationBuilder) Build() *ConfirmationDialog {
	return cb.dialog
}

// Show builds and runs the dialog.
func (cb *ConfirmationBuilder) Show() (*ConfirmationResult, error) {
	return cb.dialog.Show()
}
