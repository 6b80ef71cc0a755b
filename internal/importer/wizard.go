package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/wesm/wahistory/internal/chat"
	"github.com/wesm/wahistory/internal/phone"
	"github.com/wesm/wahistory/internal/source"
)

// Step is a stage of the import wizard.
type Step int

const (
	StepSelect Step = iota
	StepPhoneNumbers
	StepPreview
	StepConfirmed
)

func (s Step) String() string {
	switch s {
	case StepSelect:
		return "select"
	case StepPhoneNumbers:
		return "phone-numbers"
	case StepPreview:
		return "preview"
	case StepConfirmed:
		return "confirmed"
	}
	return fmt.Sprintf("Step(%d)", int(s))
}

// PhoneIndex reports which phone numbers already have a chat.
type PhoneIndex interface {
	PhoneNumbers(ctx context.Context) (map[string]bool, error)
}

// Committer persists confirmed chats. *store.Store implements it together
// with PhoneIndex.
type Committer interface {
	SaveChats(ctx context.Context, chats []chat.Chat) error
}

// ScanFunc lists the exports available on the server side.
type ScanFunc func() ([]source.ImportFile, error)

// IntakeSkip is a candidate that was not added, with the reason.
type IntakeSkip struct {
	Name string
	Err  error
}

// IntakeReport is the outcome of adding candidates.
type IntakeReport struct {
	Added   []source.ImportFile
	Skipped []IntakeSkip
}

// Message is the summary shown when nothing could be added, or "".
func (r IntakeReport) Message() string {
	if len(r.Added) > 0 || len(r.Skipped) == 0 {
		return ""
	}
	return fmt.Sprintf(`All %d file(s) were skipped. Make sure files are named like "WhatsApp Chat - +1234567890.txt" or contain phone numbers.`, len(r.Skipped))
}

// Wizard is the interactive import flow: select files, fill in missing
// phone numbers, preview the extracted chats, confirm. Every method holds
// the wizard's lock for its whole duration, so user actions never
// interleave.
type Wizard struct {
	phones    PhoneIndex
	committer Committer
	extractor *Extractor
	scan      ScanFunc
	logger    *slog.Logger

	mu        sync.Mutex
	step      Step
	available []source.ImportFile
	selected  map[string]bool
	preview   *Result
}

// NewWizard returns a wizard in the select step. scan may be nil when no
// server-side directory is configured.
func NewWizard(phones PhoneIndex, committer Committer, extractor *Extractor, scan ScanFunc, logger *slog.Logger) *Wizard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Wizard{
		phones:    phones,
		committer: committer,
		extractor: extractor,
		scan:      scan,
		logger:    logger,
		selected:  make(map[string]bool),
	}
}

// Open resets the wizard and lists the server-side exports whose phone
// number has no chat yet.
func (w *Wizard) Open(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reset()

	if w.scan == nil {
		return nil
	}
	files, err := w.scan()
	if err != nil {
		w.logger.Warn("scan for exports failed", "error", err)
		return nil
	}
	existing, err := w.existing(ctx)
	if err != nil {
		return err
	}
	for _, f := range files {
		if p := f.PhoneNumber(); p != "" && existing[p] {
			continue
		}
		w.available = append(w.available, f)
	}
	return nil
}

func (w *Wizard) reset() {
	w.step = StepSelect
	w.available = nil
	w.selected = make(map[string]bool)
	w.preview = nil
}

func (w *Wizard) existing(ctx context.Context) (map[string]bool, error) {
	if w.phones == nil {
		return map[string]bool{}, nil
	}
	existing, err := w.phones.PhoneNumbers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load existing phone numbers: %w", err)
	}
	return existing, nil
}

// AddCandidates validates dropped or picked files and adds the accepted
// ones, already selected. A rejected file does not stop the others.
func (w *Wizard) AddCandidates(ctx context.Context, cs []Candidate) (IntakeReport, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var report IntakeReport
	if w.step != StepSelect {
		return report, ErrWrongStep
	}
	existing, err := w.existing(ctx)
	if err != nil {
		return report, err
	}

	queued := make(map[string]bool)
	ids := make(map[string]bool)
	for _, f := range w.available {
		ids[f.ID()] = true
		if !f.NeedsPhoneNumber() {
			if p := f.PhoneNumber(); p != "" {
				queued[p] = true
			}
		}
	}

	for _, c := range cs {
		f, err := Validate(ctx, c, existing, queued)
		if err == nil && ids[f.ID()] {
			err = fmt.Errorf("%s: already added", f.Name)
		}
		if err != nil {
			w.logger.Debug("import candidate skipped", "file", c.Name, "error", err)
			report.Skipped = append(report.Skipped, IntakeSkip{Name: c.Name, Err: err})
			continue
		}
		if !f.NeedsPhoneNumber() {
			queued[f.PhoneNumber()] = true
		}
		ids[f.ID()] = true
		w.available = append(w.available, f)
		w.selected[f.ID()] = true
		report.Added = append(report.Added, f)
	}
	return report, nil
}

// Toggle flips the selection of one file.
func (w *Wizard) Toggle(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepSelect {
		return ErrWrongStep
	}
	if w.index(id) < 0 {
		return fmt.Errorf("unknown file %q", id)
	}
	if w.selected[id] {
		delete(w.selected, id)
	} else {
		w.selected[id] = true
	}
	return nil
}

// ToggleAll selects every file, or clears the selection when every file
// is already selected.
func (w *Wizard) ToggleAll() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepSelect {
		return ErrWrongStep
	}
	if len(w.selected) == len(w.available) {
		w.selected = make(map[string]bool)
		return nil
	}
	for _, f := range w.available {
		w.selected[f.ID()] = true
	}
	return nil
}

// Remove drops a file from the list and the selection.
func (w *Wizard) Remove(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepSelect {
		return ErrWrongStep
	}
	i := w.index(id)
	if i < 0 {
		return fmt.Errorf("unknown file %q", id)
	}
	w.available = append(w.available[:i], w.available[i+1:]...)
	delete(w.selected, id)
	return nil
}

// SetPhoneNumber records the number the user typed for a contact-name
// export.
func (w *Wizard) SetPhoneNumber(id, phoneNumber string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepSelect && w.step != StepPhoneNumbers {
		return ErrWrongStep
	}
	i := w.index(id)
	if i < 0 {
		return fmt.Errorf("unknown file %q", id)
	}
	if !w.available[i].IsPending() {
		return fmt.Errorf("%s already has phone number %s", id, w.available[i].PhoneNumber())
	}
	w.available[i] = w.available[i].WithProvidedPhone(phoneNumber)
	return nil
}

// Proceed leaves the select step: to the phone-number step when a selected
// file still needs a number, otherwise straight to extraction and preview.
// It returns the extraction result when one was run.
func (w *Wizard) Proceed(ctx context.Context) (*Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepSelect {
		return nil, ErrWrongStep
	}
	sel := w.selectedFiles()
	if len(sel) == 0 {
		return nil, ErrNothingSelected
	}
	for _, f := range sel {
		if f.IsPending() {
			w.step = StepPhoneNumbers
			return nil, nil
		}
	}
	return w.extract(ctx, sel)
}

// SubmitPhoneNumbers checks the numbers entered for the selected
// contact-name exports and, when they are all present and unused, runs
// extraction.
func (w *Wizard) SubmitPhoneNumbers(ctx context.Context) (*Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepPhoneNumbers {
		return nil, ErrWrongStep
	}
	sel := w.selectedFiles()

	var missing int
	var provided []string
	for _, f := range sel {
		if !f.IsPending() {
			continue
		}
		p := f.PhoneNumber()
		if !phone.Validate(p) {
			missing++
			continue
		}
		provided = append(provided, p)
	}
	if missing > 0 {
		return nil, &MissingPhoneNumbersError{Count: missing}
	}

	existing, err := w.existing(ctx)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]bool, len(existing))
	for p := range existing {
		taken[p] = true
	}
	for _, f := range sel {
		if !f.IsPending() {
			taken[f.PhoneNumber()] = true
		}
	}
	var dups []string
	seen := make(map[string]bool)
	for _, p := range provided {
		if (taken[p] || seen[p]) && !slices.Contains(dups, p) {
			dups = append(dups, p)
		}
		seen[p] = true
	}
	if len(dups) > 0 {
		return nil, &DuplicatePhonesError{Phones: dups}
	}

	for i, f := range w.available {
		if w.selected[f.ID()] {
			w.available[i] = f.Resolve()
		}
	}
	return w.extract(ctx, w.selectedFiles())
}

// extract runs the extractor and moves to the preview step. When nothing
// could be extracted the wizard stays where it was.
func (w *Wizard) extract(ctx context.Context, files []source.ImportFile) (*Result, error) {
	if w.extractor == nil {
		return nil, errors.New("no extractor configured")
	}
	result, err := w.extractor.Extract(ctx, files)
	if err != nil {
		return result, err
	}
	w.preview = result
	w.step = StepPreview
	return result, nil
}

// Back returns to the select step and discards any preview.
func (w *Wizard) Back() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.step = StepSelect
	w.preview = nil
}

// Confirm saves the previewed chats. On failure the preview is kept so the
// user can retry; on success the wizard is reset.
func (w *Wizard) Confirm(ctx context.Context) ([]chat.Chat, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepPreview || w.preview == nil {
		return nil, ErrWrongStep
	}
	if w.committer == nil {
		return nil, errors.New("no committer configured")
	}
	chats := w.preview.Chats
	if err := w.committer.SaveChats(ctx, chats); err != nil {
		w.logger.Error("save imported chats failed", "chats", len(chats), "error", err)
		return nil, fmt.Errorf("save chats: %w", err)
	}
	w.reset()
	w.step = StepConfirmed
	return chats, nil
}

// Preview returns the extraction result shown in the preview step.
func (w *Wizard) Preview() *Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.preview
}

// Step returns the current step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Files returns a copy of the available files.
func (w *Wizard) Files() []source.ImportFile {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]source.ImportFile(nil), w.available...)
}

// Selected returns the selected files in list order.
func (w *Wizard) Selected() []source.ImportFile {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selectedFiles()
}

// PendingFiles returns the selected files that still need a phone number.
func (w *Wizard) PendingFiles() []source.ImportFile {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []source.ImportFile
	for _, f := range w.selectedFiles() {
		if f.NeedsPhoneNumber() {
			out = append(out, f)
		}
	}
	return out
}

func (w *Wizard) selectedFiles() []source.ImportFile {
	var out []source.ImportFile
	for _, f := range w.available {
		if w.selected[f.ID()] {
			out = append(out, f)
		}
	}
	return out
}

func (w *Wizard) index(id string) int {
	for i, f := range w.available {
		if f.ID() == id {
			return i
		}
	}
	return -1
}
