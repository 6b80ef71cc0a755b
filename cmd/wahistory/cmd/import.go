package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wesm/wahistory/internal/importer"
	"github.com/wesm/wahistory/internal/source"
	"github.com/wesm/wahistory/internal/store"
	"github.com/wesm/wahistory/internal/textutil"
	"github.com/wesm/wahistory/internal/whatsapp"
)

var (
	importScan     bool
	importAuto     bool
	importYes      bool
	importPhones   []string
	importContacts string
)

var importCmd = &cobra.Command{
	Use:   "import [files...]",
	Short: "Import WhatsApp chat exports",
	Long: `Import WhatsApp "Export chat" files into the history.

Files are .txt transcripts or .zip archives named like
"WhatsApp Chat - +1234567890.zip". Exports named after a contact instead of
a number need the number supplied with --phone or at the prompt.

With --scan, the exports waiting in the raw directory ([data] raw_dir) are
added too. With --auto, every new export in the raw directory is imported
without prompts; contact-name exports are listed and left alone.

Examples:
  wahistory import "WhatsApp Chat - +15551234567.zip"
  wahistory import --phone "WhatsApp Chat - Ann.txt=+15557654321" "WhatsApp Chat - Ann.txt"
  wahistory import --scan --yes
  wahistory import --auto`,
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if importAuto && len(args) > 0 {
		return fmt.Errorf("--auto imports the raw directory and takes no files")
	}
	if !importAuto && !importScan && len(args) == 0 {
		return fmt.Errorf("no files given (use --scan to import from %s)", cfg.Data.RawDir)
	}
	phones, err := parsePhoneFlags(importPhones)
	if err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	session, err := unlockVault(ctx, s)
	if err != nil {
		return err
	}
	if _, ok := session.Key(); !ok {
		fmt.Printf("Vault locked (%s not set): media inside zip archives will not be kept.\n", cfg.Vault.PassphraseEnv)
	}

	extractor := newExtractor(cfg.Data.RawDir, session, newExtractProgress())
	if importAuto {
		err = runAutoImport(ctx, s, extractor)
	} else {
		err = runWizard(ctx, cmd, s, extractor, args, phones)
	}
	if err != nil {
		return err
	}

	if importContacts != "" {
		return applyContacts(ctx, s, importContacts)
	}
	return nil
}

func runAutoImport(ctx context.Context, s *store.Store, extractor *importer.Extractor) error {
	res, err := importer.AutoImport(ctx, importer.Deps{
		Extractor: extractor,
		Phones:    s,
		Committer: s,
		Logger:    logger,
	}, cfg.Data.RawDir)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("Scanned %s: %d %s\n", cfg.Data.RawDir, res.Scanned, plural(res.Scanned, "export", "exports"))
	fmt.Printf("  Imported:        %d\n", res.Imported)
	fmt.Printf("  Already present: %d\n", res.Existing)
	for _, sk := range res.Skipped {
		fmt.Printf("  Skipped:         %s (%s)\n", textutil.SanitizeTerminal(filepath.Base(sk.ID)), sk.Reason)
	}
	for _, p := range res.Pending {
		fmt.Printf("  Needs a number:  %s\n", textutil.SanitizeTerminal(filepath.Base(p)))
	}
	if len(res.Pending) > 0 {
		fmt.Println("Run 'wahistory import --scan' to enter numbers for these exports.")
	}
	return nil
}

func runWizard(ctx context.Context, cmd *cobra.Command, s *store.Store, extractor *importer.Extractor, args []string, phones map[string]string) error {
	var scan importer.ScanFunc
	if importScan {
		scan = scanRaw
	}
	wiz := importer.NewWizard(s, s, extractor, scan, logger)
	if err := wiz.Open(ctx); err != nil {
		return err
	}
	if importScan {
		// Scanned files start unselected; the CLI takes all of them.
		if len(wiz.Files()) > 0 {
			if err := wiz.ToggleAll(); err != nil {
				return err
			}
		}
		fmt.Printf("Found %d new %s in %s\n", len(wiz.Files()), plural(len(wiz.Files()), "export", "exports"), cfg.Data.RawDir)
	}

	if len(args) > 0 {
		report, err := wiz.AddCandidates(ctx, candidatesFromArgs(args))
		if err != nil {
			return err
		}
		for _, sk := range report.Skipped {
			fmt.Printf("  Skipped %s: %v\n", textutil.SanitizeTerminal(sk.Name), sk.Err)
		}
		if msg := report.Message(); msg != "" && len(wiz.Selected()) == 0 {
			return errors.New(msg)
		}
	}

	in := bufio.NewReader(cmd.InOrStdin())
	res, err := wiz.Proceed(ctx)
	if errors.Is(err, importer.ErrNothingSelected) {
		fmt.Println("Nothing to import.")
		return nil
	}
	if err != nil {
		return extractFailed(res, err)
	}

	if wiz.Step() == importer.StepPhoneNumbers {
		interactive := isTerminal(os.Stdin)
		for _, f := range wiz.PendingFiles() {
			num := lookupPhone(phones, f)
			if num == "" && interactive {
				num, err = prompt(in, fmt.Sprintf("Phone number for %s (%s): ",
					textutil.SanitizeTerminal(f.ContactName()), textutil.SanitizeTerminal(f.Name)))
				if err != nil {
					return err
				}
			}
			if err := wiz.SetPhoneNumber(f.ID(), num); err != nil {
				return err
			}
		}
		if res, err = wiz.SubmitPhoneNumbers(ctx); err != nil {
			return extractFailed(res, err)
		}
	}

	printPreview(res)
	if len(res.Chats) == 0 {
		return nil
	}

	if !importYes {
		if !isTerminal(os.Stdin) {
			return fmt.Errorf("not a terminal: re-run with --yes to import %d %s", len(res.Chats), plural(len(res.Chats), "chat", "chats"))
		}
		answer, err := prompt(in, fmt.Sprintf("Import %d %s? [y/N] ", len(res.Chats), plural(len(res.Chats), "chat", "chats")))
		if err != nil {
			return err
		}
		if a := strings.ToLower(answer); a != "y" && a != "yes" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	saved, err := wiz.Confirm(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d %s.\n", len(saved), plural(len(saved), "chat", "chats"))
	return nil
}

// extractFailed shows why every file was skipped before returning err.
func extractFailed(res *importer.Result, err error) error {
	if errors.Is(err, importer.ErrNothingExtracted) {
		printPreview(res)
	}
	return err
}

// candidatesFromArgs turns command-line paths into intake candidates. Files
// are read through handles so paths outside the raw directory work.
func candidatesFromArgs(args []string) []importer.Candidate {
	cs := make([]importer.Candidate, 0, len(args))
	for _, a := range args {
		cs = append(cs, importer.Candidate{Name: filepath.Base(a), Origin: source.FileHandle(a)})
	}
	return cs
}

// parsePhoneFlags reads --phone values of the form file=number.
func parsePhoneFlags(values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, v := range values {
		file, num, ok := strings.Cut(v, "=")
		file, num = strings.TrimSpace(file), strings.TrimSpace(num)
		if !ok || file == "" || num == "" {
			return nil, fmt.Errorf("invalid --phone %q: want file=number", v)
		}
		out[file] = num
	}
	return out, nil
}

// lookupPhone finds the number given for f by file name, path or contact
// name.
func lookupPhone(phones map[string]string, f source.ImportFile) string {
	for _, k := range []string{f.Name, f.ID(), f.ContactName()} {
		if n, ok := phones[k]; ok && k != "" {
			return n
		}
	}
	return ""
}

func prompt(in *bufio.Reader, question string) (string, error) {
	fmt.Print(question)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func printPreview(res *importer.Result) {
	if res == nil {
		return
	}
	fmt.Println()
	for _, c := range res.Chats {
		last := ""
		if !c.LastMessage.Timestamp.IsZero() {
			last = humanize.Time(c.LastMessage.Timestamp)
		}
		fmt.Printf("  %s %-16s %8s messages  last %s\n",
			textutil.PadRight(textutil.SanitizeTerminal(c.DisplayName()), 30),
			c.PhoneNumber,
			humanize.Comma(int64(len(c.Messages))),
			last)
	}
	for _, sk := range res.Skipped {
		fmt.Printf("  %s skipped: %s\n", textutil.PadRight(textutil.SanitizeTerminal(filepath.Base(sk.ID)), 30), sk.Reason)
	}
	fmt.Printf("\n%d ready, %d skipped (%s)\n", len(res.Chats), len(res.Skipped), res.Duration.Round(time.Millisecond))
}

// applyContacts names chats from a vCard file.
func applyContacts(ctx context.Context, s *store.Store, path string) error {
	matched, total, err := whatsapp.ImportContacts(ctx, s, path)
	if err != nil {
		return fmt.Errorf("import contacts: %w", err)
	}
	fmt.Printf("Contacts: %d in file, %d %s renamed\n", total, matched, plural(matched, "chat", "chats"))
	return nil
}

func init() {
	importCmd.Flags().BoolVar(&importScan, "scan", false, "add the exports waiting in the raw directory")
	importCmd.Flags().BoolVar(&importAuto, "auto", false, "import every new export in the raw directory without prompts")
	importCmd.Flags().BoolVarP(&importYes, "yes", "y", false, "import without asking for confirmation")
	importCmd.Flags().StringArrayVar(&importPhones, "phone", nil, "phone number for a contact-name export, as file=number (repeatable)")
	importCmd.Flags().StringVar(&importContacts, "contacts", "", "vCard file used to name the imported chats")
	rootCmd.AddCommand(importCmd)
}
