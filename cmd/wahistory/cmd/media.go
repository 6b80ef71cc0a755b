package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wesm/wahistory/internal/fileutil"
	"github.com/wesm/wahistory/internal/media"
)

var mediaOutput string

var mediaCmd = &cobra.Command{
	Use:   "media <chat> <file>",
	Short: "Write one stored media file, decrypting it if needed",
	Long: `Write one stored media file of a chat. <file> is the stored name, the
last element of the attachment URL shown by 'wahistory show'. Encrypted
files (.enc) need the vault passphrase.

Examples:
  wahistory media +15551234567 0f3a9c2b1d4e5f60.jpg.enc -o photo.jpg
  wahistory media 6b1f... 0f3a9c2b1d4e5f60.opus > voice.opus`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		c, err := findChat(ctx, s, args[0])
		if err != nil {
			return err
		}
		name := args[1]
		files := mediaStore()

		session, err := unlockVault(ctx, s)
		if err != nil {
			return err
		}
		read := media.Reader(files, media.NewDecryptCache(files.Fetch, session, 0))
		data, err := read(ctx, media.URL(c.ID, name))
		switch {
		case errors.Is(err, media.ErrNoKey):
			return fmt.Errorf("%s is encrypted: set %s to the vault passphrase", name, cfg.Vault.PassphraseEnv)
		case err != nil:
			return fmt.Errorf("read %s: %w", name, err)
		}

		if mediaOutput == "" || mediaOutput == "-" {
			if isTerminal(os.Stdout) {
				return fmt.Errorf("refusing to write %s to a terminal; use -o", media.PlainName(name))
			}
			_, err := os.Stdout.Write(data)
			return err
		}
		if err := fileutil.WriteFileAtomic(mediaOutput, data, 0600); err != nil {
			return fmt.Errorf("write %s: %w", mediaOutput, err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %s (%s)\n", mediaOutput, humanize.Bytes(uint64(len(data))))
		return nil
	},
}

func init() {
	mediaCmd.Flags().StringVarP(&mediaOutput, "output", "o", "", "output file (default: stdout)")
	rootCmd.AddCommand(mediaCmd)
}
