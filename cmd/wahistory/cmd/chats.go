package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wesm/wahistory/internal/chat"
	"github.com/wesm/wahistory/internal/phone"
	"github.com/wesm/wahistory/internal/store"
	"github.com/wesm/wahistory/internal/textutil"
)

var showLimit int

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List the exports waiting in the raw directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		files, err := scanRaw()
		if err != nil {
			return fmt.Errorf("scan %s: %w", cfg.Data.RawDir, err)
		}
		existing, err := s.PhoneNumbers(cmd.Context())
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Printf("No exports in %s\n", cfg.Data.RawDir)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tKIND\tPHONE\tSTATUS")
		for _, f := range files {
			status := "new"
			num := f.PhoneNumber()
			switch {
			case f.NeedsPhoneNumber():
				status = "needs number"
				num = "-"
			case existing[num]:
				status = "imported"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", textutil.SanitizeTerminal(f.Name), f.Kind, num, status)
		}
		return w.Flush()
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List imported chats",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		chats, err := s.ListChats(cmd.Context())
		if err != nil {
			return err
		}
		if len(chats) == 0 {
			fmt.Println("No chats imported yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPHONE\tMESSAGES\tUNREAD\tLAST")
		for _, c := range chats {
			last := "-"
			if !c.LastMessage.Timestamp.IsZero() {
				last = humanize.Time(c.LastMessage.Timestamp)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				c.ID,
				textutil.TruncateWidth(textutil.SanitizeTerminal(c.DisplayName()), 30),
				c.PhoneNumber,
				humanize.Comma(int64(c.MessageCount)),
				c.UnreadCount,
				last)
		}
		return w.Flush()
	},
}

var showCmd = &cobra.Command{
	Use:   "show <chat>",
	Short: "Print a chat's messages",
	Long: `Print a chat's messages. The chat is given by id or phone number.
Showing a chat marks it read.`,
	Args: cobra.ExactArgs(1),
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

		fmt.Printf("%s (%s)\n\n", textutil.SanitizeTerminal(c.DisplayName()), c.PhoneNumber)
		msgs := c.Messages
		if showLimit > 0 && len(msgs) > showLimit {
			msgs = msgs[len(msgs)-showLimit:]
		}
		for _, m := range msgs {
			fmt.Println(formatMessage(m, cfg.Location()))
		}

		if c.UnreadCount > 0 {
			if _, err := s.MarkRead(ctx, c.ID); err != nil {
				return fmt.Errorf("mark read: %w", err)
			}
		}
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <chat>",
	Short: "Delete a chat and its media",
	Args:  cobra.ExactArgs(1),
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
		if err := s.DeleteChat(ctx, c.ID); err != nil {
			return err
		}
		if err := mediaStore().RemoveChat(c.ID); err != nil {
			logger.Warn("failed to remove chat media", "chat", c.ID, "error", err)
		}
		fmt.Printf("Removed %s (%s messages)\n", textutil.SanitizeTerminal(c.DisplayName()), humanize.Comma(int64(len(c.Messages))))
		return nil
	},
}

var contactsCmd = &cobra.Command{
	Use:   "contacts <file.vcf>",
	Short: "Name chats from a vCard file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		return applyContacts(cmd.Context(), s, args[0])
	},
}

// findChat looks a chat up by id, then by phone number.
func findChat(ctx context.Context, s *store.Store, ref string) (*chat.Chat, error) {
	c, err := s.GetChat(ctx, ref)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if phone.IsPhoneNumber(ref) {
		for _, num := range []string{ref, phone.Normalize(ref)} {
			if num == "" {
				continue
			}
			c, err = s.GetChatByPhone(ctx, num)
			if err == nil {
				return c, nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("no chat with id or phone number %q", ref)
}

// formatMessage renders one message as a transcript-like line.
func formatMessage(m chat.Message, loc *time.Location) string {
	ts := m.Timestamp.In(loc).Format("2006-01-02 15:04")
	body := textutil.SanitizeTerminal(m.Content)
	if m.HasAttachment() {
		body = strings.TrimSpace(fmt.Sprintf("[%s %s] %s", m.Type, textutil.SanitizeTerminal(m.AttachmentURL), body))
	}
	if m.Sender == chat.SenderSystem {
		return fmt.Sprintf("%s  -- %s", ts, body)
	}
	return fmt.Sprintf("%s  %s: %s", ts, textutil.SanitizeTerminal(m.SenderName), body)
}

func init() {
	showCmd.Flags().IntVarP(&showLimit, "limit", "n", 0, "show only the last n messages")
	rootCmd.AddCommand(scanCmd, listCmd, showCmd, removeCmd, contactsCmd)
}
