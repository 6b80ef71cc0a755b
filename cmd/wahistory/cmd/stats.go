package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		stats, err := s.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}

		fmt.Printf("Database: %s\n", cfg.DatabasePath())
		fmt.Printf("  Chats:       %s\n", humanize.Comma(stats.ChatCount))
		fmt.Printf("  Messages:    %s\n", humanize.Comma(stats.MessageCount))
		fmt.Printf("  Attachments: %s\n", humanize.Comma(stats.AttachmentCount))
		fmt.Printf("  Unread:      %s\n", humanize.Comma(stats.UnreadCount))
		fmt.Printf("  Size:        %s\n", humanize.Bytes(uint64(stats.DatabaseSize)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
