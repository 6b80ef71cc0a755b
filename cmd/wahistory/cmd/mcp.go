package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/wesm/wahistory/internal/mcp"
	"github.com/wesm/wahistory/internal/media"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP server over stdio",
	Long: `Start an MCP (Model Context Protocol) server over stdio, so an MCP
client can read the chat history with the tools list_chats, get_chat,
search_messages, get_stats and get_media.

Encrypted media is only available when the vault passphrase is set.

Example client config:
  {
    "mcpServers": {
      "wahistory": {
        "command": "wahistory",
        "args": ["mcp"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		session, err := unlockVault(ctx, s)
		if err != nil {
			return err
		}
		defer session.Clear()

		files := mediaStore()
		read := media.Reader(files, media.NewDecryptCache(files.Fetch, session, cfg.Server.CacheBytes))
		return mcp.Serve(ctx, s, mcp.MediaFunc(read), versionString(), os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
