package mcp

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wesm/wahistory/internal/chat"
	"github.com/wesm/wahistory/internal/store"
)

// Tool name constants.
const (
	ToolListChats      = "list_chats"
	ToolGetChat        = "get_chat"
	ToolSearchMessages = "search_messages"
	ToolGetStats       = "get_stats"
	ToolGetMedia       = "get_media"
)

// ChatStore is the read side of the history the tools query.
type ChatStore interface {
	Stats(ctx context.Context) (*store.Stats, error)
	ListChats(ctx context.Context) ([]store.ChatSummary, error)
	GetChat(ctx context.Context, id string) (*chat.Chat, error)
	GetChatByPhone(ctx context.Context, phoneNumber string) (*chat.Chat, error)
	SearchMessages(ctx context.Context, f store.MessageFilter) ([]store.MessageHit, error)
}

// MediaFunc returns the plaintext of the media file behind an attachment
// URL. Nil disables get_media.
type MediaFunc func(ctx context.Context, url string) ([]byte, error)

func withLimit(defaultDesc string) mcp.ToolOption {
	return mcp.WithNumber("limit",
		mcp.Description("Maximum results to return (default "+defaultDesc+")"),
	)
}

func withAfter() mcp.ToolOption {
	return mcp.WithString("after",
		mcp.Description("Only messages on or after this date (YYYY-MM-DD)"),
	)
}

func withBefore() mcp.ToolOption {
	return mcp.WithString("before",
		mcp.Description("Only messages before this date (YYYY-MM-DD)"),
	)
}

// NewServer builds an MCP server exposing the chat history tools.
func NewServer(st ChatStore, media MediaFunc, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"wahistory",
		version,
		server.WithToolCapabilities(false),
	)

	h := &handlers{store: st, media: media}
	s.AddTool(listChatsTool(), h.listChats)
	s.AddTool(getChatTool(), h.getChat)
	s.AddTool(searchMessagesTool(), h.searchMessages)
	s.AddTool(getStatsTool(), h.getStats)
	if media != nil {
		s.AddTool(getMediaTool(), h.getMedia)
	}
	return s
}

// Serve runs the history tools over stdio until in is closed or ctx is
// cancelled.
func Serve(ctx context.Context, st ChatStore, media MediaFunc, version string, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(NewServer(st, media, version))
	return stdio.Listen(ctx, in, out)
}

func listChatsTool() mcp.Tool {
	return mcp.NewTool(ToolListChats,
		mcp.WithDescription("List imported WhatsApp chats with phone number, contact name, message and unread counts, most recent first."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func getChatTool() mcp.Tool {
	return mcp.NewTool(ToolGetChat,
		mcp.WithDescription("Get one chat and its messages in time order. Attachment messages carry an attachmentUrl usable with get_media."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("chat",
			mcp.Required(),
			mcp.Description("Chat id or phone number (e.g. +15551234567)"),
		),
		withAfter(),
		withBefore(),
		mcp.WithNumber("limit",
			mcp.Description("Return only the last N matching messages (default all)"),
		),
	)
}

func searchMessagesTool() mcp.Tool {
	return mcp.NewTool(ToolSearchMessages,
		mcp.WithDescription("Search messages across chats by text. Matches message content and sender names, case-insensitively, newest first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query",
			mcp.Description("Text to look for; empty matches every message"),
		),
		mcp.WithString("chat",
			mcp.Description("Limit to one chat id"),
		),
		withAfter(),
		withBefore(),
		mcp.WithBoolean("has_attachment",
			mcp.Description("Only messages with media"),
		),
		withLimit("20"),
		mcp.WithNumber("offset",
			mcp.Description("Number of results to skip for pagination (default 0)"),
		),
	)
}

func getStatsTool() mcp.Tool {
	return mcp.NewTool(ToolGetStats,
		mcp.WithDescription("Get history overview: chat, message, attachment and unread counts and database size."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func getMediaTool() mcp.Tool {
	return mcp.NewTool(ToolGetMedia,
		mcp.WithDescription("Get a media file by attachment URL. Returns base64-encoded content with its MIME type. Encrypted media needs the server to hold the vault passphrase."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("attachmentUrl from get_chat or search_messages"),
		),
	)
}
