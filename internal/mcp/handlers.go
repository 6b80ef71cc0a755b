package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wesm/wahistory/internal/chat"
	"github.com/wesm/wahistory/internal/media"
	"github.com/wesm/wahistory/internal/phone"
	"github.com/wesm/wahistory/internal/store"
)

const (
	maxLimit     = 1000
	maxMediaSize = 50 * 1024 * 1024
)

type handlers struct {
	store ChatStore
	media MediaFunc
}

// getDateArg extracts an optional date (YYYY-MM-DD) from the arguments map.
func getDateArg(args map[string]any, key string) (*time.Time, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s date %q: expected YYYY-MM-DD", key, v)
	}
	return &t, nil
}

func (h *handlers) listChats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chats, err := h.store.ListChats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	if chats == nil {
		chats = []store.ChatSummary{}
	}
	return jsonResult(chats)
}

// findChat resolves a chat id, then a phone number as written, then its
// normalized form.
func (h *handlers) findChat(ctx context.Context, ref string) (*chat.Chat, error) {
	c, err := h.store.GetChat(ctx, ref)
	if err == nil || !errors.Is(err, store.ErrNotFound) || !phone.IsPhoneNumber(ref) {
		return c, err
	}
	c, err = h.store.GetChatByPhone(ctx, ref)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return c, err
	}
	if n := phone.Normalize(ref); n != "" && n != ref {
		return h.store.GetChatByPhone(ctx, n)
	}
	return nil, err
}

func (h *handlers) getChat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	ref, _ := args["chat"].(string)
	if ref == "" {
		return mcp.NewToolResultError("chat parameter is required"), nil
	}
	after, err := getDateArg(args, "after")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	before, err := getDateArg(args, "before")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	c, err := h.findChat(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("chat not found: %v", err)), nil
	}

	msgs := make([]chat.Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		if after != nil && m.Timestamp.Before(*after) {
			continue
		}
		if before != nil && !m.Timestamp.Before(*before) {
			continue
		}
		msgs = append(msgs, m)
	}
	if limit := limitArg(args, "limit", 0); limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	c.Messages = msgs
	return jsonResult(c)
}

func (h *handlers) searchMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	f := store.MessageFilter{
		Limit:  limitArg(args, "limit", 20),
		Offset: limitArg(args, "offset", 0),
	}
	f.Text, _ = args["query"].(string)
	f.ChatID, _ = args["chat"].(string)
	f.HasAttachment, _ = args["has_attachment"].(bool)

	var err error
	if f.After, err = getDateArg(args, "after"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if f.Before, err = getDateArg(args, "before"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if f.Limit == 0 {
		return jsonResult([]store.MessageHit{})
	}

	hits, err := h.store.SearchMessages(ctx, f)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return jsonResult(hits)
}

func (h *handlers) getStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := h.store.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stats failed: %v", err)), nil
	}
	resp := struct {
		Chats       int64 `json:"chats"`
		Messages    int64 `json:"messages"`
		Attachments int64 `json:"attachments"`
		Unread      int64 `json:"unread"`
		SizeBytes   int64 `json:"database_size_bytes"`
	}{stats.ChatCount, stats.MessageCount, stats.AttachmentCount, stats.UnreadCount, stats.DatabaseSize}
	return jsonResult(resp)
}

func (h *handlers) getMedia(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, _ := req.GetArguments()["url"].(string)
	if url == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}
	_, name, ok := media.ParseURL(url)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("not a media URL: %q", url)), nil
	}

	data, err := h.media(ctx, url)
	switch {
	case errors.Is(err, media.ErrNoKey):
		return mcp.NewToolResultError("media is encrypted and the vault is locked"), nil
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("get media failed: %v", err)), nil
	}
	if len(data) > maxMediaSize {
		return mcp.NewToolResultError(fmt.Sprintf("media too large: %d bytes (max %d)", len(data), maxMediaSize)), nil
	}

	plain := media.PlainName(name)
	resp := struct {
		Filename      string `json:"filename"`
		MimeType      string `json:"mime_type"`
		Size          int    `json:"size"`
		ContentBase64 string `json:"content_base64"`
	}{
		Filename:      plain,
		MimeType:      chat.ContentType(plain),
		Size:          len(data),
		ContentBase64: base64.StdEncoding.EncodeToString(data),
	}
	return jsonResult(resp)
}

// limitArg extracts a non-negative integer from a map, with a default.
// JSON numbers arrive as float64. Clamps to maxLimit.
func limitArg(args map[string]any, key string, def int) int {
	v, ok := args[key].(float64)
	if !ok {
		return def
	}
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) || v > float64(maxLimit) {
		return maxLimit
	}
	return int(v)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
