package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wesm/wahistory/internal/chat"
	"github.com/wesm/wahistory/internal/media"
	"github.com/wesm/wahistory/internal/source"
	"github.com/wesm/wahistory/internal/store"
	"github.com/wesm/wahistory/internal/vault"
)

// StatsResponse represents the history statistics.
type StatsResponse struct {
	TotalChats    int64 `json:"total_chats"`
	TotalMessages int64 `json:"total_messages"`
	TotalAttach   int64 `json:"total_attachments"`
	TotalUnread   int64 `json:"total_unread"`
	DatabaseSize  int64 `json:"database_size_bytes"`
}

// ChatListResponse wraps the chat list.
type ChatListResponse struct {
	Total int                 `json:"total"`
	Chats []store.ChatSummary `json:"chats"`
}

// SearchResponse wraps one page of message search results.
type SearchResponse struct {
	Query    string             `json:"query"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Hits     []store.MessageHit `json:"hits"`
}

// ScanEntry describes one export found in the raw directory.
type ScanEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	ContactName string `json:"contactName,omitempty"`
	Imported    bool   `json:"imported"`
}

// ImportResponse is returned when unattended imports are triggered.
type ImportResponse struct {
	Status  string   `json:"status"`
	Started []string `json:"started"`
}

// SchedulerStatusResponse represents scheduler status.
type SchedulerStatusResponse struct {
	Running bool          `json:"running"`
	Watches []WatchStatus `json:"watches"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// handleStats returns history statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Store.Stats(r.Context())
	if err != nil {
		s.logger.Error("failed to get stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve statistics")
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		TotalChats:    stats.ChatCount,
		TotalMessages: stats.MessageCount,
		TotalAttach:   stats.AttachmentCount,
		TotalUnread:   stats.UnreadCount,
		DatabaseSize:  stats.DatabaseSize,
	})
}

// handleListChats returns every chat with its last message.
func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.deps.Store.ListChats(r.Context())
	if err != nil {
		s.logger.Error("failed to list chats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list chats")
		return
	}
	if chats == nil {
		chats = []store.ChatSummary{}
	}
	writeJSON(w, http.StatusOK, ChatListResponse{Total: len(chats), Chats: chats})
}

// handleGetChat returns one chat with all messages.
func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := s.deps.Store.GetChat(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Chat not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get chat", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve chat")
		return
	}
	if c.Messages == nil {
		c.Messages = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, c)
}

// handleDeleteChat removes a chat and its stored media.
func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.deps.Store.DeleteChat(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Chat not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to delete chat", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to delete chat")
		return
	}
	if s.deps.Media != nil {
		if err := s.deps.Media.RemoveChat(id); err != nil {
			s.logger.Warn("failed to remove chat media", "id", id, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMarkRead marks every message of a chat as read.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := s.deps.Store.MarkRead(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Chat not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to mark chat read", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to mark chat read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// handleSearch searches message text across chats.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "Query parameter 'q' is required")
		return
	}

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	hits, err := s.deps.Store.SearchMessages(r.Context(), store.MessageFilter{
		Text:   query,
		ChatID: q.Get("chat"),
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		s.logger.Error("search failed", "query", query, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Search failed")
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: query, Page: page, PageSize: pageSize, Hits: hits})
}

// handleScan lists the exports waiting in the raw directory.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scan == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "No import directory configured")
		return
	}
	files, err := s.deps.Scan()
	if err != nil {
		s.logger.Error("failed to scan imports", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to scan import directory")
		return
	}
	existing, err := s.deps.Store.PhoneNumbers(r.Context())
	if err != nil {
		s.logger.Error("failed to load phone numbers", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to scan import directory")
		return
	}

	entries := make([]ScanEntry, 0, len(files))
	for _, f := range files {
		num := f.PhoneNumber()
		entries = append(entries, ScanEntry{
			ID:          f.ID(),
			Name:        f.Name,
			Kind:        string(f.Kind),
			PhoneNumber: num,
			ContactName: f.ContactName(),
			Imported:    num != "" && existing[num],
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleTriggerImport starts an unattended import of every watched
// directory.
func (s *Server) handleTriggerImport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "Scheduler is not running")
		return
	}
	started := s.deps.Scheduler.TriggerAll()
	if len(started) == 0 {
		writeError(w, http.StatusConflict, "conflict", "No idle watch directories to import")
		return
	}
	writeJSON(w, http.StatusAccepted, ImportResponse{Status: "accepted", Started: started})
}

// handleSchedulerStatus returns the state of every watched directory.
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeJSON(w, http.StatusOK, SchedulerStatusResponse{Watches: []WatchStatus{}})
		return
	}
	watches := s.deps.Scheduler.Status()
	if watches == nil {
		watches = []WatchStatus{}
	}
	writeJSON(w, http.StatusOK, SchedulerStatusResponse{
		Running: s.deps.Scheduler.IsRunning(),
		Watches: watches,
	})
}

// handleMedia serves stored media. Sealed files are decrypted through the
// cache; plain copies are served from disk.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	name := chi.URLParam(r, "file")
	w.Header().Set("Content-Type", chat.ContentType(media.PlainName(name)))

	if media.IsEncrypted(name) {
		if s.deps.Decrypter == nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "Encrypted media is not available")
			return
		}
		data, err := s.deps.Decrypter.Get(r.Context(), media.URL(chatID, name))
		switch {
		case err == nil:
			http.ServeContent(w, r, media.PlainName(name), time.Time{}, bytes.NewReader(data))
		case errors.Is(err, media.ErrNoKey):
			writeError(w, http.StatusLocked, "locked", "Unlock the vault to view encrypted media")
		case errors.Is(err, vault.ErrDecrypt):
			s.logger.Error("failed to decrypt media", "chat", chatID, "file", name, "error", err)
			writeError(w, http.StatusInternalServerError, "decrypt_failed", "Failed to decrypt media")
		case errors.Is(err, media.ErrInvalidName):
			writeError(w, http.StatusBadRequest, "bad_request", "Invalid media name")
		default:
			writeError(w, http.StatusNotFound, "not_found", "Media not found")
		}
		return
	}

	if s.deps.Media == nil {
		writeError(w, http.StatusNotFound, "not_found", "Media not found")
		return
	}
	f, err := s.deps.Media.Open(chatID, name)
	if errors.Is(err, media.ErrInvalidName) {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid media name")
		return
	}
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "Media not found")
		return
	}
	defer f.Close()
	var mod time.Time
	if st, err := f.Stat(); err == nil {
		mod = st.ModTime()
	}
	http.ServeContent(w, r, media.PlainName(name), mod, f)
}

// handleReadChat returns the raw text of a transcript under the import
// root.
func (s *Server) handleReadChat(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "Path is required")
		return
	}
	if s.deps.Raw == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "No import directory configured")
		return
	}
	data, err := s.deps.Raw.Fetch(r.Context(), p)
	switch {
	case errors.Is(err, source.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "Invalid path")
		return
	case errors.Is(err, source.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "File not found")
		return
	case err != nil:
		s.logger.Error("failed to read chat file", "path", p, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to read file")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
