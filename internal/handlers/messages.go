package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pulsechat/pulse/internal/metrics"
	"github.com/pulsechat/pulse/internal/models"
)

// MessagesResponse represents the backlog fetch response. Messages are in
// ascending sent_at order, ready to render.
type MessagesResponse struct {
	ChatID   string           `json:"chat_id"`
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// PostMessageRequest represents the message insert request.
type PostMessageRequest struct {
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
}

// GetChatMessages handles the backlog fetch for a chat (authenticated,
// member-only). The recent-message cache is consulted first when Redis is
// configured; pagination always goes to SQL.
func (h *Handler) GetChatMessages(w http.ResponseWriter, r *http.Request) {
	_, chatID, ok := h.requireMembership(w, r)
	if !ok {
		return
	}

	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if limit > 200 {
		limit = 200
	}

	var before int64
	if b, err := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64); err == nil {
		before = b
	}

	if h.redis != nil && before == 0 {
		cached, err := h.redis.GetRecentMessages(r.Context(), chatID.String(), limit)
		if err == nil && len(cached) == limit {
			// A full cache window says nothing about older rows. Probe the
			// store for one row past the oldest cached entry; a chat with
			// exactly limit messages must not advertise an empty next page.
			older, err := h.db.ListChatMessages(r.Context(), chatID.String(), 1, cached[0].SentAt)
			h.JSON(w, http.StatusOK, MessagesResponse{
				ChatID:   chatID.String(),
				Messages: cached,
				HasMore:  err == nil && len(older) > 0,
			})
			return
		}
	}

	// Fetch one extra row for the has_more check
	messages, err := h.db.ListChatMessages(r.Context(), chatID.String(), limit+1, before)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[1:] // oldest row was the sentinel
	}
	if messages == nil {
		messages = []models.Message{}
	}

	h.JSON(w, http.StatusOK, MessagesResponse{
		ChatID:   chatID.String(),
		Messages: messages,
		HasMore:  hasMore,
	})
}

// PostMessage handles the durable message insert (authenticated,
// member-only). The row is written and announced on the change-feed before
// the response returns; the realtime relay is a separate delivery path
// driven by the client once it holds the persisted id.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	caller, chatID, ok := h.requireMembership(w, r)
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Content == "" {
		h.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	if len(req.Content) > 4096 {
		h.Error(w, http.StatusUnprocessableEntity, "content too long (max 4096 bytes)")
		return
	}

	msg := &models.Message{
		ChatID:   chatID.String(),
		SenderID: caller.String(),
		Content:  req.Content,
		Type:     req.Type,
	}

	if err := h.db.InsertMessage(r.Context(), msg); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}
	metrics.MessagesPersisted.Inc()

	// Cache and change-feed are best-effort; the row is durable already
	if h.redis != nil {
		if err := h.redis.CacheMessage(r.Context(), msg); err != nil {
			h.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("message cache write failed")
		}
	}
	if h.feed != nil {
		if err := h.feed.Publish(r.Context(), msg); err != nil {
			h.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("change-feed publish failed")
		}
	}

	h.JSON(w, http.StatusCreated, msg)
}
