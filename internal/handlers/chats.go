package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pulsechat/pulse/internal/api/middleware"
)

// CreateChatRequest represents the chat creation request.
type CreateChatRequest struct {
	Name      string   `json:"name"`
	IsGroup   bool     `json:"is_group"`
	MemberIDs []string `json:"member_ids"`
}

// CreateChat handles chat creation (authenticated). The caller is always a
// member; one-on-one chats are simply two-member non-group chats.
func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	callerID, err := uuid.Parse(middleware.GetUserID(r.Context()))
	if err != nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Name = sanitizeName(req.Name)
	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.MemberIDs) == 0 {
		h.Error(w, http.StatusBadRequest, "member_ids is required")
		return
	}

	members := []uuid.UUID{callerID}
	for _, idStr := range req.MemberIDs {
		id, err := uuid.Parse(idStr)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid member ID format")
			return
		}
		if id != callerID {
			members = append(members, id)
		}
	}

	if !req.IsGroup && len(members) != 2 {
		h.Error(w, http.StatusBadRequest, "one-on-one chats need exactly one other member")
		return
	}

	chat, err := h.db.CreateChat(r.Context(), req.Name, req.IsGroup, callerID, members)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create chat")
		return
	}

	h.JSON(w, http.StatusCreated, chat)
}

// ListChats handles the caller's sidebar listing.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	callerID, err := uuid.Parse(middleware.GetUserID(r.Context()))
	if err != nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	previews, err := h.db.ListUserChats(r.Context(), callerID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list chats")
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{"chats": previews})
}

// ListChatMembers handles member listing for a chat (authenticated,
// member-only).
func (h *Handler) ListChatMembers(w http.ResponseWriter, r *http.Request) {
	_, chatID, ok := h.requireMembership(w, r)
	if !ok {
		return
	}

	users, err := h.db.ListChatMembers(r.Context(), chatID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list members")
		return
	}

	profiles := make([]UserProfile, 0, len(users))
	for i := range users {
		profiles = append(profiles, h.profileOf(&users[i]))
	}
	h.JSON(w, http.StatusOK, map[string]interface{}{"members": profiles})
}

// AddChatMembersRequest represents the add-members request.
type AddChatMembersRequest struct {
	MemberIDs []string `json:"member_ids"`
}

// AddChatMembers handles adding users to a group chat.
func (h *Handler) AddChatMembers(w http.ResponseWriter, r *http.Request) {
	_, chatID, ok := h.requireMembership(w, r)
	if !ok {
		return
	}

	var req AddChatMembersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.MemberIDs) == 0 {
		h.Error(w, http.StatusBadRequest, "member_ids is required")
		return
	}

	ids := make([]uuid.UUID, 0, len(req.MemberIDs))
	for _, idStr := range req.MemberIDs {
		id, err := uuid.Parse(idStr)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid member ID format")
			return
		}
		ids = append(ids, id)
	}

	if err := h.db.AddChatMembers(r.Context(), chatID, ids); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to add members")
		return
	}

	h.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// requireMembership parses the chat id from the URL and verifies the caller
// is a member. On failure it writes the error response and returns ok=false.
func (h *Handler) requireMembership(w http.ResponseWriter, r *http.Request) (caller, chatID uuid.UUID, ok bool) {
	caller, err := uuid.Parse(middleware.GetUserID(r.Context()))
	if err != nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return caller, chatID, false
	}

	chatID, err = uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid chat ID format")
		return caller, chatID, false
	}

	member, err := h.db.IsChatMember(r.Context(), chatID, caller)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return caller, chatID, false
	}
	if !member {
		h.Error(w, http.StatusForbidden, "not a member of this chat")
		return caller, chatID, false
	}
	return caller, chatID, true
}
