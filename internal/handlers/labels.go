package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// CreateLabelRequest represents the label creation request.
type CreateLabelRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// CreateLabel handles label creation (authenticated).
func (h *Handler) CreateLabel(w http.ResponseWriter, r *http.Request) {
	var req CreateLabelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Name = sanitizeName(req.Name)
	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	label, err := h.db.CreateLabel(r.Context(), req.Name, req.Color)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create label")
		return
	}

	h.JSON(w, http.StatusCreated, label)
}

// ListLabels handles listing all labels (authenticated).
func (h *Handler) ListLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := h.db.ListLabels(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list labels")
		return
	}
	h.JSON(w, http.StatusOK, map[string]interface{}{"labels": labels})
}

// AttachLabelRequest represents the attach-label request.
type AttachLabelRequest struct {
	LabelID string `json:"label_id"`
}

// AttachLabel handles attaching a label to a chat (authenticated,
// member-only). Attaching twice is a no-op.
func (h *Handler) AttachLabel(w http.ResponseWriter, r *http.Request) {
	_, chatID, ok := h.requireMembership(w, r)
	if !ok {
		return
	}

	var req AttachLabelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	labelID, err := uuid.Parse(req.LabelID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid label ID format")
		return
	}

	if err := h.db.AddLabelToChat(r.Context(), chatID, labelID); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to attach label")
		return
	}

	h.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}
