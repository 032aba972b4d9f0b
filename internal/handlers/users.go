package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pulsechat/pulse/internal/api/middleware"
	"github.com/pulsechat/pulse/internal/models"
)

// UserProfile is the public view of a user.
type UserProfile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Online    bool   `json:"online"`
}

func (h *Handler) profileOf(user *models.User) UserProfile {
	return UserProfile{
		ID:        user.ID.String(),
		Name:      user.Name,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
		Online:    h.hub != nil && h.hub.IsOnline(user.ID.String()),
	}
}

// GetUser handles profile lookup by id.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	user, err := h.db.GetUserByID(r.Context(), userID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	h.JSON(w, http.StatusOK, h.profileOf(user))
}

// SearchUsers handles profile search by name, excluding the caller.
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.Error(w, http.StatusBadRequest, "q is required")
		return
	}

	var exclude uuid.UUID
	if callerID := middleware.GetUserID(r.Context()); callerID != "" {
		exclude, _ = uuid.Parse(callerID)
	}

	users, err := h.db.SearchUsers(r.Context(), query, exclude, 20)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "search failed")
		return
	}

	profiles := make([]UserProfile, 0, len(users))
	for i := range users {
		profiles = append(profiles, h.profileOf(&users[i]))
	}
	h.JSON(w, http.StatusOK, map[string]interface{}{"users": profiles})
}
