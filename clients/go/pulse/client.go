// Package pulse provides a client for the Pulse realtime chat server.
package pulse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is a Pulse API client for the HTTP surface. The realtime socket
// is handled by Session.
type Client struct {
	BaseURL    string
	Token      string
	UserID     string
	HTTPClient *http.Client
}

// NewClient creates a new Pulse client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// doRequest performs an HTTP request.
func (c *Client) doRequest(method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("pulse error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// User represents a user profile.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Online    bool   `json:"online"`
}

// SessionResponse is the response from registration and login.
type SessionResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Register creates a new account and stores the session token on the client.
func (c *Client) Register(name, email, password string) (*SessionResponse, error) {
	body, _ := json.Marshal(map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})

	respBody, err := c.doRequest("POST", "/register", body)
	if err != nil {
		return nil, err
	}

	var resp SessionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}

	c.Token = resp.Token
	c.UserID = resp.User.ID
	return &resp, nil
}

// Login authenticates an existing account and stores the session token.
func (c *Client) Login(email, password string) (*SessionResponse, error) {
	body, _ := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})

	respBody, err := c.doRequest("POST", "/login", body)
	if err != nil {
		return nil, err
	}

	var resp SessionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}

	c.Token = resp.Token
	c.UserID = resp.User.ID
	return &resp, nil
}

// SearchUsers searches users by name or email prefix.
func (c *Client) SearchUsers(query string) ([]User, error) {
	respBody, err := c.doRequest("GET", "/users?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Users []User `json:"users"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// ChatPreview represents a chat in the caller's chat list.
type ChatPreview struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	IsGroup         bool     `json:"is_group"`
	LastMessage     string   `json:"last_message,omitempty"`
	LastMessageTime int64    `json:"last_message_ts,omitempty"`
	Labels          []string `json:"labels,omitempty"`
}

// CreateChat creates a chat with the given members. The caller is always
// included.
func (c *Client) CreateChat(name string, isGroup bool, memberIDs []string) (*ChatPreview, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"name":       name,
		"is_group":   isGroup,
		"member_ids": memberIDs,
	})

	respBody, err := c.doRequest("POST", "/chats", body)
	if err != nil {
		return nil, err
	}

	var resp ChatPreview
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListChats lists the caller's chats with last-message previews.
func (c *Client) ListChats() ([]ChatPreview, error) {
	respBody, err := c.doRequest("GET", "/chats", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Chats []ChatPreview `json:"chats"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// Message represents a chat message.
type Message struct {
	ID           string `json:"id"`
	ChatID       string `json:"chat_id"`
	SenderID     string `json:"sender_id"`
	Content      string `json:"content"`
	Type         string `json:"type,omitempty"`
	SentAt       int64  `json:"sent_at"`
	SenderName   string `json:"sender_name,omitempty"`
	SenderAvatar string `json:"sender_avatar,omitempty"`
}

// MessagesResponse is the response from getting chat messages.
type MessagesResponse struct {
	ChatID   string    `json:"chat_id"`
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// GetMessages retrieves messages from a chat, oldest first. A non-zero
// before timestamp pages backwards.
func (c *Client) GetMessages(chatID string, limit int, before int64) (*MessagesResponse, error) {
	path := fmt.Sprintf("/chats/%s/messages?limit=%d", chatID, limit)
	if before > 0 {
		path += fmt.Sprintf("&before=%d", before)
	}

	respBody, err := c.doRequest("GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp MessagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PostMessage stores a message durably and returns the persisted row with
// its final id.
func (c *Client) PostMessage(chatID, content string) (*Message, error) {
	body, _ := json.Marshal(map[string]string{"content": content})

	respBody, err := c.doRequest("POST", "/chats/"+chatID+"/messages", body)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
