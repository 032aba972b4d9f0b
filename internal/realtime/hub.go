package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsechat/pulse/internal/metrics"
	"github.com/pulsechat/pulse/internal/models"
)

// Hub owns the shared realtime state: the connection registry, room
// membership, and typing tracker. Frame handling runs on each connection's
// read goroutine; every mutation of the shared maps goes through the
// lock-protected trackers, and broadcasts iterate over member snapshots.
type Hub struct {
	logger   zerolog.Logger
	registry *Registry
	rooms    *Rooms
	typing   *TypingTracker

	sweepInterval time.Duration

	mu      sync.RWMutex
	clients map[string]*Client // connID -> client
}

// NewHub creates a hub with the given typing expiry and sweep interval.
func NewHub(logger zerolog.Logger, typingExpiry, sweepInterval time.Duration) *Hub {
	return &Hub{
		logger:        logger,
		registry:      NewRegistry(),
		rooms:         NewRooms(),
		typing:        NewTypingTracker(typingExpiry),
		sweepInterval: sweepInterval,
		clients:       make(map[string]*Client),
	}
}

// Run drives the typing sweep until the context is cancelled. Expired
// entries produce a synthetic typing=false so clients never show a stuck
// indicator after a lost typing-stop.
func (h *Hub) Run(ctx context.Context) {
	h.typing.Run(ctx, h.sweepInterval, func(state TypingState) {
		metrics.TypingEvents.WithLabelValues("expired").Inc()
		h.broadcastTyping(state.UserID, state.ChatID, false, "")
	})
}

// Register adds a connection to the hub and the registry.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.registry.Register(c.id)
	metrics.ConnectionsActive.Inc()
	h.logger.Debug().Str("conn_id", c.id).Msg("connection registered")
}

// Unregister runs the disconnect cleanup cascade: registry, room
// memberships, typing state, and a presence-offline broadcast when the
// user's last connection closed. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	h.mu.Unlock()

	c.closeSend()
	metrics.ConnectionsActive.Dec()

	h.rooms.DropConnection(c.id)

	affected, offline := h.registry.Unregister(c.id)
	for _, userID := range affected {
		if !offline {
			continue
		}
		// Last connection gone: clear typing state and announce offline.
		for _, chatID := range h.typing.DropUser(userID) {
			h.broadcastTyping(userID, chatID, false, "")
		}
		metrics.PresenceTransitions.WithLabelValues("offline").Inc()
		metrics.UsersOnline.Dec()
		h.broadcastAll(EventUserStatusChange, StatusChangePayload{UserID: userID, Status: "offline"})
		h.logger.Info().Str("user_id", userID).Msg("user offline")
	}
	h.logger.Debug().Str("conn_id", c.id).Msg("connection unregistered")
}

// HandleFrame dispatches one inbound frame. Malformed or unknown frames are
// dropped with a log entry; they never crash the handling loop.
func (h *Hub) HandleFrame(c *Client, data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		metrics.FramesDropped.WithLabelValues("malformed").Inc()
		h.logger.Warn().Str("conn_id", c.id).Err(err).Msg("malformed frame dropped")
		return
	}

	switch frame.Event {
	case EventUserOnline:
		var p UserOnlinePayload
		if err := json.Unmarshal(frame.Data, &p); err != nil || p.UserID == "" {
			h.dropPayload(c, frame.Event, err)
			return
		}
		// The identity bound at upgrade is authoritative. A frame naming
		// a different user cannot rebind the connection.
		if bound := h.registry.UserOf(c.id); bound != "" && bound != p.UserID {
			h.dropSpoofed(c, frame.Event, p.UserID)
			return
		}
		h.UserOnline(c, p.UserID)

	case EventJoinChat:
		var p ChatPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil || p.ChatID == "" {
			h.dropPayload(c, frame.Event, err)
			return
		}
		h.rooms.Join(p.ChatID, c.id)
		h.logger.Debug().Str("conn_id", c.id).Str("chat_id", p.ChatID).Msg("joined chat")

	case EventLeaveChat:
		var p ChatPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil || p.ChatID == "" {
			h.dropPayload(c, frame.Event, err)
			return
		}
		h.rooms.Leave(p.ChatID, c.id)
		h.logger.Debug().Str("conn_id", c.id).Str("chat_id", p.ChatID).Msg("left chat")

	case EventTypingStart:
		var p TypingPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil || p.UserID == "" || p.ChatID == "" {
			h.dropPayload(c, frame.Event, err)
			return
		}
		if bound := h.registry.UserOf(c.id); bound != "" && bound != p.UserID {
			h.dropSpoofed(c, frame.Event, p.UserID)
			return
		}
		h.typing.Start(p.UserID, p.ChatID)
		metrics.TypingEvents.WithLabelValues("start").Inc()
		h.broadcastTyping(p.UserID, p.ChatID, true, c.id)

	case EventTypingStop:
		var p TypingPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil || p.UserID == "" || p.ChatID == "" {
			h.dropPayload(c, frame.Event, err)
			return
		}
		if bound := h.registry.UserOf(c.id); bound != "" && bound != p.UserID {
			h.dropSpoofed(c, frame.Event, p.UserID)
			return
		}
		h.typing.Stop(p.UserID, p.ChatID)
		metrics.TypingEvents.WithLabelValues("stop").Inc()
		h.broadcastTyping(p.UserID, p.ChatID, false, c.id)

	case EventSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(frame.Data, &p); err != nil || p.ChatID == "" {
			h.dropPayload(c, frame.Event, err)
			return
		}
		h.Relay(p.ChatID, NewMessagePayload{ChatID: p.ChatID, Message: p.Message})

	default:
		metrics.FramesDropped.WithLabelValues("unknown_event").Inc()
		h.logger.Warn().Str("conn_id", c.id).Str("event", frame.Event).Msg("unknown event dropped")
	}
}

// UserOnline binds a connection to its owner and broadcasts a presence
// transition when the user's first connection appeared. A second tab emits
// no duplicate online event.
func (h *Hub) UserOnline(c *Client, userID string) {
	first := h.registry.AssociateUser(c.id, userID)
	if !first {
		return
	}
	metrics.PresenceTransitions.WithLabelValues("online").Inc()
	metrics.UsersOnline.Inc()
	h.broadcastAll(EventUserStatusChange, StatusChangePayload{UserID: userID, Status: "online"})
	h.logger.Info().Str("user_id", userID).Msg("user online")
}

// Relay fans an already-persisted message out to every connection in the
// room. The payload carries the final persisted message id; receivers
// deduplicate against the change-feed by that id. A room with zero members
// is not an error, the message is simply not delivered live.
func (h *Hub) Relay(roomID string, payload NewMessagePayload) {
	frame, err := NewFrame(EventNewMessage, payload)
	if err != nil {
		h.logger.Error().Err(err).Msg("relay encode failed")
		return
	}
	members := h.rooms.MembersOf(roomID)
	for _, connID := range members {
		h.deliver(connID, frame)
	}
	metrics.MessagesRelayed.Inc()
}

// RelayFeed fans change-feed inserts into the local rooms until the channel
// closes. An insert made on another instance reaches this instance's
// connections here; an insert made locally arrives twice (socket relay and
// feed) and clients collapse the copies by message id.
func (h *Hub) RelayFeed(ch <-chan *models.Message) {
	for msg := range ch {
		if msg == nil {
			continue
		}
		h.Relay(msg.ChatID, NewMessagePayload{ChatID: msg.ChatID, Message: *msg})
	}
}

// broadcastTyping emits user-typing to the chat's room, excluding the
// originating connection.
func (h *Hub) broadcastTyping(userID, chatID string, isTyping bool, exceptConnID string) {
	frame, err := NewFrame(EventUserTyping, UserTypingPayload{UserID: userID, ChatID: chatID, IsTyping: isTyping})
	if err != nil {
		return
	}
	for _, connID := range h.rooms.MembersOf(chatID) {
		if connID == exceptConnID {
			continue
		}
		h.deliver(connID, frame)
	}
}

// broadcastAll emits an event to every connected client. Presence is a
// user-level fact independent of which chat is open, so status changes go
// global.
func (h *Hub) broadcastAll(event string, payload interface{}) {
	frame, err := NewFrame(event, payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(frame) {
			h.dropSlowConsumer(c)
		}
	}
}

// deliver sends a frame to one connection, dropping the connection if its
// outbound queue is full.
func (h *Hub) deliver(connID string, frame []byte) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if !c.enqueue(frame) {
		h.dropSlowConsumer(c)
	}
}

// dropSlowConsumer disconnects a client whose send buffer overflowed.
// Blocking the hub on one slow browser would stall everyone else.
func (h *Hub) dropSlowConsumer(c *Client) {
	metrics.FramesDropped.WithLabelValues("slow_consumer").Inc()
	h.logger.Warn().Str("conn_id", c.id).Msg("dropping slow consumer")
	if c.conn != nil {
		c.conn.Close()
	}
	h.Unregister(c)
}

// dropSpoofed drops a frame whose payload names a user other than the one
// the connection authenticated as.
func (h *Hub) dropSpoofed(c *Client, event, claimed string) {
	metrics.FramesDropped.WithLabelValues("spoofed").Inc()
	h.logger.Warn().
		Str("conn_id", c.id).
		Str("event", event).
		Str("claimed_user_id", claimed).
		Msg("frame for another user dropped")
}

func (h *Hub) dropPayload(c *Client, event string, err error) {
	metrics.FramesDropped.WithLabelValues("malformed").Inc()
	h.logger.Warn().Str("conn_id", c.id).Str("event", event).Err(err).Msg("invalid payload dropped")
}

// IsOnline reports whether the user has at least one live connection.
func (h *Hub) IsOnline(userID string) bool {
	return h.registry.Online(userID)
}

// Stats is a point-in-time snapshot of realtime state.
type Stats struct {
	Connections int      `json:"connections"`
	OnlineUsers []string `json:"online_users"`
	OpenRooms   int      `json:"open_rooms"`
	Typing      int      `json:"typing"`
}

// Snapshot returns current realtime statistics.
func (h *Hub) Snapshot() Stats {
	h.mu.RLock()
	conns := len(h.clients)
	h.mu.RUnlock()

	return Stats{
		Connections: conns,
		OnlineUsers: h.registry.OnlineUsers(),
		OpenRooms:   h.rooms.Len(),
		Typing:      h.typing.Len(),
	}
}
