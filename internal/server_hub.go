package internal

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sharehub/internal/files"
	"sharehub/internal/ident"
)

// HubConfig carries what the chat hub needs from the server.
type HubConfig struct {
	Registry     *files.Registry
	Presence     *PresenceTracker
	Metrics      *Metrics
	Logger       zerolog.Logger
	DefaultRoom  string
	HistoryLimit int
	IDs          ident.Generator
	Clock        func() time.Time
}

// all active rooms and connections
type Hub struct {
	ctx    context.Context
	cancel context.CancelFunc

	registry     *files.Registry
	presence     *PresenceTracker
	metrics      *Metrics
	logger       zerolog.Logger
	defaultRoom  string
	historyLimit int
	newID        ident.Generator
	now          func() time.Time

	mutex   sync.RWMutex
	rooms   map[string]*Room
	clients map[*Client]struct{}
	idMu    sync.Mutex
}

// builds an empty hub ready to serve websocket requests
func NewHub(cfg HubConfig) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	hub := &Hub{
		ctx:          ctx,
		cancel:       cancel,
		registry:     cfg.Registry,
		presence:     cfg.Presence,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With().Str("component", "chat").Logger(),
		defaultRoom:  cfg.DefaultRoom,
		historyLimit: cfg.HistoryLimit,
		newID:        cfg.IDs,
		now:          cfg.Clock,
		rooms:        make(map[string]*Room),
		clients:      make(map[*Client]struct{}),
	}
	if hub.presence == nil {
		hub.presence = NewPresenceTracker()
	}
	if hub.defaultRoom == "" {
		hub.defaultRoom = "general"
	}
	if hub.newID == nil {
		hub.newID = ident.New
	}
	if hub.now == nil {
		hub.now = time.Now
	}
	return hub
}

// ensures there is a live Room for the given key. Rooms live as long as the hub.
func (hub *Hub) getOrCreateRoom(key string) *Room {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	if room, exists := hub.rooms[key]; exists {
		return room
	}
	room := newRoom(hub, key)
	hub.rooms[key] = room
	go room.run()
	return room
}

// getRoom retrieves a room by key (may return nil)
func (hub *Hub) getRoom(key string) *Room {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	return hub.rooms[key]
}

func (hub *Hub) nextID() string {
	hub.idMu.Lock()
	defer hub.idMu.Unlock()
	return hub.newID()
}

func (hub *Hub) addClient(client *Client) bool {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	if hub.ctx.Err() != nil {
		return false
	}
	hub.clients[client] = struct{}{}
	return true
}

func (hub *Hub) removeClient(client *Client) {
	hub.mutex.Lock()
	delete(hub.clients, client)
	hub.mutex.Unlock()
}

// HubStats is a point-in-time summary for the stats endpoint.
type HubStats struct {
	Rooms    int
	Users    int
	Messages int
}

func (hub *Hub) Stats() HubStats {
	hub.mutex.RLock()
	rooms := make([]*Room, 0, len(hub.rooms))
	for _, room := range hub.rooms {
		rooms = append(rooms, room)
	}
	hub.mutex.RUnlock()

	stats := HubStats{Rooms: len(rooms), Users: hub.presence.ActiveCount()}
	for _, room := range rooms {
		stats.Messages += room.historyLen()
	}
	return stats
}

// Close stops every room and drops every open connection.
func (hub *Hub) Close() {
	hub.mutex.Lock()
	hub.cancel()
	clients := make([]*Client, 0, len(hub.clients))
	for client := range hub.clients {
		clients = append(clients, client)
	}
	hub.mutex.Unlock()
	for _, client := range clients {
		client.kick()
	}
}
