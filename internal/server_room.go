package internal

import (
	"sort"
	"sync"
)

type roomOpKind int

const (
	opJoin roomOpKind = iota
	opLeave
	opPost
	opTyping
)

// roomOp is one entry in a room's inbox. A client's ops are applied in the
// order it sent them, so a member's messages always precede its leave.
type roomOp struct {
	kind     roomOpKind
	client   *Client
	username string
	message  ChatMessage
	isTyping bool
	done     chan struct{}
}

// single room: membership and history are written only by run(); other
// goroutines read them through the RWMutex.
type Room struct {
	key string
	hub *Hub

	inbox chan roomOp

	mutex   sync.RWMutex
	members map[*Client]string
	history []ChatMessage
}

func newRoom(hub *Hub, key string) *Room {
	return &Room{
		key:     key,
		hub:     hub,
		inbox:   make(chan roomOp, 64),
		members: make(map[*Client]string),
	}
}

func (room *Room) run() {
	for {
		select {
		case op := <-room.inbox:
			switch op.kind {
			case opJoin:
				room.handleJoin(op.client, op.username)
			case opLeave:
				room.handleLeave(op.client)
			case opPost:
				room.handlePost(op.message)
			case opTyping:
				room.handleTyping(op.client, op.isTyping)
			}
			if op.done != nil {
				close(op.done)
			}
		case <-room.hub.ctx.Done():
			return
		}
	}
}

// submit queues op for run(). It reports false once the hub is shutting down.
func (room *Room) submit(op roomOp) bool {
	select {
	case room.inbox <- op:
		return true
	case <-room.hub.ctx.Done():
		return false
	}
}

func (room *Room) handleJoin(client *Client, username string) {
	room.mutex.Lock()
	room.members[client] = username
	users := room.usersLocked()
	history := make([]ChatMessage, len(room.history))
	copy(history, room.history)
	room.mutex.Unlock()

	room.hub.presence.Increment(username)
	room.hub.logger.Info().Str("room", room.key).Str("user", username).Msg("user joined")

	if payload, err := encodeEvent(EventRoomJoined, RoomJoinedData{RoomID: room.key, Users: users, Messages: history}); err == nil {
		room.deliver(client, payload)
	}
	if payload, err := encodeEvent(EventUserJoined, UserEventData{RoomID: room.key, Username: username, Users: users}); err == nil {
		room.broadcast(payload, client)
	}
}

func (room *Room) handleLeave(client *Client) {
	room.mutex.Lock()
	username, ok := room.members[client]
	if ok {
		delete(room.members, client)
	}
	users := room.usersLocked()
	room.mutex.Unlock()
	if !ok {
		return
	}

	room.hub.presence.Decrement(username)
	room.hub.logger.Info().Str("room", room.key).Str("user", username).Msg("user left")

	if payload, err := encodeEvent(EventUserLeft, UserEventData{RoomID: room.key, Username: username, Users: users}); err == nil {
		room.broadcast(payload, nil)
	}
}

func (room *Room) handlePost(message ChatMessage) {
	room.mutex.Lock()
	room.history = append(room.history, message)
	if limit := room.hub.historyLimit; limit > 0 && len(room.history) > limit {
		room.history = append([]ChatMessage(nil), room.history[len(room.history)-limit:]...)
	}
	room.mutex.Unlock()

	if room.hub.metrics != nil {
		room.hub.metrics.IncChatMessage()
	}
	if payload, err := encodeEvent(EventNewMessage, message); err == nil {
		room.broadcast(payload, nil)
	}
}

func (room *Room) handleTyping(client *Client, isTyping bool) {
	room.mutex.RLock()
	username, ok := room.members[client]
	room.mutex.RUnlock()
	if !ok {
		return
	}
	if payload, err := encodeEvent(EventUserTyping, UserTypingData{RoomID: room.key, Username: username, IsTyping: isTyping}); err == nil {
		room.broadcast(payload, client)
	}
}

// broadcast fans a frame out to every member except skip.
func (room *Room) broadcast(payload []byte, skip *Client) {
	room.mutex.RLock()
	targets := make([]*Client, 0, len(room.members))
	for client := range room.members {
		if client != skip {
			targets = append(targets, client)
		}
	}
	room.mutex.RUnlock()
	for _, client := range targets {
		room.deliver(client, payload)
	}
}

// deliver queues a frame without blocking the room. A client that cannot keep
// up is disconnected; its read pump then runs the normal leave path.
func (room *Room) deliver(client *Client, payload []byte) {
	if !client.queue(payload) {
		room.hub.logger.Warn().Str("room", room.key).Msg("dropping slow client")
	}
}

// usersLocked returns the sorted distinct display names. Callers hold the mutex.
func (room *Room) usersLocked() []string {
	seen := make(map[string]struct{}, len(room.members))
	users := make([]string, 0, len(room.members))
	for _, name := range room.members {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		users = append(users, name)
	}
	sort.Strings(users)
	return users
}

func (room *Room) users() []string {
	room.mutex.RLock()
	defer room.mutex.RUnlock()
	return room.usersLocked()
}

func (room *Room) historyLen() int {
	room.mutex.RLock()
	defer room.mutex.RUnlock()
	return len(room.history)
}
