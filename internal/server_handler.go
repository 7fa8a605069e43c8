package internal

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxMsgSize    = 8192
	sendBuffer    = 256
	maxNameLength = 32
	maxRoomLength = 64
	maxTextLength = 4000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client wraps a single websocket connection and a buffered send queue.
// room and username are only touched by the read pump.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger

	room     *Room
	username string
}

func ServeWS(hub *Hub, writer http.ResponseWriter, request *http.Request) {
	websocketConn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		hub.logger.Warn().Err(err).Msg("upgrade error")
		return
	}
	client := &Client{
		hub:    hub,
		conn:   websocketConn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: hub.logger.With().Str("remote", request.RemoteAddr).Logger(),
	}
	if !hub.addClient(client) {
		_ = websocketConn.Close()
		return
	}
	if hub.metrics != nil {
		hub.metrics.IncConn()
	}

	go client.writePump()
	go client.readPump()
}

// queue hands a frame to the write pump. It never blocks; a full buffer
// disconnects the client and reports false.
func (client *Client) queue(payload []byte) bool {
	select {
	case <-client.done:
		return false
	default:
	}
	select {
	case client.send <- payload:
		return true
	default:
		client.kick()
		return false
	}
}

// kick closes the connection once; the read pump notices and cleans up.
func (client *Client) kick() {
	client.once.Do(func() {
		close(client.done)
		_ = client.conn.Close()
	})
}

func (client *Client) readPump() {
	defer func() {
		client.leaveRoom()
		client.kick()
		client.hub.removeClient(client)
		if client.hub.metrics != nil {
			client.hub.metrics.DecConn()
		}
	}()
	client.conn.SetReadLimit(maxMsgSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := client.conn.ReadMessage()
		if err != nil {
			// read error ends the loop so the deferred cleanup can fire.
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				client.logger.Debug().Err(err).Msg("websocket closed")
			}
			break
		}
		var envelope Envelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			client.sendError(CodeBadRequest, "invalid frame")
			continue
		}
		client.dispatch(envelope)
	}
}

func (client *Client) dispatch(envelope Envelope) {
	switch envelope.Event {
	case EventJoinRoom:
		var data JoinRoomData
		if err := decodeData(envelope.Data, &data); err != nil {
			client.sendError(CodeBadRequest, "invalid join-room payload")
			return
		}
		client.handleJoin(data)
	case EventSendMessage:
		var data SendMessageData
		if err := decodeData(envelope.Data, &data); err != nil {
			client.sendError(CodeBadRequest, "invalid send-message payload")
			return
		}
		client.handleSend(data)
	case EventTyping:
		var data TypingData
		if err := decodeData(envelope.Data, &data); err != nil {
			client.sendError(CodeBadRequest, "invalid typing payload")
			return
		}
		client.handleTyping(data)
	default:
		client.sendError(CodeBadRequest, "unknown event "+envelope.Event)
	}
}

func decodeData(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (client *Client) handleJoin(data JoinRoomData) {
	username := sanitizeString(data.Username, maxNameLength)
	if username == "" {
		client.sendError(CodeUsernameRequired, "username is required")
		return
	}
	roomID := sanitizeString(data.RoomID, maxRoomLength)
	if roomID == "" {
		roomID = client.hub.defaultRoom
	}
	client.leaveRoom()

	room := client.hub.getOrCreateRoom(roomID)
	if room.submit(roomOp{kind: opJoin, client: client, username: username}) {
		client.room = room
		client.username = username
	}
}

func (client *Client) handleSend(data SendMessageData) {
	room := client.joinedRoom(data.RoomID)
	if room == nil {
		client.sendError(CodeNotJoined, "join a room before sending messages")
		return
	}
	message := ChatMessage{
		RoomID:   room.key,
		Username: client.username,
		Message:  sanitizeString(data.Message, maxTextLength),
		Type:     KindText,
	}
	if data.FileID != "" {
		record, err := client.hub.registry.Get(data.FileID)
		if err != nil {
			client.sendError(CodeNotFound, "file not found")
			return
		}
		view := record.View()
		message.Type = KindFile
		message.FileID = record.ID
		message.FileInfo = &view
	} else if message.Message == "" {
		return
	}
	message.ID = client.hub.nextID()
	message.Timestamp = client.hub.now()

	room.submit(roomOp{kind: opPost, client: client, message: message})
}

func (client *Client) handleTyping(data TypingData) {
	room := client.joinedRoom(data.RoomID)
	if room == nil {
		client.sendError(CodeNotJoined, "join a room first")
		return
	}
	room.submit(roomOp{kind: opTyping, client: client, isTyping: data.IsTyping})
}

// joinedRoom returns the current room when roomID is empty or matches it.
func (client *Client) joinedRoom(roomID string) *Room {
	if client.room == nil {
		return nil
	}
	if roomID != "" && roomID != client.room.key {
		return nil
	}
	return client.room
}

func (client *Client) leaveRoom() {
	if client.room == nil {
		return
	}
	// wait for the old room to drain, so everything sent there is delivered
	// before a join elsewhere
	done := make(chan struct{})
	if client.room.submit(roomOp{kind: opLeave, client: client, done: done}) {
		select {
		case <-done:
		case <-client.hub.ctx.Done():
		}
	}
	client.room = nil
	client.username = ""
}

func (client *Client) sendError(code, message string) {
	payload, err := encodeEvent(EventError, ErrorData{Error: message, Code: code})
	if err != nil {
		return
	}
	client.queue(payload)
}

func (client *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.kick()
	}()
	for {
		select {
		case message := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.done:
			_ = client.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
			return
		}
	}
}

// sanitizeString drops control characters, trims spaces and caps the length
// in runes.
func sanitizeString(s string, maxLen int) string {
	if s == "" {
		return ""
	}
	var builder strings.Builder
	builder.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) && r != '\t' && r != '\n' {
			continue
		}
		if r == unicode.ReplacementChar {
			continue
		}
		builder.WriteRune(r)
	}
	result := strings.TrimSpace(builder.String())
	if runes := []rune(result); len(runes) > maxLen {
		result = strings.TrimSpace(string(runes[:maxLen]))
	}
	return result
}
