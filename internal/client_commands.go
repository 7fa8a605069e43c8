package internal

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"sharehub/internal/display"
)

// writeClipboard is swapped in tests; headless machines have no clipboard.
var writeClipboard = clipboard.WriteAll

func (model *TUIModel) scheduleReconnect() tea.Cmd {
	const retryDelay = 2 * time.Second
	return tea.Tick(retryDelay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

func (model *TUIModel) connectCmd() tea.Cmd {
	serverURL := model.serverURL
	return func() tea.Msg {
		if _, err := validateJoinURL(serverURL); err != nil {
			return connectFailedMsg{err: err}
		}
		conn, _, err := websocket.DefaultDialer.Dial(serverURL, http.Header{})
		if err != nil {
			return connectFailedMsg{err: err}
		}
		return connectedMsg{conn: conn}
	}
}

// readOnceCmd reads one frame and turns it into a tea message.
func (model *TUIModel) readOnceCmd() tea.Cmd {
	conn := model.websocketConn
	return func() tea.Msg {
		if conn == nil {
			return disconnectedMsg{err: errors.New("websocket not connected")}
		}
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			return disconnectedMsg{conn: conn, err: err}
		}
		if messageType != websocket.TextMessage {
			return skipMsg{}
		}
		return decodeFrame(payload)
	}
}

func decodeFrame(payload []byte) tea.Msg {
	var envelope Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return skipMsg{}
	}
	switch envelope.Event {
	case EventRoomJoined:
		var data RoomJoinedData
		if json.Unmarshal(envelope.Data, &data) == nil {
			return roomJoinedMsg(data)
		}
	case EventNewMessage:
		var data ChatMessage
		if json.Unmarshal(envelope.Data, &data) == nil {
			return incomingMsg(data)
		}
	case EventUserJoined, EventUserLeft:
		var data UserEventData
		if json.Unmarshal(envelope.Data, &data) == nil {
			return membershipMsg{data: data, joined: envelope.Event == EventUserJoined}
		}
	case EventUserTyping:
		var data UserTypingData
		if json.Unmarshal(envelope.Data, &data) == nil {
			return typingMsg(data)
		}
	case EventError:
		var data ErrorData
		if json.Unmarshal(envelope.Data, &data) == nil {
			return serverErrorMsg(data)
		}
	}
	return skipMsg{}
}

// emitCmd writes one envelope on the current connection.
func (model *TUIModel) emitCmd(event string, data any) tea.Cmd {
	conn := model.websocketConn
	return func() tea.Msg {
		if conn == nil {
			return commandResultMsg{err: errors.New("not connected")}
		}
		frame, err := encodeEvent(event, data)
		if err != nil {
			return commandResultMsg{err: err}
		}
		model.writeMutex.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		err = conn.WriteMessage(websocket.TextMessage, frame)
		model.writeMutex.Unlock()
		if err != nil {
			return commandResultMsg{err: err}
		}
		return nil
	}
}

func (model *TUIModel) joinCmd() tea.Cmd {
	return model.emitCmd(EventJoinRoom, JoinRoomData{RoomID: model.roomID, Username: model.username})
}

func (model *TUIModel) closeConn(reason string) {
	if model.websocketConn == nil {
		return
	}
	model.writeMutex.Lock()
	_ = model.websocketConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
	model.writeMutex.Unlock()
	_ = model.websocketConn.Close()
	model.websocketConn = nil
}

const helpText = `Commands:
  /files [search]     list shared files
  /share <fileId>     post a file into the room
  /upload <path>      upload a local file and share it
  /get <fileId> [dir] download a file
  /copy <fileId>      copy the download link
  /ls [dir]           list local files
  /quit               leave`

// runCommand handles a slash command typed in chat mode.
func (model *TUIModel) runCommand(input string) tea.Cmd {
	fields := strings.Fields(input)
	name := strings.ToLower(fields[0])
	args := fields[1:]

	switch name {
	case "/help":
		return resultCmd(strings.Split(helpText, "\n"), nil)
	case "/share":
		if len(args) != 1 {
			return resultCmd(nil, errors.New("usage: /share <fileId>"))
		}
		return model.emitCmd(EventSendMessage, SendMessageData{RoomID: model.roomID, FileID: args[0]})
	case "/ls":
		dir := getDefaultBrowsePath()
		if len(args) > 0 {
			dir = args[0]
		}
		return func() tea.Msg { return listLocal(dir) }
	}

	api := model.api
	if api == nil {
		return resultCmd(nil, errors.New("no server configured"))
	}
	switch name {
	case "/files":
		search := strings.Join(args, " ")
		return func() tea.Msg {
			page, err := api.listFiles(search)
			if err != nil {
				return commandResultMsg{err: err}
			}
			return commandResultMsg{lines: describeFiles(page)}
		}
	case "/upload":
		if len(args) == 0 {
			return resultCmd(nil, errors.New("usage: /upload <path>"))
		}
		path := strings.Join(args, " ")
		return func() tea.Msg {
			resp, err := api.uploadFile(path)
			if err != nil {
				return commandResultMsg{err: fmt.Errorf("upload %s: %w", path, err)}
			}
			return uploadedMsg{files: resp.Files}
		}
	case "/get":
		if len(args) == 0 || len(args) > 2 {
			return resultCmd(nil, errors.New("usage: /get <fileId> [dir]"))
		}
		id, dir := args[0], "."
		if len(args) == 2 {
			dir = args[1]
		}
		return func() tea.Msg {
			target, err := api.downloadFile(id, dir)
			if err != nil {
				return commandResultMsg{err: fmt.Errorf("download %s: %w", id, err)}
			}
			return commandResultMsg{lines: []string{"Saved " + target}}
		}
	case "/copy":
		if len(args) != 1 {
			return resultCmd(nil, errors.New("usage: /copy <fileId>"))
		}
		id := args[0]
		return func() tea.Msg {
			info, err := api.fileInfo(id)
			if err != nil {
				return commandResultMsg{err: err}
			}
			link := api.downloadURL(info.ID)
			if err := writeClipboard(link); err != nil {
				return commandResultMsg{lines: []string{link}, err: fmt.Errorf("clipboard: %w", err)}
			}
			return commandResultMsg{lines: []string{"Copied link for " + info.OriginalName + ": " + link}}
		}
	}
	return resultCmd(nil, fmt.Errorf("unknown command %s, try /help", name))
}

func resultCmd(lines []string, err error) tea.Cmd {
	return func() tea.Msg { return commandResultMsg{lines: lines, err: err} }
}

func describeFiles(page listResponse) []string {
	if len(page.Files) == 0 {
		return []string{"No files found."}
	}
	lines := make([]string, 0, len(page.Files)+1)
	lines = append(lines, fmt.Sprintf("%d file(s), page %d of %d", page.TotalFiles, page.CurrentPage, page.TotalPages))
	for _, file := range page.Files {
		lines = append(lines, fmt.Sprintf("  %s  %s  %s  %d downloads", file.ID, file.OriginalName, file.FormattedSize, file.Downloads))
	}
	return lines
}

func listLocal(dir string) tea.Msg {
	items, err := browseDirectory(dir)
	if err != nil {
		return commandResultMsg{err: err}
	}
	lines := []string{dir + ":"}
	for _, item := range items {
		if item.IsDir {
			lines = append(lines, "  "+item.Name+"/")
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s  %s", item.Name, display.FormatSize(item.Size)))
	}
	return commandResultMsg{lines: lines}
}

// RunClient starts the terminal client against a websocket URL.
func RunClient(serverURL, roomID, username string) error {
	model := NewTUIModel(serverURL, roomID, username)
	program := tea.NewProgram(model)
	_, err := program.Run()
	model.closeConn("client quit")
	return err
}

func validateJoinURL(base string) (*url.URL, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return nil, fmt.Errorf("invalid scheme for websocket: %s", parsed.Scheme)
	}
	return parsed, nil
}

// generateSecureKey makes a shareable room code from base32 characters.
func generateSecureKey(length int) string {
	if length < 8 {
		length = 8
	}
	byteLen := (length * 5) / 8
	if (length*5)%8 != 0 {
		byteLen++
	}
	b := make([]byte, byteLen)
	_, _ = rand.Read(b)
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b)
	if len(enc) >= length {
		return enc[:length]
	}
	return enc
}

func inviteText(serverURL, roomID string) string {
	var sb strings.Builder
	sb.WriteString("Invite others with:\n  sharehub chat --server ")
	sb.WriteString(serverURL)
	sb.WriteString(" --room ")
	sb.WriteString(roomID)
	return sb.String()
}
