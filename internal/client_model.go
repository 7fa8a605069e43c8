package internal

import (
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

// maxLines bounds the scrollback kept by the terminal client.
const maxLines = 500

// TUIModel holds every piece of terminal client state.
type TUIModel struct {
	textInput       textinput.Model
	lines           []chatLine
	serverURL       string
	api             *apiClient
	roomID          string
	username        string
	users           []string
	typing          map[string]bool
	typingSent      bool
	websocketConn   *websocket.Conn
	writeMutex      sync.Mutex
	isConnected     bool
	connectionError error
	mode            appMode
	pendingAction   actionType
	now             func() time.Time
}

// chatLine is one rendered entry: a chat message, a file share, or a notice.
type chatLine struct {
	At     time.Time
	User   string
	Body   string
	File   string
	System bool
}

type appMode int

const (
	modeMenu appMode = iota
	modeNamePrompt
	modeJoinPrompt
	modeChat
)

type actionType int

const (
	actionNone actionType = iota
	actionJoin
	actionCreate
)

// NewTUIModel builds the client for a websocket URL such as
// ws://localhost:3000/ws. A non-empty room skips the menu.
func NewTUIModel(serverURL, roomID, username string) *TUIModel {
	input := textinput.New()
	input.Placeholder = "Type a message or /help"
	input.CharLimit = maxTextLength
	input.Focus()
	input.Prompt = "> "

	if username == "" {
		username = defaultUsername()
	}

	model := &TUIModel{
		textInput: input,
		lines:     make([]chatLine, 0, 64),
		serverURL: serverURL,
		roomID:    roomID,
		username:  username,
		typing:    make(map[string]bool),
		now:       time.Now,
	}
	if base, err := httpBaseFromJoinURL(serverURL); err == nil {
		model.api = newAPIClient(base)
	} else {
		model.connectionError = err
	}
	if roomID == "" {
		model.mode = modeMenu
		model.textInput.Blur()
		model.textInput.Prompt = ""
		model.textInput.Placeholder = ""
	} else {
		model.mode = modeChat
	}
	return model
}

func defaultUsername() string {
	if user := os.Getenv("SHAREHUB_USER"); user != "" {
		return user
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "anon"
}

func (model *TUIModel) Init() tea.Cmd {
	if model.mode == modeChat {
		return model.connectCmd()
	}
	return nil
}

func (model *TUIModel) notice(text string) {
	model.appendLine(chatLine{At: model.now(), User: "system", Body: text, System: true})
}

// resetHistory drops chat lines and keeps notices; used when room-joined
// delivers the full history again after a reconnect.
func (model *TUIModel) resetHistory(history []ChatMessage) {
	kept := model.lines[:0]
	for _, line := range model.lines {
		if line.System {
			kept = append(kept, line)
		}
	}
	model.lines = kept
	for _, msg := range history {
		model.appendLine(lineFromMessage(msg))
	}
}

func (model *TUIModel) appendLine(line chatLine) {
	model.lines = append(model.lines, line)
	if extra := len(model.lines) - maxLines; extra > 0 {
		model.lines = append(model.lines[:0], model.lines[extra:]...)
	}
}

func lineFromMessage(msg ChatMessage) chatLine {
	line := chatLine{At: msg.Timestamp, User: msg.Username, Body: msg.Message}
	if msg.Type == KindFile && msg.FileInfo != nil {
		line.File = msg.FileInfo.OriginalName + " (" + msg.FileInfo.FormattedSize + ") id " + msg.FileInfo.ID
	}
	return line
}
