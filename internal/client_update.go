package internal

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"sharehub/internal/files"
)

type (
	connectedMsg     struct{ conn *websocket.Conn }
	connectFailedMsg struct{ err error }
	disconnectedMsg  struct {
		conn *websocket.Conn
		err  error
	}
	reconnectMsg   struct{}
	skipMsg        struct{}
	roomJoinedMsg  RoomJoinedData
	incomingMsg    ChatMessage
	typingMsg      UserTypingData
	serverErrorMsg ErrorData
	membershipMsg  struct {
		data   UserEventData
		joined bool
	}
	commandResultMsg struct {
		lines []string
		err   error
	}
	uploadedMsg struct{ files []files.View }
)

func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		if typedMessage.Type == tea.KeyCtrlC {
			model.closeConn("client quit")
			return model, tea.Quit
		}
		switch model.mode {
		case modeMenu:
			return model.updateMenu(typedMessage)
		case modeNamePrompt:
			return model.updateNamePrompt(typedMessage)
		case modeJoinPrompt:
			return model.updateJoinPrompt(typedMessage)
		case modeChat:
			return model.updateChat(typedMessage)
		}

	case connectedMsg:
		model.websocketConn = typedMessage.conn
		model.isConnected = true
		model.connectionError = nil
		return model, tea.Batch(model.joinCmd(), model.readOnceCmd())

	case connectFailedMsg:
		model.connectionError = typedMessage.err
		if model.mode == modeChat {
			return model, model.scheduleReconnect()
		}
		return model, nil

	case disconnectedMsg:
		if typedMessage.conn != model.websocketConn {
			return model, nil
		}
		model.isConnected = false
		model.connectionError = typedMessage.err
		model.websocketConn = nil
		model.typing = make(map[string]bool)
		if model.mode == modeChat {
			return model, model.scheduleReconnect()
		}
		return model, nil

	case reconnectMsg:
		if model.mode == modeChat && !model.isConnected {
			return model, model.connectCmd()
		}
		return model, nil

	case skipMsg:
		return model, model.readOnceCmd()

	case roomJoinedMsg:
		model.roomID = typedMessage.RoomID
		model.users = typedMessage.Users
		model.resetHistory(typedMessage.Messages)
		model.notice(fmt.Sprintf("Joined %s as %s. Type /help for commands.", typedMessage.RoomID, model.username))
		return model, model.readOnceCmd()

	case incomingMsg:
		delete(model.typing, typedMessage.Username)
		model.appendLine(lineFromMessage(ChatMessage(typedMessage)))
		return model, model.readOnceCmd()

	case membershipMsg:
		model.users = typedMessage.data.Users
		if typedMessage.joined {
			model.notice(typedMessage.data.Username + " joined")
		} else {
			delete(model.typing, typedMessage.data.Username)
			model.notice(typedMessage.data.Username + " left")
		}
		return model, model.readOnceCmd()

	case typingMsg:
		if typedMessage.IsTyping {
			model.typing[typedMessage.Username] = true
		} else {
			delete(model.typing, typedMessage.Username)
		}
		return model, model.readOnceCmd()

	case serverErrorMsg:
		model.notice(fmt.Sprintf("Server error (%s): %s", typedMessage.Code, typedMessage.Error))
		return model, model.readOnceCmd()

	case commandResultMsg:
		for _, line := range typedMessage.lines {
			model.notice(line)
		}
		if typedMessage.err != nil {
			model.notice("Error: " + typedMessage.err.Error())
		}
		return model, nil

	case uploadedMsg:
		cmds := make([]tea.Cmd, 0, len(typedMessage.files))
		for _, file := range typedMessage.files {
			model.notice(fmt.Sprintf("Uploaded %s (%s) as %s", file.OriginalName, file.FormattedSize, file.ID))
			cmds = append(cmds, model.emitCmd(EventSendMessage, SendMessageData{RoomID: model.roomID, FileID: file.ID}))
		}
		return model, tea.Batch(cmds...)
	}
	return model, nil
}

func (model *TUIModel) updateMenu(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "1", "j", "J":
		return model, model.promptName(actionJoin)
	case "2", "c", "C":
		return model, model.promptName(actionCreate)
	case "q", "Q", "3", "esc":
		return model, tea.Quit
	}
	return model, nil
}

func (model *TUIModel) promptName(action actionType) tea.Cmd {
	model.pendingAction = action
	model.mode = modeNamePrompt
	model.textInput.SetValue(model.username)
	model.textInput.Placeholder = "Enter display name"
	model.textInput.Prompt = "name> "
	return model.textInput.Focus()
}

func (model *TUIModel) backToMenu() (tea.Model, tea.Cmd) {
	model.pendingAction = actionNone
	model.mode = modeMenu
	model.textInput.SetValue("")
	model.textInput.Blur()
	model.textInput.Placeholder = ""
	model.textInput.Prompt = ""
	return model, nil
}

func (model *TUIModel) updateNamePrompt(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEsc:
		return model.backToMenu()
	case tea.KeyEnter:
		trimmed := sanitizeString(model.textInput.Value(), maxNameLength)
		if trimmed == "" {
			model.notice("Display name cannot be empty.")
			return model, nil
		}
		model.username = trimmed
		model.textInput.SetValue("")
		switch model.pendingAction {
		case actionJoin:
			model.pendingAction = actionNone
			model.mode = modeJoinPrompt
			model.textInput.Placeholder = "Room name (empty for the default room)"
			model.textInput.Prompt = "room> "
			return model, model.textInput.Focus()
		case actionCreate:
			model.pendingAction = actionNone
			model.roomID = generateSecureKey(12)
			return model, model.enterChat(inviteText(model.serverURL, model.roomID))
		default:
			return model.backToMenu()
		}
	}
	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	return model, cmd
}

func (model *TUIModel) updateJoinPrompt(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEsc:
		return model.backToMenu()
	case tea.KeyEnter:
		model.roomID = sanitizeString(model.textInput.Value(), maxRoomLength)
		return model, model.enterChat("")
	}
	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	return model, cmd
}

func (model *TUIModel) enterChat(intro string) tea.Cmd {
	model.mode = modeChat
	model.textInput.SetValue("")
	model.textInput.Placeholder = "Type a message or /help"
	model.textInput.Prompt = "> "
	if intro != "" {
		model.notice(intro)
	}
	return tea.Batch(model.textInput.Focus(), model.connectCmd())
}

func (model *TUIModel) updateChat(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEsc:
		model.closeConn("left room")
		model.isConnected = false
		model.lines = model.lines[:0]
		model.users = nil
		return model.backToMenu()
	case tea.KeyEnter:
		trimmed := strings.TrimSpace(model.textInput.Value())
		model.textInput.SetValue("")
		stopTyping := model.typingCmd(false)
		if trimmed == "" {
			return model, stopTyping
		}
		if strings.HasPrefix(trimmed, "/") {
			lower := strings.ToLower(trimmed)
			if lower == "/quit" || lower == "/exit" {
				model.closeConn("client quit")
				return model, tea.Quit
			}
			return model, tea.Batch(stopTyping, model.runCommand(trimmed))
		}
		if !model.isConnected {
			model.notice("Not connected yet; message not sent.")
			return model, nil
		}
		return model, tea.Batch(stopTyping, model.emitCmd(EventSendMessage, SendMessageData{RoomID: model.roomID, Message: trimmed}))
	}
	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	value := model.textInput.Value()
	typing := value != "" && !strings.HasPrefix(value, "/")
	return model, tea.Batch(cmd, model.typingCmd(typing))
}

// typingCmd emits a typing event only when the state changes.
func (model *TUIModel) typingCmd(typing bool) tea.Cmd {
	if typing == model.typingSent || !model.isConnected {
		return nil
	}
	model.typingSent = typing
	return model.emitCmd(EventTyping, TypingData{RoomID: model.roomID, IsTyping: typing})
}
