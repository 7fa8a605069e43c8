package internal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// visibleLines is how much scrollback the chat view renders.
const visibleLines = 30

var (
	appTitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	subtitleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).MarginTop(1)
	menuBoxStyle       = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(1, 2).MarginTop(1)
	menuItemStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).PaddingLeft(1)
	menuHotkeyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	menuHintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	noticeBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("95")).Padding(1, 2).MarginTop(1)
	chatHeaderStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).MarginTop(1)
	connectedStyle     = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	messageBodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	fileBodyStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("117")).Underline(true)
	messageBoxStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(1, 2).MarginTop(1)
	inputBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	timestampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	usernameStyle      = lipgloss.NewStyle().Bold(true)
	activeUserStyle    = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	typingStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	errorStyle         = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	dividerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	userColorPalette   = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

func (model *TUIModel) View() string {
	switch model.mode {
	case modeMenu:
		return model.renderMenuView()
	case modeNamePrompt:
		return model.renderPrompt("Choose a display name", "Enter the name others will see, then press Enter.")
	case modeJoinPrompt:
		return model.renderPrompt("Join a room", "Enter a room name, or leave it empty for the default room.")
	default:
		return model.renderChatView()
	}
}

func (model *TUIModel) renderMenuView() string {
	title := appTitleStyle.Render("ShareHub")
	subtitle := subtitleStyle.Render("Share files and chat from your terminal")

	options := []string{
		renderMenuOption("1", "Join a room"),
		renderMenuOption("2", "Create a private room"),
		renderMenuOption("3", "Quit"),
	}

	viewSections := []string{
		lipgloss.JoinVertical(lipgloss.Left, title, subtitle),
		menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, options...)),
	}
	if notices := model.renderSystemNotices(); notices != "" {
		viewSections = append(viewSections, notices)
	}
	viewSections = append(viewSections, menuHintStyle.Render("Press 1, 2, or 3 to choose an option."))

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model *TUIModel) renderPrompt(title, hint string) string {
	viewSections := []string{appTitleStyle.Render(title), menuHintStyle.Render(hint)}
	if notices := model.renderSystemNotices(); notices != "" {
		viewSections = append(viewSections, notices)
	}
	viewSections = append(viewSections, inputBoxStyle.Render(model.textInput.View()))
	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model *TUIModel) renderChatView() string {
	room := model.roomID
	if room == "" {
		room = "(default)"
	}
	headerSegments := []string{
		"ShareHub",
		fmt.Sprintf("Room %s", room),
		fmt.Sprintf("User %s", model.username),
		fmt.Sprintf("Server %s", model.serverURL),
	}
	header := chatHeaderStyle.Render(strings.Join(headerSegments, dividerStyle))

	var statusLine string
	switch {
	case model.connectionError != nil && !model.isConnected:
		statusLine = errorStyle.Render("Connection error: " + model.connectionError.Error() + " (retrying)")
	case model.isConnected:
		statusLine = connectedStyle.Render(fmt.Sprintf("Connected · %d online: %s", len(model.users), strings.Join(model.users, ", ")))
	default:
		statusLine = connectingStyle.Render("Connecting…")
	}

	lines := model.lines
	if len(lines) > visibleLines {
		lines = lines[len(lines)-visibleLines:]
	}
	messageLines := make([]string, 0, len(lines))
	for _, line := range lines {
		messageLines = append(messageLines, model.renderChatLine(line))
	}
	if len(messageLines) == 0 {
		messageLines = append(messageLines, systemMessageStyle.Render("No messages yet. Say hi or /upload a file."))
	}

	sections := []string{header, statusLine, messageBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, messageLines...))}
	if typing := model.typingLine(); typing != "" {
		sections = append(sections, typingStyle.Render(typing))
	}
	sections = append(sections,
		inputBoxStyle.Render(model.textInput.View()),
		menuHintStyle.Render("/help for commands • Esc back to menu • /quit to exit"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model *TUIModel) typingLine() string {
	names := make([]string, 0, len(model.typing))
	for name := range model.typing {
		if name != model.username {
			names = append(names, name)
		}
	}
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing…"
	}
	sort.Strings(names)
	return strings.Join(names, ", ") + " are typing…"
}

func renderMenuOption(hotkey string, label string) string {
	key := menuHotkeyStyle.Render(hotkey)
	return lipgloss.JoinHorizontal(lipgloss.Left, key, menuItemStyle.Render(label))
}

// renderSystemNotices shows notices outside chat mode, such as a rejected
// display name.
func (model *TUIModel) renderSystemNotices() string {
	var notices []string
	for _, line := range model.lines {
		if line.System {
			notices = append(notices, systemMessageStyle.Render(line.Body))
		}
	}
	if len(notices) == 0 {
		return ""
	}
	return noticeBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, notices...))
}

// renderChatLine stamps the time, colors the sender, and indents multi-line
// bodies.
func (model *TUIModel) renderChatLine(line chatLine) string {
	timestamp := timestampStyle.Render(fmt.Sprintf("[%s]", line.At.Local().Format("15:04:05")))
	if line.System {
		body := systemMessageStyle.Render(line.Body)
		return lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", body)
	}

	var nameStyle lipgloss.Style
	if line.User == model.username {
		nameStyle = activeUserStyle
	} else {
		nameStyle = usernameStyle.Copy().Foreground(colorForUser(line.User))
	}
	name := nameStyle.Render(line.User)

	body := messageBodyStyle.Render(strings.ReplaceAll(line.Body, "\n", "\n   "))
	if line.File != "" {
		file := fileBodyStyle.Render("shared " + line.File)
		if line.Body == "" {
			body = file
		} else {
			body = lipgloss.JoinVertical(lipgloss.Left, body, file)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", name, ": ", body)
}

func colorForUser(name string) lipgloss.Color {
	if name == "" {
		return userColorPalette[0]
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return userColorPalette[sum%len(userColorPalette)]
}
