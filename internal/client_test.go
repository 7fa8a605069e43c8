package internal

import (
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"sharehub/internal/files"
)

func TestHTTPBaseFromJoinURL(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "ws://localhost:3000/ws", want: "http://localhost:3000"},
		{in: "wss://share.example.com/ws?x=1", want: "https://share.example.com"},
		{in: "http://localhost:3000", wantErr: true},
	}
	for _, tc := range cases {
		got, err := httpBaseFromJoinURL(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%s: got %q, %v", tc.in, got, err)
		}
	}
}

func TestDecodeFrame(t *testing.T) {
	cases := []struct {
		frame string
		check func(tea.Msg) bool
	}{
		{`{"event":"room-joined","data":{"roomId":"r","users":["a"],"messages":[]}}`, func(m tea.Msg) bool {
			v, ok := m.(roomJoinedMsg)
			return ok && v.RoomID == "r"
		}},
		{`{"event":"new-message","data":{"id":"1","username":"a","message":"hi","type":"text"}}`, func(m tea.Msg) bool {
			v, ok := m.(incomingMsg)
			return ok && v.Message == "hi"
		}},
		{`{"event":"user-left","data":{"roomId":"r","username":"b","users":["a"]}}`, func(m tea.Msg) bool {
			v, ok := m.(membershipMsg)
			return ok && !v.joined && v.data.Username == "b"
		}},
		{`{"event":"user-typing","data":{"username":"b","isTyping":true}}`, func(m tea.Msg) bool {
			v, ok := m.(typingMsg)
			return ok && v.IsTyping
		}},
		{`{"event":"error","data":{"error":"nope","code":"NOT_JOINED"}}`, func(m tea.Msg) bool {
			v, ok := m.(serverErrorMsg)
			return ok && v.Code == CodeNotJoined
		}},
		{`{"event":"mystery"}`, func(m tea.Msg) bool {
			_, ok := m.(skipMsg)
			return ok
		}},
		{`garbage`, func(m tea.Msg) bool {
			_, ok := m.(skipMsg)
			return ok
		}},
	}
	for _, tc := range cases {
		if msg := decodeFrame([]byte(tc.frame)); !tc.check(msg) {
			t.Fatalf("unexpected decode of %s: %#v", tc.frame, msg)
		}
	}
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestMenuFlowEntersChat(t *testing.T) {
	model := NewTUIModel("ws://127.0.0.1:1/ws", "", "alice")
	if model.mode != modeMenu {
		t.Fatalf("expected menu mode")
	}
	model.Update(key("1"))
	if model.mode != modeNamePrompt {
		t.Fatalf("expected name prompt, got %v", model.mode)
	}

	model.textInput.SetValue("   ")
	model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if model.mode != modeNamePrompt || len(model.lines) != 1 {
		t.Fatalf("blank name should be refused with a notice")
	}

	model.textInput.SetValue("bob")
	model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if model.mode != modeJoinPrompt || model.username != "bob" {
		t.Fatalf("expected join prompt for bob, got mode %v user %q", model.mode, model.username)
	}

	model.textInput.SetValue("lobby")
	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if model.mode != modeChat || model.roomID != "lobby" || cmd == nil {
		t.Fatalf("expected chat mode in lobby")
	}

	model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if model.mode != modeMenu {
		t.Fatalf("esc should return to the menu")
	}
}

func TestCreateRoomGeneratesKey(t *testing.T) {
	model := NewTUIModel("ws://127.0.0.1:1/ws", "", "alice")
	model.Update(key("2"))
	model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if model.mode != modeChat || len(model.roomID) != 12 {
		t.Fatalf("expected a 12 char room key, got %q", model.roomID)
	}
	if !strings.Contains(model.lines[len(model.lines)-1].Body, model.roomID) {
		t.Fatalf("invite notice should name the room")
	}
}

func TestModelAppliesRoomEvents(t *testing.T) {
	model := NewTUIModel("ws://127.0.0.1:1/ws", "r", "alice")
	model.notice("kept")
	model.appendLine(chatLine{User: "old", Body: "stale"})

	model.Update(roomJoinedMsg{RoomID: "r", Users: []string{"alice", "bob"}, Messages: []ChatMessage{
		{Username: "bob", Message: "earlier", Type: KindText},
	}})
	if len(model.users) != 2 {
		t.Fatalf("users = %v", model.users)
	}
	for _, line := range model.lines {
		if line.Body == "stale" {
			t.Fatalf("stale chat lines should be replaced by history")
		}
	}

	model.Update(typingMsg{Username: "bob", IsTyping: true})
	if got := model.typingLine(); got != "bob is typing…" {
		t.Fatalf("typing line = %q", got)
	}
	model.Update(incomingMsg{Username: "bob", Message: "hello", Type: KindText})
	if model.typingLine() != "" {
		t.Fatalf("a message should clear the typing flag")
	}

	view := files.View{ID: "f1", OriginalName: "deck.pdf", FormattedSize: "2 KB"}
	model.Update(incomingMsg{Username: "bob", Type: KindFile, FileID: "f1", FileInfo: &view})
	last := model.lines[len(model.lines)-1]
	if last.File != "deck.pdf (2 KB) id f1" {
		t.Fatalf("file line = %q", last.File)
	}

	model.Update(membershipMsg{data: UserEventData{RoomID: "r", Username: "bob", Users: []string{"alice"}}})
	if len(model.users) != 1 || !strings.Contains(model.lines[len(model.lines)-1].Body, "bob left") {
		t.Fatalf("leave not applied: %v", model.users)
	}
	if !strings.Contains(model.View(), "ShareHub") {
		t.Fatalf("chat view should render a header")
	}
}

func TestScrollbackIsBounded(t *testing.T) {
	model := NewTUIModel("ws://127.0.0.1:1/ws", "r", "alice")
	for i := 0; i < maxLines+25; i++ {
		model.appendLine(chatLine{User: "a", Body: "x"})
	}
	if len(model.lines) != maxLines {
		t.Fatalf("expected %d lines, got %d", maxLines, len(model.lines))
	}
}

func TestAPIClientRoundTrip(t *testing.T) {
	server, _ := newTestServer(t, nil, 1024)
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)
	api := newAPIClient(ts.URL)

	local := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(local, []byte("field notes"), 0o644); err != nil {
		t.Fatal(err)
	}
	resp, err := api.uploadFile(local)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(resp.Files) != 1 || resp.Files[0].OriginalName != "notes.txt" {
		t.Fatalf("unexpected upload response %+v", resp)
	}
	id := resp.Files[0].ID

	page, err := api.listFiles("notes")
	if err != nil || page.TotalFiles != 1 {
		t.Fatalf("list: %+v, %v", page, err)
	}
	if lines := describeFiles(page); len(lines) != 2 || !strings.Contains(lines[1], id) {
		t.Fatalf("describeFiles = %v", lines)
	}

	dir := t.TempDir()
	saved, err := api.downloadFile(id, dir)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if saved != filepath.Join(dir, "notes.txt") {
		t.Fatalf("saved to %s", saved)
	}
	data, err := os.ReadFile(saved)
	if err != nil || string(data) != "field notes" {
		t.Fatalf("downloaded %q, %v", data, err)
	}

	if _, err := api.downloadFile("missing", dir); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}

	blocked := filepath.Join(t.TempDir(), "tool.exe")
	if err := os.WriteFile(blocked, []byte("MZ"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := api.uploadFile(blocked); err == nil || !strings.Contains(err.Error(), "tool.exe") {
		t.Fatalf("expected blocked upload error, got %v", err)
	}
}

func TestCopyCommand(t *testing.T) {
	server, _ := newTestServer(t, nil, 1024)
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)

	local := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(local, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	model := NewTUIModel("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", "r", "alice")
	resp, err := model.api.uploadFile(local)
	if err != nil {
		t.Fatal(err)
	}

	var copied string
	original := writeClipboard
	t.Cleanup(func() { writeClipboard = original })
	writeClipboard = func(s string) error { copied = s; return nil }

	msg := model.runCommand("/copy " + resp.Files[0].ID)().(commandResultMsg)
	if msg.err != nil {
		t.Fatalf("copy: %v", msg.err)
	}
	if copied != ts.URL+"/api/download/"+resp.Files[0].ID {
		t.Fatalf("copied %q", copied)
	}

	writeClipboard = func(string) error { return errors.New("no clipboard") }
	msg = model.runCommand("/copy " + resp.Files[0].ID)().(commandResultMsg)
	if msg.err == nil || len(msg.lines) != 1 {
		t.Fatalf("clipboard failure should still print the link")
	}
}

func TestRunCommandUsage(t *testing.T) {
	model := NewTUIModel("ws://127.0.0.1:1/ws", "r", "alice")
	for _, input := range []string{"/share", "/get", "/upload", "/copy", "/bogus"} {
		msg, ok := model.runCommand(input)().(commandResultMsg)
		if !ok || msg.err == nil {
			t.Fatalf("%s: expected usage error", input)
		}
	}
	if msg := model.runCommand("/help")().(commandResultMsg); len(msg.lines) < 5 {
		t.Fatalf("help too short: %v", msg.lines)
	}
}

func TestListLocal(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("1234"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "a"), 0o755); err != nil {
		t.Fatal(err)
	}
	msg := listLocal(dir).(commandResultMsg)
	want := []string{dir + ":", "  ../", "  a/", "  b.txt  4 Bytes"}
	if strings.Join(msg.lines, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q", msg.lines)
	}
}

func TestClientChatsOverWebsocket(t *testing.T) {
	_, _, url := startChatServer(t)
	model := NewTUIModel(url, "tui", "alice")

	connected, ok := model.connectCmd()().(connectedMsg)
	if !ok {
		t.Fatalf("dial failed")
	}
	t.Cleanup(func() { connected.conn.Close() })
	model.websocketConn = connected.conn
	model.isConnected = true

	if msg := model.joinCmd()(); msg != nil {
		t.Fatalf("join: %#v", msg)
	}
	joined, ok := readUntil(t, model).(roomJoinedMsg)
	if !ok || joined.RoomID != "tui" {
		t.Fatalf("expected room-joined, got %#v", joined)
	}

	if msg := model.emitCmd(EventSendMessage, SendMessageData{RoomID: "tui", Message: "from the terminal"})(); msg != nil {
		t.Fatalf("send: %#v", msg)
	}
	incoming, ok := readUntil(t, model).(incomingMsg)
	if !ok || incoming.Message != "from the terminal" || incoming.Username != "alice" {
		t.Fatalf("unexpected message %#v", incoming)
	}
}

func readUntil(t *testing.T, model *TUIModel) tea.Msg {
	t.Helper()
	_ = model.websocketConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		msg := model.readOnceCmd()()
		if _, skip := msg.(skipMsg); !skip {
			return msg
		}
	}
}
