package internal

import (
	"os"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

// tui model struct holding the input widget, the sync engine, and the feed
// connection for the current session.
type TUIModel struct {
	textInput textinput.Model

	remote    *RemoteClient
	sync      *SyncController
	feedConn  *websocket.Conn
	statePath string
	adminUser string

	username        string
	pendingUsername string
	password        string
	mode            appMode
	authIntent      authIntent

	loading         bool
	isConnected     bool
	reconnecting    bool
	fatalError      *SyncError
	lastError       *SyncError
	notices         []string
	channelListOpen bool

	mentionOpen    bool
	mentionQuery   string
	mentionChoices []string
	mentionIndex   int
}

type appMode int

const (
	modeAuthMenu appMode = iota
	modeAuthUsername
	modeAuthPassword
	modeChat
)

type authIntent int

const (
	authIntentLogin authIntent = iota
	authIntentSignup
)

func NewTUIModel(serverURL, username, adminUser, statePath string) (*TUIModel, error) {
	remote, err := NewRemoteClient(serverURL)
	if err != nil {
		return nil, err
	}

	input := textinput.New()
	input.CharLimit = 0
	input.Prompt = ""

	if username == "" {
		username = defaultUsername()
	}

	return &TUIModel{
		textInput:       input,
		remote:          remote,
		statePath:       statePath,
		adminUser:       adminUser,
		pendingUsername: username,
		mode:            modeAuthMenu,
		channelListOpen: true,
	}, nil
}

func defaultUsername() string {
	if user := os.Getenv("MULTICHAT_USER"); user != "" {
		return user
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return ""
}

func (model *TUIModel) Init() tea.Cmd {
	return nil
}

// isAdmin reports whether the logged-in user is the configured admin. The
// admin identity is injected configuration; the credential check itself
// happened at login.
func (model *TUIModel) isAdmin() bool {
	return model.adminUser != "" && model.username == model.adminUser
}

// saveLocalState persists closed channels and read watermarks. Errors are
// reported as a notice but never interrupt the session.
func (model *TUIModel) saveLocalState() {
	if model.sync == nil || model.statePath == "" {
		return
	}
	state := LocalState{
		ClosedChannels: model.sync.Registry().ClosedChannels(),
		LastRead:       model.sync.Marks().LastReadSnapshot(),
	}
	if err := SaveLocalState(model.statePath, state); err != nil {
		model.addNotice("Could not save local state: " + err.Error())
	}
}

// beginSession builds a fresh sync controller for the authenticated user and
// restores the locally persisted read state.
func (model *TUIModel) beginSession(username string) {
	model.username = username
	model.sync = NewSyncController(username)
	if state, err := LoadLocalState(model.statePath); err == nil {
		model.sync.Registry().RestoreClosed(state.ClosedChannels)
		model.sync.Marks().RestoreLastRead(state.LastRead)
	} else {
		model.addNotice("Ignoring unreadable local state: " + err.Error())
	}
	model.mode = modeChat
	model.textInput.Placeholder = "Type a message or /help"
	model.textInput.Prompt = "> "
	model.textInput.SetValue("")
	model.textInput.Focus()
}

// endSession tears down the feed and sync state, used by logout.
func (model *TUIModel) endSession() {
	if model.feedConn != nil {
		_ = model.feedConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = model.feedConn.Close()
		model.feedConn = nil
	}
	if model.sync != nil {
		model.sync.Close()
	}
	model.isConnected = false
	model.username = ""
	model.mode = modeAuthMenu
	model.textInput.Blur()
	model.textInput.SetValue("")
	model.textInput.Prompt = ""
	model.textInput.Placeholder = ""
	model.closeMentionDropdown()
}

// addNotice appends a transient status line, keeping only the most recent few.
func (model *TUIModel) addNotice(text string) {
	model.notices = append(model.notices, text)
	if len(model.notices) > 3 {
		model.notices = model.notices[len(model.notices)-3:]
	}
}

func (model *TUIModel) closeMentionDropdown() {
	model.mentionOpen = false
	model.mentionQuery = ""
	model.mentionChoices = nil
	model.mentionIndex = 0
}

// refreshMentionState re-derives the autocomplete dropdown from the current
// input text and cursor.
func (model *TUIModel) refreshMentionState() {
	if model.sync == nil {
		model.closeMentionDropdown()
		return
	}
	query, ok := ParseMentionTrigger(model.textInput.Value(), model.textInput.Position())
	if !ok {
		model.closeMentionDropdown()
		return
	}
	choices := MentionSuggestions(query, model.sync.Presence().KnownUsers())
	if len(choices) == 0 {
		model.closeMentionDropdown()
		return
	}
	model.mentionOpen = true
	model.mentionQuery = query
	model.mentionChoices = choices
	if model.mentionIndex >= len(choices) {
		model.mentionIndex = 0
	}
}

// RunClient launches the bubbletea program for an interactive chat session.
func RunClient(serverURL, username, adminUser, statePath string) error {
	model, err := NewTUIModel(serverURL, username, adminUser, statePath)
	if err != nil {
		return err
	}
	program := tea.NewProgram(model)
	_, err = program.Run()
	return err
}
