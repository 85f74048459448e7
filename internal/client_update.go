package internal

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

func (model *TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return model.handleKey(msg)

	case authOKMsg:
		model.loading = false
		model.lastError = nil
		model.password = ""
		model.beginSession(msg.username)
		return model, tea.Batch(
			model.connectFeedCmd(),
			model.heartbeatCmd(true),
			heartbeatTick(),
			presenceTick(),
		)

	case signupOKMsg:
		model.addNotice("Account created, signing in")
		return model, model.loginCmd(msg.username, model.password)

	case authFailedMsg:
		model.loading = false
		model.password = ""
		model.lastError = asSyncError(msg.err, "auth")
		model.mode = modeAuthMenu
		model.textInput.Blur()
		model.textInput.SetValue("")
		return model, nil

	case feedConnectedMsg:
		model.feedConn = msg.conn
		model.isConnected = true
		model.reconnecting = false
		cmds := []tea.Cmd{readFeedCmd(msg.conn)}
		// reload after every connect so anything missed while offline is
		// reconciled; events arriving mid-load are buffered and replayed.
		if model.sync != nil && model.sync.State() != SyncLoading {
			model.sync.BeginLoad()
			model.loading = true
			cmds = append(cmds, model.loadSnapshotCmd())
		}
		return model, tea.Batch(cmds...)

	case feedEventMsg:
		var cmds []tea.Cmd
		if model.feedConn != nil {
			cmds = append(cmds, readFeedCmd(model.feedConn))
		}
		if model.sync != nil {
			result := model.sync.HandleEvent(ChangeEvent(msg))
			if result.NewDirect != "" {
				model.channelListOpen = true
				model.addNotice("New conversation: " + model.sync.Registry().DisplayName(result.NewDirect))
			}
			if result.Applied {
				model.saveLocalState()
			}
		}
		return model, tea.Batch(cmds...)

	case feedFailedMsg:
		model.isConnected = false
		if model.feedConn != nil {
			_ = model.feedConn.Close()
			model.feedConn = nil
		}
		if model.mode == modeChat {
			model.reconnecting = true
			return model, scheduleReconnect()
		}
		return model, nil

	case reconnectMsg:
		if model.mode == modeChat && !model.isConnected {
			return model, model.connectFeedCmd()
		}
		return model, nil

	case snapshotMsg:
		model.loading = false
		if model.sync != nil {
			model.sync.CompleteLoad(msg.snapshot)
			model.saveLocalState()
		}
		return model, nil

	case loadFailedMsg:
		model.loading = false
		if model.sync != nil {
			model.sync.FailLoad(msg.err)
		}
		syncErr := asSyncError(msg.err, "load")
		if syncErr.Kind == KindConfig {
			model.fatalError = syncErr
		} else {
			model.lastError = syncErr
			model.addNotice("Load failed, press ctrl+r to retry")
		}
		return model, nil

	case heartbeatTickMsg:
		if model.mode != modeChat {
			return model, nil
		}
		return model, tea.Batch(model.heartbeatCmd(true), heartbeatTick())

	case presenceTickMsg:
		if model.mode != modeChat {
			return model, nil
		}
		return model, tea.Batch(model.refreshPresenceCmd(), presenceTick())

	case presenceMsg:
		// refresh failures are transient by nature; the next tick retries.
		if msg.err == nil && model.sync != nil {
			model.sync.Presence().ReplaceAll(msg.users)
		}
		return model, nil

	case sentMsg:
		if msg.err != nil {
			model.lastError = asSyncError(msg.err, "send")
		}
		return model, nil

	case uploadedMsg:
		if msg.err != nil {
			model.lastError = asSyncError(msg.err, "upload")
		}
		return model, nil

	case directOpenedMsg:
		if msg.err != nil {
			model.lastError = asSyncError(msg.err, "direct message")
			return model, nil
		}
		if model.sync != nil {
			if err := model.sync.RegisterDirect(msg.channel); err != nil {
				model.lastError = asSyncError(err, "direct message")
				return model, nil
			}
			model.saveLocalState()
		}
		return model, nil

	case clearedMsg:
		if msg.err != nil {
			model.lastError = asSyncError(msg.err, "clear")
		}
		return model, nil

	case loggedOutMsg:
		model.endSession()
		return model, nil
	}
	return model, nil
}

func (model *TUIModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return model, model.quitCmd()
	}
	switch model.mode {
	case modeAuthMenu:
		return model.handleAuthMenuKey(msg)
	case modeAuthUsername, modeAuthPassword:
		return model.handleAuthPromptKey(msg)
	case modeChat:
		return model.handleChatKey(msg)
	}
	return model, nil
}

func (model *TUIModel) handleAuthMenuKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if model.loading {
		return model, nil
	}
	switch msg.String() {
	case "1":
		model.authIntent = authIntentLogin
		model.startUsernamePrompt()
	case "2":
		model.authIntent = authIntentSignup
		model.startUsernamePrompt()
	case "q", "esc":
		return model, tea.Quit
	}
	return model, nil
}

func (model *TUIModel) startUsernamePrompt() {
	model.mode = modeAuthUsername
	model.lastError = nil
	model.textInput.Prompt = "username: "
	model.textInput.Placeholder = ""
	model.textInput.EchoMode = textinput.EchoNormal
	model.textInput.SetValue(model.pendingUsername)
	model.textInput.CursorEnd()
	model.textInput.Focus()
}

func (model *TUIModel) handleAuthPromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		model.mode = modeAuthMenu
		model.textInput.Blur()
		model.textInput.SetValue("")
		model.textInput.EchoMode = textinput.EchoNormal
		return model, nil

	case tea.KeyEnter:
		value := strings.TrimSpace(model.textInput.Value())
		if value == "" {
			return model, nil
		}
		if model.mode == modeAuthUsername {
			model.pendingUsername = value
			model.mode = modeAuthPassword
			model.textInput.Prompt = "password: "
			model.textInput.EchoMode = textinput.EchoPassword
			model.textInput.EchoCharacter = '*'
			model.textInput.SetValue("")
			return model, nil
		}
		model.password = value
		model.textInput.EchoMode = textinput.EchoNormal
		model.textInput.SetValue("")
		model.textInput.Blur()
		model.loading = true
		model.mode = modeAuthMenu
		if model.authIntent == authIntentSignup {
			return model, model.signupCmd(model.pendingUsername, model.password)
		}
		return model, model.loginCmd(model.pendingUsername, model.password)
	}

	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(msg)
	return model, cmd
}

func (model *TUIModel) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// the dropdown owns navigation keys while it is open.
	if model.mentionOpen {
		switch msg.Type {
		case tea.KeyUp:
			if model.mentionIndex > 0 {
				model.mentionIndex--
			}
			return model, nil
		case tea.KeyDown:
			if model.mentionIndex < len(model.mentionChoices)-1 {
				model.mentionIndex++
			}
			return model, nil
		case tea.KeyTab, tea.KeyEnter:
			chosen := model.mentionChoices[model.mentionIndex]
			text, cursor := ApplyMentionSelection(model.textInput.Value(), model.textInput.Position(), chosen)
			model.textInput.SetValue(text)
			model.textInput.SetCursor(cursor)
			model.closeMentionDropdown()
			return model, nil
		case tea.KeyEsc:
			model.closeMentionDropdown()
			return model, nil
		}
	}

	switch msg.Type {
	case tea.KeyEnter:
		return model.submitInput()
	case tea.KeyEsc:
		model.lastError = nil
		return model, nil
	case tea.KeyCtrlN:
		model.cycleChannel(1)
		return model, nil
	case tea.KeyCtrlP:
		model.cycleChannel(-1)
		return model, nil
	case tea.KeyCtrlO:
		model.channelListOpen = !model.channelListOpen
		return model, nil
	case tea.KeyCtrlR:
		if model.sync != nil && model.sync.State() != SyncLoading {
			model.sync.BeginLoad()
			model.loading = true
			return model, model.loadSnapshotCmd()
		}
		return model, nil
	}

	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(msg)
	model.refreshMentionState()
	return model, cmd
}

func (model *TUIModel) cycleChannel(step int) {
	if model.sync == nil {
		return
	}
	channels := model.sync.VisibleChannels()
	if len(channels) == 0 {
		return
	}
	index := 0
	for i, channel := range channels {
		if channel == model.sync.ActiveChannel() {
			index = i
			break
		}
	}
	index = (index + step + len(channels)) % len(channels)
	if err := model.sync.SwitchChannel(channels[index]); err == nil {
		model.saveLocalState()
	}
}

func (model *TUIModel) submitInput() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(model.textInput.Value())
	if text == "" {
		return model, nil
	}
	model.textInput.SetValue("")
	model.closeMentionDropdown()

	if !strings.HasPrefix(text, "/") {
		if model.sync == nil || model.sync.State() != SyncSubscribed {
			model.addNotice("Still loading, try again in a moment")
			return model, nil
		}
		return model, model.sendCmd(text)
	}

	fields := strings.Fields(text)
	command, args := fields[0], fields[1:]
	switch command {
	case "/quit", "/exit":
		return model, model.quitCmd()

	case "/logout":
		return model, model.logoutCmd()

	case "/dm":
		if len(args) != 1 {
			model.addNotice("Usage: /dm <user>")
			return model, nil
		}
		if args[0] == model.username {
			model.lastError = newValidationError("direct message", fmt.Errorf("cannot open a conversation with yourself"))
			return model, nil
		}
		return model, model.openDirectCmd(args[0])

	case "/close":
		if model.sync != nil {
			model.sync.CloseActiveChannel()
			model.saveLocalState()
		}
		return model, nil

	case "/channel", "/go":
		if len(args) != 1 || model.sync == nil {
			model.addNotice("Usage: /channel <name>")
			return model, nil
		}
		if err := model.sync.SwitchChannel(args[0]); err != nil {
			model.lastError = asSyncError(err, "switch channel")
			return model, nil
		}
		model.saveLocalState()
		return model, nil

	case "/clear":
		if !model.isAdmin() {
			model.lastError = newValidationError("clear", fmt.Errorf("only the admin can clear the chat"))
			return model, nil
		}
		return model, model.clearCmd()

	case "/upload":
		if len(args) == 0 {
			model.addNotice("Usage: /upload <path> [caption]")
			return model, nil
		}
		return model, model.uploadCmd(args[0], strings.Join(args[1:], " "))

	case "/help":
		model.addNotice("Commands: /dm <user>, /close, /channel <name>, /clear, /upload <path>, /logout, /quit")
		return model, nil

	default:
		model.addNotice("Unknown command " + command)
		return model, nil
	}
}
