package internal

import (
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

// messages delivered back into Update by the commands below.
type (
	authOKMsg     struct{ username string }
	signupOKMsg   struct{ username string }
	authFailedMsg struct{ err error }

	snapshotMsg   struct{ snapshot RemoteSnapshot }
	loadFailedMsg struct{ err error }

	feedConnectedMsg struct{ conn *websocket.Conn }
	feedEventMsg     ChangeEvent
	feedFailedMsg    struct{ err error }
	reconnectMsg     struct{}

	heartbeatTickMsg time.Time
	presenceTickMsg  time.Time
	presenceMsg      struct {
		users []PresenceEntry
		err   error
	}

	sentMsg         struct{ err error }
	uploadedMsg     struct{ err error }
	directOpenedMsg struct {
		channel string
		err     error
	}
	clearedMsg   struct{ err error }
	loggedOutMsg struct{}
)

func (model *TUIModel) loginCmd(username, password string) tea.Cmd {
	remote := model.remote
	return func() tea.Msg {
		name, err := remote.Login(username, password)
		if err != nil {
			return authFailedMsg{err: err}
		}
		return authOKMsg{username: name}
	}
}

func (model *TUIModel) signupCmd(username, password string) tea.Cmd {
	remote := model.remote
	return func() tea.Msg {
		if err := remote.Signup(username, password); err != nil {
			return authFailedMsg{err: err}
		}
		return signupOKMsg{username: username}
	}
}

func (model *TUIModel) loadSnapshotCmd() tea.Cmd {
	remote, username := model.remote, model.username
	return func() tea.Msg {
		snapshot, err := remote.LoadSnapshot(username)
		if err != nil {
			return loadFailedMsg{err: err}
		}
		return snapshotMsg{snapshot: snapshot}
	}
}

// connectFeedCmd dials the change-feed websocket. The connection is handed back
// through feedConnectedMsg so the model owns it on the update goroutine.
func (model *TUIModel) connectFeedCmd() tea.Cmd {
	feedURL, token := model.remote.FeedURL(), model.remote.Token()
	return func() tea.Msg {
		header := http.Header{}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
		conn, _, err := websocket.DefaultDialer.Dial(feedURL, header)
		if err != nil {
			return feedFailedMsg{err: classifyTransportError("feed dial", err)}
		}
		return feedConnectedMsg{conn: conn}
	}
}

// readFeedCmd blocks on the next change event. Update re-issues it after every
// event so the feed keeps draining without a dedicated goroutine.
func readFeedCmd(conn *websocket.Conn) tea.Cmd {
	return func() tea.Msg {
		var ev ChangeEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return feedFailedMsg{err: newSyncError(KindTransient, "feed read", err)}
		}
		return feedEventMsg(ev)
	}
}

func scheduleReconnect() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

func heartbeatTick() tea.Cmd {
	return tea.Tick(heartbeatInterval, func(t time.Time) tea.Msg {
		return heartbeatTickMsg(t)
	})
}

func presenceTick() tea.Cmd {
	return tea.Tick(presenceRefreshInterval, func(t time.Time) tea.Msg {
		return presenceTickMsg(t)
	})
}

// heartbeatCmd upserts the presence row. Failures are swallowed; the next tick
// retries anyway.
func (model *TUIModel) heartbeatCmd(online bool) tea.Cmd {
	remote, username := model.remote, model.username
	return func() tea.Msg {
		_ = remote.Heartbeat(username, online)
		return nil
	}
}

func (model *TUIModel) refreshPresenceCmd() tea.Cmd {
	remote := model.remote
	return func() tea.Msg {
		users, err := remote.FetchUsers()
		return presenceMsg{users: users, err: err}
	}
}

// sendCmd posts a text message. The stored row comes back through the feed, so
// nothing is applied locally here.
func (model *TUIModel) sendCmd(text string) tea.Cmd {
	remote := model.remote
	message := Message{Username: model.username, Text: text, Channel: model.sync.ActiveChannel()}
	return func() tea.Msg {
		_, err := remote.SendMessage(message)
		return sentMsg{err: err}
	}
}

func (model *TUIModel) uploadCmd(path, caption string) tea.Cmd {
	remote := model.remote
	username, channel := model.username, model.sync.ActiveChannel()
	return func() tea.Msg {
		uploaded, err := remote.UploadFile(path)
		if err != nil {
			return uploadedMsg{err: err}
		}
		message := Message{
			Username: username,
			Text:     caption,
			Channel:  channel,
			FileURL:  uploaded.URL,
			FileName: uploaded.Name,
			FileType: uploaded.Type,
			FileSize: uploaded.Size,
		}
		_, err = remote.SendMessage(message)
		return uploadedMsg{err: err}
	}
}

// openDirectCmd creates (or re-fetches) the direct channel with the other user.
// The server posts the "conversation started" notice so both sides see it.
func (model *TUIModel) openDirectCmd(other string) tea.Cmd {
	remote, self := model.remote, model.username
	return func() tea.Msg {
		channel, err := remote.CreateDirectChannel(self, other)
		if err != nil {
			return directOpenedMsg{err: err}
		}
		return directOpenedMsg{channel: channel.ID}
	}
}

func (model *TUIModel) clearCmd() tea.Cmd {
	remote := model.remote
	return func() tea.Msg {
		return clearedMsg{err: remote.ClearMessages(time.Now().UnixMilli())}
	}
}

func (model *TUIModel) logoutCmd() tea.Cmd {
	remote, username := model.remote, model.username
	return func() tea.Msg {
		_ = remote.Heartbeat(username, false)
		_ = remote.Logout()
		return loggedOutMsg{}
	}
}

// quitCmd marks the user offline before exiting when a session is live.
func (model *TUIModel) quitCmd() tea.Cmd {
	if model.mode != modeChat || model.username == "" {
		return tea.Quit
	}
	remote, username := model.remote, model.username
	return tea.Sequence(func() tea.Msg {
		_ = remote.Heartbeat(username, false)
		_ = remote.Logout()
		return nil
	}, tea.Quit)
}
