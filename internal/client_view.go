package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const messageHistoryLines = 20

var (
	titleStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	channelPaneStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(26)
	messagePaneStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(72)
	usersPaneStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(22)
	activeChannelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	unreadBadgeStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	usernameStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	systemStyle        = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("245"))
	timestampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	mentionStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	selfMentionStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("220"))
	errorStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	noticeStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	onlineDotStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	dropdownStyle      = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
	dropdownPickStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("212"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func (model *TUIModel) View() string {
	if model.fatalError != nil {
		return errorStyle.Render("Configuration error: "+model.fatalError.Error()) +
			"\n\nCheck the server address and restart. Press ctrl+c to exit.\n"
	}
	switch model.mode {
	case modeAuthMenu:
		return model.viewAuthMenu()
	case modeAuthUsername, modeAuthPassword:
		return model.viewAuthPrompt()
	default:
		return model.viewChat()
	}
}

func (model *TUIModel) viewAuthMenu() string {
	var view strings.Builder
	view.WriteString(titleStyle.Render("multichat") + "\n\n")
	if model.loading {
		view.WriteString("Signing in...\n")
	} else {
		view.WriteString("  1. Login\n")
		view.WriteString("  2. Sign up\n")
		view.WriteString("  q. Quit\n")
	}
	if model.lastError != nil {
		view.WriteString("\n" + errorStyle.Render(model.lastError.Error()) + "\n")
	}
	return view.String()
}

func (model *TUIModel) viewAuthPrompt() string {
	var view strings.Builder
	view.WriteString(titleStyle.Render("multichat") + "\n\n")
	if model.authIntent == authIntentSignup {
		view.WriteString("Create an account (esc to go back)\n\n")
	} else {
		view.WriteString("Log in (esc to go back)\n\n")
	}
	view.WriteString(model.textInput.View() + "\n")
	return view.String()
}

func (model *TUIModel) viewChat() string {
	var panes []string
	if model.channelListOpen {
		panes = append(panes, model.renderChannelPane())
	}
	panes = append(panes, model.renderMessagePane(), model.renderUsersPane())

	var view strings.Builder
	view.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panes...) + "\n")
	view.WriteString(model.textInput.View() + "\n")
	if model.mentionOpen {
		view.WriteString(model.renderMentionDropdown() + "\n")
	}
	view.WriteString(model.renderStatusLine() + "\n")
	for _, notice := range model.notices {
		view.WriteString(noticeStyle.Render(notice) + "\n")
	}
	if model.lastError != nil {
		view.WriteString(errorStyle.Render(model.lastError.Error()+" (esc to dismiss)") + "\n")
	}
	return view.String()
}

func (model *TUIModel) renderChannelPane() string {
	var pane strings.Builder
	pane.WriteString(titleStyle.Render("Channels") + "\n")
	for _, channel := range model.sync.VisibleChannels() {
		name := model.sync.Registry().DisplayName(channel)
		line := "  " + name
		if channel == model.sync.ActiveChannel() {
			line = activeChannelStyle.Render("> " + name)
		}
		if unread := model.sync.UnreadCount(channel); unread > 0 {
			line += " " + unreadBadgeStyle.Render(fmt.Sprintf("(%d)", unread))
		}
		pane.WriteString(line + "\n")
	}
	return channelPaneStyle.Render(strings.TrimRight(pane.String(), "\n"))
}

func (model *TUIModel) renderMessagePane() string {
	var pane strings.Builder
	header := model.sync.Registry().DisplayName(model.sync.ActiveChannel())
	pane.WriteString(titleStyle.Render(header) + "\n")

	if model.loading || model.sync.State() == SyncLoading {
		pane.WriteString(noticeStyle.Render("Loading messages..."))
		return messagePaneStyle.Render(pane.String())
	}

	messages := model.sync.ActiveView()
	if len(messages) > messageHistoryLines {
		messages = messages[len(messages)-messageHistoryLines:]
	}
	if len(messages) == 0 {
		pane.WriteString(noticeStyle.Render("No messages yet."))
	}
	for _, m := range messages {
		pane.WriteString(model.renderMessage(m) + "\n")
	}
	return messagePaneStyle.Render(strings.TrimRight(pane.String(), "\n"))
}

func (model *TUIModel) renderMessage(m Message) string {
	stamp := timestampStyle.Render(time.UnixMilli(m.Timestamp).Format("15:04"))
	if m.Username == SystemUser {
		return stamp + " " + systemStyle.Render(m.Text)
	}
	var text strings.Builder
	for _, segment := range HighlightMentions(m.Text) {
		switch {
		case !segment.Mention:
			text.WriteString(segment.Text)
		case MentionsUser(segment.Text, model.username):
			text.WriteString(selfMentionStyle.Render(segment.Text))
		default:
			text.WriteString(mentionStyle.Render(segment.Text))
		}
	}
	line := stamp + " " + usernameStyle.Render(m.Username) + ": " + text.String()
	if m.FileURL != "" {
		attachment := fmt.Sprintf("attachment: %s (%s) %s", m.FileName, formatFileSize(m.FileSize), m.FileURL)
		line += "\n    " + noticeStyle.Render(attachment)
	}
	return line
}

func (model *TUIModel) renderUsersPane() string {
	var pane strings.Builder
	pane.WriteString(titleStyle.Render("Online") + "\n")
	for _, user := range model.sync.Presence().OnlineUsers(time.Now()) {
		line := onlineDotStyle.Render("*") + " " + user
		if user == model.username {
			line += noticeStyle.Render(" (you)")
		}
		pane.WriteString(line + "\n")
	}
	return usersPaneStyle.Render(strings.TrimRight(pane.String(), "\n"))
}

func (model *TUIModel) renderMentionDropdown() string {
	var pane strings.Builder
	for i, choice := range model.mentionChoices {
		if i == model.mentionIndex {
			pane.WriteString(dropdownPickStyle.Render("@"+choice) + "\n")
		} else {
			pane.WriteString("@" + choice + "\n")
		}
	}
	return dropdownStyle.Render(strings.TrimRight(pane.String(), "\n"))
}

func (model *TUIModel) renderStatusLine() string {
	connection := "online"
	if model.reconnecting {
		connection = "reconnecting..."
	} else if !model.isConnected {
		connection = "offline"
	}
	return statusStyle.Render(fmt.Sprintf(
		"%s | %s | ctrl+n/ctrl+p switch channel, ctrl+o toggle list, /help for commands",
		model.username, connection,
	))
}

func formatFileSize(size int64) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
