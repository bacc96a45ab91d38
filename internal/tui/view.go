package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/tOgg1/parley/internal/models"
)

const (
	listWidth     = 32
	defaultWidth  = 100
	defaultHeight = 30
)

func (m *Model) View() string {
	width, height := m.width, m.height
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}

	footer := m.renderFooter(width)
	bodyHeight := max(3, height-lipgloss.Height(footer)-2)

	list := m.paneStyle(m.focus == focusThreads).
		Width(listWidth).
		Height(bodyHeight).
		Render(m.renderThreads(listWidth-2, bodyHeight))

	threadWidth := max(20, width-listWidth-4)
	thread := m.paneStyle(m.focus == focusCompose).
		Width(threadWidth).
		Height(bodyHeight).
		Render(m.renderThread(threadWidth-2, bodyHeight))

	body := lipgloss.JoinHorizontal(lipgloss.Top, list, thread)
	return lipgloss.JoinVertical(lipgloss.Left, body, footer)
}

func (m *Model) paneStyle(focused bool) lipgloss.Style {
	if focused {
		return m.styles.active
	}
	return m.styles.pane
}

func (m *Model) renderThreads(width, height int) string {
	lines := []string{m.styles.title.Render("Threads")}
	if len(m.threads) == 0 {
		lines = append(lines, m.styles.muted.Render("No threads"))
		return strings.Join(lines, "\n")
	}

	// Keep the cursor in view.
	visible := max(1, height-1)
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	for i := start; i < len(m.threads) && i < start+visible; i++ {
		lines = append(lines, m.renderThreadRow(m.threads[i], i == m.cursor, width))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderThreadRow(thread models.Thread, selected bool, width int) string {
	marker := "  "
	if selected {
		marker = "> "
	}
	if m.hasActive && thread.ID == m.active {
		marker = "* "
	}

	var badges []string
	if thread.Online {
		badges = append(badges, m.styles.online.Render("●"))
	}
	if thread.Blocked {
		badges = append(badges, m.styles.failed.Render("⊘"))
	}
	if thread.UnreadCount > 0 {
		badges = append(badges, m.styles.unread.Render(fmt.Sprintf("(%d)", thread.UnreadCount)))
	}
	suffix := strings.Join(badges, " ")

	name := thread.DisplayName
	if name == "" {
		name = "thread " + thread.ID.String()
	}
	room := width - runewidth.StringWidth(marker) - lipgloss.Width(suffix) - 1
	name = runewidth.Truncate(name, max(1, room), "…")

	row := marker + name
	if selected {
		row = m.styles.selected.Render(row)
	}
	if suffix != "" {
		row += " " + suffix
	}
	return row
}

func (m *Model) renderThread(width, height int) string {
	if !m.hasActive {
		return m.styles.muted.Render("Select a thread and press enter")
	}

	title := "thread " + m.active.String()
	blocked := false
	for _, thread := range m.threads {
		if thread.ID == m.active {
			if thread.DisplayName != "" {
				title = thread.DisplayName
			}
			blocked = thread.Blocked
			break
		}
	}
	header := m.styles.title.Render(title)
	if blocked {
		header += " " + m.styles.failed.Render("[blocked]")
	}

	compose := m.renderCompose(width)
	available := max(1, height-lipgloss.Height(header)-lipgloss.Height(compose))

	lines := make([]string, 0, len(m.messages)+len(m.failures))
	for _, msg := range m.messages {
		lines = append(lines, m.renderMessage(msg, width))
	}
	for _, failed := range m.failures {
		if failed.Kind != models.MutationKindSend {
			continue
		}
		line := m.styles.failed.Render("! " + runewidth.Truncate(failed.Text, max(1, width-4), "…"))
		if len(failed.Attachments) > 0 {
			names := make([]string, 0, len(failed.Attachments))
			for _, ref := range failed.Attachments {
				names = append(names, ref.Name)
			}
			line += " " + m.styles.muted.Render("["+strings.Join(names, ", ")+"]")
		}
		if failed.Error != "" {
			line += " " + m.styles.muted.Render(failed.Error)
		}
		lines = append(lines, line)
	}
	if len(lines) > available {
		lines = lines[len(lines)-available:]
	}
	if len(lines) == 0 {
		lines = append(lines, m.styles.muted.Render("No messages yet"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, strings.Join(lines, "\n"), compose)
}

func (m *Model) renderMessage(msg models.Message, width int) string {
	own := m.config.SelfUserID != 0 && msg.SenderID == m.config.SelfUserID
	name := msg.SenderName
	style := m.styles.other
	if own {
		name = "you"
		style = m.styles.own
	}
	if name == "" {
		name = "user " + msg.SenderID.String()
	}

	prefix := ""
	if m.config.ShowTimestamps && !msg.CreatedAt.IsZero() {
		prefix = m.styles.muted.Render(msg.CreatedAt.Local().Format("15:04")) + " "
	}

	text := strings.ReplaceAll(msg.Content, "\n", " ")
	if n := len(msg.Attachments); n > 0 {
		text = strings.TrimSpace(text + fmt.Sprintf(" [%d attachment(s)]", n))
	}

	state := ""
	if pending, ok := m.engine.MutationFor(msg.ID); ok {
		switch pending.Status {
		case models.MutationStatusInFlight:
			state = " " + m.styles.muted.Render("…")
		case models.MutationStatusFailed:
			state = " " + m.styles.failed.Render("!")
		}
	}

	head := prefix + style.Render(name) + ": "
	room := max(1, width-lipgloss.Width(head)-lipgloss.Width(state))
	return head + runewidth.Truncate(text, room, "…") + state
}

func (m *Model) renderCompose(width int) string {
	prompt := "> "
	if m.staged > 0 {
		prompt = fmt.Sprintf("[%d file(s)] > ", m.staged)
	}
	input := string(m.input)
	if m.focus == focusCompose {
		input += "█"
	}
	room := max(1, width-runewidth.StringWidth(prompt))
	if runewidth.StringWidth(input) > room {
		// Show the tail of a long line.
		runes := []rune(input)
		for runewidth.StringWidth(string(runes)) > room {
			runes = runes[1:]
		}
		input = string(runes)
	}
	return m.styles.muted.Render(prompt) + input
}

func (m *Model) renderFooter(width int) string {
	help := "↑/↓ select  enter open/send  tab focus  ctrl+b block  ctrl+x delete  esc close  ctrl+c quit"
	if m.status != "" {
		style := m.styles.muted
		if m.isErr {
			style = m.styles.failed
		}
		return style.Render(runewidth.Truncate(m.status, width, "…"))
	}
	return m.styles.muted.Render(runewidth.Truncate(help, width, "…"))
}
