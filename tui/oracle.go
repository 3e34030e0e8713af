// Package tui is the interactive merge oracle: when the temporal heuristics
// cannot decide whether a candidate thread continues a conversation, it
// shows the human the conversation tail and the candidate head side by side
// and asks for a same/different verdict.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/theimaginaryfoundation/thread-weaver/weave"
)

// ErrAborted is returned when the user quits the prompt without answering.
var ErrAborted = errors.New("merge prompt aborted")

var (
	paneTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#58a6ff"))
	paneStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
	senderStyle = lipgloss.NewStyle().Bold(true)
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// PromptOracle implements weave.Oracle by running a bubbletea prompt per
// ambiguous candidate. It must only be used from a terminal-owning
// goroutine; the merge engine blocks until the user answers.
type PromptOracle struct{}

// SameConversation shows the previews and waits for a y/n verdict.
func (PromptOracle) SameConversation(ctx context.Context, existingTail, candidateHead []weave.Message) (bool, error) {
	m := newPromptModel(existingTail, candidateHead)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	out, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("merge prompt: %w", err)
	}
	final, ok := out.(promptModel)
	if !ok || !final.answered {
		return false, ErrAborted
	}
	return final.same, nil
}

type promptModel struct {
	tail     viewport.Model
	head     viewport.Model
	answered bool
	same     bool
	width    int
}

func newPromptModel(tail, head []weave.Message) promptModel {
	m := promptModel{
		tail: viewport.New(60, 12),
		head: viewport.New(60, 12),
	}
	m.tail.SetContent(renderMessages(tail))
	m.head.SetContent(renderMessages(head))
	m.tail.GotoBottom()
	return m
}

func renderMessages(msgs []weave.Message) string {
	var b strings.Builder
	for _, msg := range msgs {
		fmt.Fprintf(&b, "%s %s\n%s\n\n",
			senderStyle.Render(msg.Sender),
			timeStyle.Render(msg.Time.String()),
			msg.Text)
	}
	return b.String()
}

func (m promptModel) Init() tea.Cmd { return nil }

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		paneWidth := msg.Width/2 - 4
		if paneWidth < 20 {
			paneWidth = 20
		}
		m.tail.Width = paneWidth
		m.head.Width = paneWidth
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "y", "Y":
			m.answered = true
			m.same = true
			return m, tea.Quit
		case "n", "N":
			m.answered = true
			m.same = false
			return m, tea.Quit
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	}

	// Everything else (arrows, pgup/pgdn, mouse) scrolls both panes in step.
	var tailCmd, headCmd tea.Cmd
	m.tail, tailCmd = m.tail.Update(msg)
	m.head, headCmd = m.head.Update(msg)
	return m, tea.Batch(tailCmd, headCmd)
}

func (m promptModel) View() string {
	left := lipgloss.JoinVertical(lipgloss.Left,
		paneTitleStyle.Render("End of conversation so far"),
		paneStyle.Render(m.tail.View()))
	right := lipgloss.JoinVertical(lipgloss.Left,
		paneTitleStyle.Render("Start of candidate thread"),
		paneStyle.Render(m.head.View()))

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right),
		helpStyle.Render("Same conversation?  [y] same  [n] different  [↑/↓] scroll  [q] abort"),
	)
}
