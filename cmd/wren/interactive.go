package main

import (
	"context"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	inputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// maxTranscript bounds the lines kept on screen.
const maxTranscript = 200

// outputBuffer collects script output between evaluations.
type outputBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (o *outputBuffer) Print(text string) {
	o.mu.Lock()
	o.b.WriteString(text)
	o.mu.Unlock()
}

func (o *outputBuffer) take() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.b.String()
	o.b.Reset()
	return s
}

type entryKind int

const (
	entryInput entryKind = iota
	entryOutput
	entryError
)

type entry struct {
	text string
	kind entryKind
}

type replModel struct {
	ctx     context.Context
	log     *zap.Logger
	cfg     *settings
	err     error
	sess    *session
	out     *outputBuffer
	input   textinput.Model
	lines   []entry
	history []string
	histIdx int
	busy    bool
}

type openedMsg struct {
	err  error
	sess *session
}

type evalMsg struct {
	err    error
	output string
}

func newReplModel(ctx context.Context, log *zap.Logger, cfg *settings) *replModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = `System.print("hello")`
	ti.Width = 72
	ti.Focus()
	return &replModel{
		ctx:   ctx,
		log:   log,
		cfg:   cfg,
		out:   &outputBuffer{},
		input: ti,
	}
}

func (m *replModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.open)
}

func (m *replModel) open() tea.Msg {
	sess, err := openSession(m.ctx, m.log, m.cfg, m.out, []string{"."})
	return openedMsg{sess: sess, err: err}
}

// eval runs one line in the main module, so top-level variables persist
// between lines.
func (m *replModel) eval(source string) tea.Cmd {
	return func() tea.Msg {
		err := m.sess.vm.Interpret(m.ctx, "main", source)
		return evalMsg{output: m.out.take(), err: err}
	}
}

func (m *replModel) close() {
	if m.sess != nil {
		if err := m.sess.Close(context.Background()); err != nil {
			m.log.Warn("close session", zap.Error(err))
		}
		m.sess = nil
	}
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d", "esc":
			m.close()
			return m, tea.Quit

		case "up":
			if m.histIdx > 0 {
				m.histIdx--
				m.input.SetValue(m.history[m.histIdx])
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if m.histIdx < len(m.history)-1 {
				m.histIdx++
				m.input.SetValue(m.history[m.histIdx])
			} else {
				m.histIdx = len(m.history)
				m.input.SetValue("")
			}
			m.input.CursorEnd()
			return m, nil

		case "enter":
			src := strings.TrimSpace(m.input.Value())
			if src == "" || m.busy || m.sess == nil {
				return m, nil
			}
			m.history = append(m.history, src)
			m.histIdx = len(m.history)
			m.push(entry{text: src, kind: entryInput})
			m.input.SetValue("")
			m.busy = true
			return m, m.eval(src)
		}

	case openedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.sess = msg.sess

	case evalMsg:
		m.busy = false
		if out := strings.TrimSuffix(msg.output, "\n"); out != "" {
			m.push(entry{text: out, kind: entryOutput})
		}
		if msg.err != nil {
			m.push(entry{text: msg.err.Error(), kind: entryError})
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *replModel) push(e entry) {
	m.lines = append(m.lines, e)
	if n := len(m.lines) - maxTranscript; n > 0 {
		m.lines = m.lines[n:]
	}
}

func (m *replModel) View() string {
	if m.err != nil {
		return errorStyle.Render("Error: "+m.err.Error()) + "\n\n" + helpStyle.Render("esc quit") + "\n"
	}
	if m.sess == nil {
		return "Loading guest..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Wren"))
	b.WriteString("\n\n")
	for _, e := range m.lines {
		switch e.kind {
		case entryInput:
			b.WriteString(inputStyle.Render("> " + e.text))
		case entryOutput:
			b.WriteString(resultStyle.Render(e.text))
		case entryError:
			b.WriteString(errorStyle.Render(e.text))
		}
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter run • ↑/↓ history • esc quit"))
	return b.String()
}

func runInteractive(ctx context.Context, log *zap.Logger, cfg *settings) error {
	m := newReplModel(ctx, log, cfg)
	defer m.close()
	_, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
	return err
}
