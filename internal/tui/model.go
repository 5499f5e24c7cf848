package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"studyrag/internal/domain"
	"studyrag/internal/service"
	"studyrag/internal/vectorstore"
)

// Port is the TUI-facing subset of the service.
type Port interface {
	Ask(ctx context.Context, h vectorstore.Handle, question string, history []domain.Message) (service.Answer, error)
	Notes(ctx context.Context, h vectorstore.Handle, topic string) (service.Notes, error)
	Comprehensive(ctx context.Context, h vectorstore.Handle, query string, threshold float64) ([]domain.ScoredChunk, error)
	Translate(ctx context.Context, text string) (string, error)
}

type mode int

const (
	modeAsk mode = iota
	modeNotes
	modeSearch
)

func (m mode) String() string {
	switch m {
	case modeNotes:
		return "notes"
	case modeSearch:
		return "search"
	}
	return "ask"
}

const maxHistory = 10

// resultMsg carries the outcome of a background query back to Update.
type resultMsg struct {
	mode    mode
	query   string
	text    string
	results []domain.ScoredChunk
	sources []domain.Chunk
	err     error
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	ctx       context.Context
	service   Port
	handle    vectorstore.Handle
	title     string
	input     textinput.Model
	viewport  viewport.Model
	mode      mode
	translate bool
	busy      bool
	failed    bool
	text      string
	sources   []domain.Chunk
	results   []domain.ScoredChunk
	history   []domain.Message
	status    string
	cursor    int
	ready     bool
	lastQuery string
}

// New creates a chat model over one loaded index.
func New(ctx context.Context, svc Port, h vectorstore.Handle, title string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:      ctx,
		service:  svc,
		handle:   h,
		title:    title,
		input:    ti,
		viewport: vp,
		status:   "Tab switches mode, Ctrl+T toggles translation, Ctrl+C quits.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.render())
		return m, nil
	case resultMsg:
		m.busy = false
		m.failed = msg.err != nil
		if msg.err != nil {
			m.status = service.Readable(msg.err)
			return m, nil
		}
		m.text, m.results, m.sources = msg.text, msg.results, msg.sources
		m.cursor = 0
		m.lastQuery = msg.query
		if msg.mode == modeAsk {
			m.history = append(m.history,
				domain.Message{Role: "user", Content: msg.query},
				domain.Message{Role: "assistant", Content: msg.text})
			if len(m.history) > maxHistory {
				m.history = m.history[len(m.history)-maxHistory:]
			}
		}
		m.status = m.summaryLine(msg)
		m.viewport.SetContent(m.render())
		m.viewport.GotoTop()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "tab":
			m.mode = (m.mode + 1) % 3
			m.input.Placeholder = placeholder(m.mode)
			m.status = "Mode: " + m.mode.String()
			return m, nil
		case "ctrl+t":
			m.translate = !m.translate
			m.status = fmt.Sprintf("Translation %s", onOff(m.translate))
			return m, nil
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.input.SetValue("")
			m.status = fmt.Sprintf("Working on %q...", q)
			return m, m.run(m.mode, q)
		case "down":
			if m.mode == modeSearch && len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "up":
			if m.mode == modeSearch && len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// run executes the query off the UI goroutine.
func (m Model) run(md mode, q string) tea.Cmd {
	ctx, svc, h, translate := m.ctx, m.service, m.handle, m.translate
	history := append([]domain.Message(nil), m.history...)
	return func() tea.Msg {
		res := resultMsg{mode: md, query: q}
		switch md {
		case modeAsk:
			ans, err := svc.Ask(ctx, h, q, history)
			res.text, res.sources, res.err = ans.Text, ans.Chunks, err
		case modeNotes:
			notes, err := svc.Notes(ctx, h, q)
			res.text, res.results, res.err = notes.Text, notes.Scored, err
		case modeSearch:
			res.results, res.err = svc.Comprehensive(ctx, h, q, -1)
		}
		if res.err == nil && translate && res.text != "" {
			res.text, res.err = svc.Translate(ctx, res.text)
		}
		return res
	}
}

func (m Model) summaryLine(r resultMsg) string {
	switch r.mode {
	case modeAsk:
		return fmt.Sprintf("Answered from %d passages", len(r.sources))
	case modeNotes:
		return fmt.Sprintf("Notes from %d passages", len(r.results))
	}
	return fmt.Sprintf("%d passages above threshold for %q", len(r.results), r.query)
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Study Assistant") + "  " +
		modeStyle.Render("["+m.mode.String()+"]")
	if m.translate {
		header += " " + modeStyle.Render("[translate]")
	}
	sub := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.title)
	input := queryBoxStyle.Render(m.input.View())
	statusStyle := okStyle
	if m.failed || m.busy {
		statusStyle = warnStyle
	}
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + sub + "\n" + results + "\n" + input + "\n" + statusStyle.Render(m.status)
}

func (m Model) render() string {
	switch {
	case m.mode == modeSearch && len(m.results) > 0:
		r := m.results[m.cursor]
		title := fmt.Sprintf("Passage %d/%d  similarity=%.3f  [%s]", m.cursor+1, len(m.results), r.Similarity, r.Chunk.ID())
		return title + "\n\n" + highlightBestSentence(r.Chunk.Text, m.lastQuery)
	case m.text != "":
		var b strings.Builder
		b.WriteString(m.text)
		if len(m.sources) > 0 {
			b.WriteString("\n\n")
			b.WriteString(sourceStyle.Render("Sources:"))
			for _, c := range m.sources {
				fmt.Fprintf(&b, "\n  %s  %s", c.ID(), preview(c.Text, 60))
			}
		}
		return b.String()
	}
	return "No results yet."
}

func placeholder(md mode) string {
	switch md {
	case modeNotes:
		return "Enter a topic for study notes"
	case modeSearch:
		return "Search the document"
	}
	return "Ask a question and press Enter"
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "…"
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	modeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	okStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	var sentences []string
	end := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		sentences = append(sentences, text[loc[0]:loc[1]])
		end = loc[1]
	}
	if rest := strings.TrimSpace(text[end:]); rest != "" {
		sentences = append(sentences, rest)
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := map[string]struct{}{}
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
