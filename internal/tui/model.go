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

	"askdocs/internal/pipeline"
)

// AskFunc runs the analysis pipeline for one question.
type AskFunc func(ctx context.Context, persona, question string) (pipeline.Report, error)

type section struct {
	title string
	body  func(r pipeline.Report) string
}

var sections = []section{
	{"Answer", func(r pipeline.Report) string { return r.Result.Answer }},
	{"Context", func(r pipeline.Report) string { return r.Result.Context }},
	{"Contradictions", func(r pipeline.Report) string { return r.Result.Contradictions }},
	{"Action Plan", func(r pipeline.Report) string { return r.Result.Actions }},
	{"Persona Summary", func(r pipeline.Report) string { return r.Result.PersonaSummary }},
	{"Stages", renderStages},
}

type reportMsg struct {
	report pipeline.Report
	err    error
}

// Model is the Bubble Tea model for the interactive question loop.
type Model struct {
	ask      AskFunc
	persona  string
	input    textinput.Model
	viewport viewport.Model
	report   *pipeline.Report
	summary  string
	status   string
	cursor   int
	ready    bool
	busy     bool
}

// New creates a model; summary is shown under the header.
func New(ask AskFunc, persona, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter (ctrl+p changes persona)"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{ask: ask, persona: persona, input: ti, viewport: vp, summary: summary, status: "Loaded. Ask away."}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) runAsk(question string) tea.Cmd {
	persona := m.persona
	return func() tea.Msg {
		rep, err := m.ask(context.Background(), persona, question)
		return reportMsg{report: rep, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+summary, status, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderSection())
		return m, nil
	case reportMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("Run %s finished in %s", shortID(msg.report.RunID), msg.report.Duration.Round(1e6))
		}
		m.report = &msg.report
		m.cursor = 0
		m.viewport.SetContent(m.renderSection())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			if strings.HasPrefix(q, "/persona ") {
				m.persona = strings.TrimSpace(strings.TrimPrefix(q, "/persona "))
				m.status = "Persona set to " + m.persona
				m.input.SetValue("")
				return m, nil
			}
			m.busy = true
			m.status = fmt.Sprintf("Asking %q as %s...", q, m.persona)
			m.input.SetValue("")
			return m, m.runAsk(q)
		case "ctrl+p":
			m.input.SetValue("/persona ")
			m.input.CursorEnd()
			return m, nil
		case "tab", "down":
			if m.report != nil {
				m.cursor = (m.cursor + 1) % len(sections)
				m.viewport.SetContent(m.renderSection())
				return m, nil
			}
		case "shift+tab", "up":
			if m.report != nil {
				m.cursor = (m.cursor - 1 + len(sections)) % len(sections)
				m.viewport.SetContent(m.renderSection())
				return m, nil
			}
		case "pgdown":
			m.viewport.HalfViewDown()
			return m, nil
		case "pgup":
			m.viewport.HalfViewUp()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("askdocs") +
		lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("  persona: "+m.persona)
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	statusColor := lipgloss.Color("10")
	if m.busy {
		statusColor = lipgloss.Color("11")
	}
	status := lipgloss.NewStyle().Foreground(statusColor).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderSection() string {
	if m.report == nil {
		return "No answers yet."
	}
	sec := sections[m.cursor]
	title := titleStyle.Render(fmt.Sprintf("%s  (%d/%d, tab for next)", sec.title, m.cursor+1, len(sections)))
	body := sec.body(*m.report)
	if sec.title == "Context" || sec.title == "Answer" {
		body = highlightBestSentence(body, m.report.Question)
	}
	return title + "\n\n" + body
}

func renderStages(r pipeline.Report) string {
	var b strings.Builder
	for _, st := range r.Stages {
		line := fmt.Sprintf("%-24s %-10s %s", st.Stage, st.Status, st.Duration.Round(1e6))
		if st.Error != "" {
			line += "  " + st.Error
		}
		b.WriteString(stageStyle(st.Status).Render(line))
		b.WriteByte('\n')
	}
	return b.String()
}

func stageStyle(s pipeline.Status) lipgloss.Style {
	switch s {
	case pipeline.StatusOK:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	case pipeline.StatusFailed:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	titleStyle     = lipgloss.NewStyle().Bold(true).Underline(true)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasises the sentence sharing the most words with
// the question, leaving the rest of the text untouched.
func highlightBestSentence(text, question string) string {
	sentences := sentenceRe.FindAllString(text, -1)
	qTokens := toTokenSet(question)
	if len(sentences) < 2 || len(qTokens) == 0 {
		return text
	}
	best, bestScore := "", 0
	for _, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			best, bestScore = strings.TrimSpace(s), score
		}
	}
	if bestScore == 0 || best == "" {
		return text
	}
	return strings.Replace(text, best, highlightStyle.Render(best), 1)
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
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
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
