package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"railog/internal/domain"
	"railog/internal/service"
)

// Classifier is the TUI-facing subset of a service inspection.
type Classifier interface {
	Classify(ctx context.Context, line string) (service.Classification, error)
}

// Model is the Bubble Tea model for the centroid browser.
type Model struct {
	classifier Classifier
	centroids  []domain.Centroid
	title      string
	input      textinput.Model
	viewport   viewport.Model
	status     string
	cursor     int
	matched    int
	ready      bool
}

// New creates a browser over centroids. title is shown in the header.
func New(classifier Classifier, centroids []domain.Centroid, title string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a log line and press Enter to classify"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		classifier: classifier,
		centroids:  centroids,
		title:      title,
		input:      ti,
		viewport:   vp,
		matched:    -1,
		status:     fmt.Sprintf("%d centroids. Up/down to browse.", len(centroids)),
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, lh := listBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 + 1 // header, detail, query box, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-lh)
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line != "" {
				m.classify(line)
				m.refresh()
				return m, nil
			}
		case "down":
			if len(m.centroids) > 0 {
				m.cursor = (m.cursor + 1) % len(m.centroids)
				m.refresh()
				return m, nil
			}
		case "up":
			if len(m.centroids) > 0 {
				m.cursor = (m.cursor - 1 + len(m.centroids)) % len(m.centroids)
				m.refresh()
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) classify(line string) {
	res, err := m.classifier.Classify(context.Background(), line)
	if err != nil {
		m.status = "Error: " + err.Error()
		m.matched = -1
		return
	}
	switch {
	case res.ID < 0:
		m.status = "No centroids to match against"
		m.matched = -1
	case res.Matched:
		m.status = fmt.Sprintf("Match: centroid %d  distance=%.4f  normalized=%q", res.ID, res.Distance, res.Normalized)
		m.matched = res.ID
	default:
		m.status = fmt.Sprintf("No match: nearest centroid %d  distance=%.4f  normalized=%q", res.ID, res.Distance, res.Normalized)
		m.matched = -1
	}
	if res.ID >= 0 {
		for i, c := range m.centroids {
			if c.ID == res.ID {
				m.cursor = i
				break
			}
		}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderList())
	// Keep the cursor row visible.
	if m.cursor < m.viewport.YOffset {
		m.viewport.SetYOffset(m.cursor)
	} else if h := m.viewport.Height; h > 0 && m.cursor >= m.viewport.YOffset+h {
		m.viewport.SetYOffset(m.cursor - h + 1)
	}
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render(m.title)
	detail := dimStyle.Render(m.renderDetail())
	list := listBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + detail + "\n" + list + "\n" + input + "\n" + status
}

func (m Model) renderList() string {
	if len(m.centroids) == 0 {
		return "Model has no centroids."
	}
	rows := make([]string, len(m.centroids))
	for i, c := range m.centroids {
		row := fmt.Sprintf("%5d  %7d  %s", c.ID, c.Count, exemplarOrDash(c.Exemplar))
		switch {
		case c.ID == m.matched:
			row = matchStyle.Render(row)
		case i == m.cursor:
			row = cursorStyle.Render(row)
		}
		rows[i] = row
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderDetail() string {
	if len(m.centroids) == 0 {
		return ""
	}
	c := m.centroids[m.cursor]
	return fmt.Sprintf("Centroid %d/%d  id=%d  count=%d  dim=%d", m.cursor+1, len(m.centroids), c.ID, c.Count, len(c.Vector))
}

func exemplarOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

var (
	listBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	cursorStyle   = lipgloss.NewStyle().Reverse(true)
	matchStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)
