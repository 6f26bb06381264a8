package cmd

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/quyphuc2111/lanpeek/pkg/share"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	codeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("13"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	viewerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	connectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1)
)

// refreshMsg drives the periodic viewer list refresh
type refreshMsg struct{}

// errHolder carries the last server error across goroutines; the error
// handler fires on the host's message loop, not inside the TUI loop.
type errHolder struct {
	mu sync.Mutex
	s  string
}

func (h *errHolder) set(s string) {
	h.mu.Lock()
	h.s = s
	h.mu.Unlock()
}

func (h *errHolder) get() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.s
}

type shareModel struct {
	host      *share.Host
	serverURL string
	viewers   []share.ViewerState
	lastError *errHolder
	quitting  bool
}

func newShareModel(host *share.Host, serverURL string) shareModel {
	m := shareModel{host: host, serverURL: serverURL, lastError: &errHolder{}}
	host.SetErrorHandler(m.lastError.set)
	return m
}

func refreshTick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

func (m shareModel) Init() tea.Cmd {
	return refreshTick()
}

func (m shareModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case refreshMsg:
		m.viewers = m.host.Viewers()
		sort.Slice(m.viewers, func(i, j int) bool {
			return m.viewers[i].ViewerID < m.viewers[j].ViewerID
		})
		return m, refreshTick()
	}
	return m, nil
}

func (m shareModel) View() string {
	if m.quitting {
		return "Stopping share...\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("lanpeek"))
	b.WriteString(dimStyle.Render("  sharing via " + m.serverURL))
	b.WriteString("\n\n")

	b.WriteString(boxStyle.Render(fmt.Sprintf("Room code: %s", codeStyle.Render(m.host.Code()))))
	b.WriteString("\n\n")

	if len(m.viewers) == 0 {
		b.WriteString(dimStyle.Render("Waiting for viewers..."))
		b.WriteString("\n")
	} else {
		b.WriteString(statusStyle.Render(fmt.Sprintf("%d viewer(s)", len(m.viewers))))
		b.WriteString("\n")
		for _, v := range m.viewers {
			style := viewerStyle
			if v.State == "connected" {
				style = connectedStyle
			}
			line := fmt.Sprintf("  %s  %s", shortID(v.ViewerID), v.State)
			if v.ConnectionType != "unknown" {
				line += dimStyle.Render("  via " + v.ConnectionType)
			}
			b.WriteString(style.Render(line))
			b.WriteString("\n")
		}
	}

	if lastErr := m.lastError.get(); lastErr != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("error: " + lastErr))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("q: quit"))
	b.WriteString("\n")
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
