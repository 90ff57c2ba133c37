package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mirrord.dev/launch/internal/application/ports"
	"mirrord.dev/launch/internal/core/runconfig"
)

// DashboardFlags holds command-line flags for the dashboard command
type DashboardFlags struct {
	RefreshRate time.Duration
}

// NewDashboardCommand creates the dashboard command
func NewDashboardCommand(container *CLIContainer) *cobra.Command {
	flags := &DashboardFlags{}

	cmd := &cobra.Command{
		Use:   "dashboard <run-configuration>...",
		Short: "Launch run configurations and follow them in a terminal dashboard",
		Long: `Launch run configurations concurrently and show every launch as it moves
through scheduling, patching, start and restore.

Examples:
  mirrord-launch dashboard "Tomcat api" "Tomcat admin"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd.Context(), container, args, flags)
		},
	}

	cmd.Flags().DurationVar(&flags.RefreshRate, "refresh", time.Second, "Refresh rate for relative times")

	return cmd
}

// runDashboard starts the launches and the dashboard program. Quitting the
// dashboard stops the launched processes.
func runDashboard(ctx context.Context, container *CLIContainer, names []string, flags *DashboardFlags) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := newDashboardModel(names, flags.RefreshRate, time.Now)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	container.Interceptor.SetObserver(observerFunc(func(event ports.LifecycleEvent) {
		program.Send(lifecycleMsg(event))
	}))
	defer container.Interceptor.SetObserver(nil)

	go func() {
		err := container.Host.RunAll(ctx, names)
		program.Send(launchesDoneMsg{err: err})
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("dashboard failed: %w", err)
	}
	return nil
}

// observerFunc adapts a function to the LifecycleObserver interface
type observerFunc func(ports.LifecycleEvent)

func (f observerFunc) OnLifecycleEvent(event ports.LifecycleEvent) { f(event) }

// launchRow is one launch as shown in the dashboard
type launchRow struct {
	ID      runconfig.LaunchID
	Name    string
	Phases  []ports.LifecyclePhase
	Detail  string
	Updated time.Time
}

func (r launchRow) phase() ports.LifecyclePhase {
	return r.Phases[len(r.Phases)-1]
}

// dashboardModel holds the state for the Bubble Tea dashboard
type dashboardModel struct {
	names       []string
	rows        []launchRow
	index       map[runconfig.LaunchID]int
	refresh     time.Duration
	now         func() time.Time
	done        bool
	err         error
	windowWidth int
}

// newDashboardModel creates a new dashboard model
func newDashboardModel(names []string, refresh time.Duration, now func() time.Time) dashboardModel {
	if refresh <= 0 {
		refresh = time.Second
	}
	return dashboardModel{
		names:   names,
		index:   map[runconfig.LaunchID]int{},
		refresh: refresh,
		now:     now,
	}
}

// tickMsg is sent every refresh interval
type tickMsg time.Time

// lifecycleMsg carries an interceptor event into the program
type lifecycleMsg ports.LifecycleEvent

// launchesDoneMsg is sent once every launched process exited
type launchesDoneMsg struct {
	err error
}

func (m dashboardModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init implements the Bubble Tea init method
func (m dashboardModel) Init() tea.Cmd {
	return m.tickCmd()
}

// Update implements the Bubble Tea update method
func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.tickCmd()

	case lifecycleMsg:
		return m.record(ports.LifecycleEvent(msg)), nil

	case launchesDoneMsg:
		m.done = true
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

// record applies one event. Rows are copied so earlier models stay intact.
func (m dashboardModel) record(event ports.LifecycleEvent) dashboardModel {
	rows := append([]launchRow(nil), m.rows...)
	index := make(map[runconfig.LaunchID]int, len(m.index)+1)
	for k, v := range m.index {
		index[k] = v
	}

	i, ok := index[event.LaunchID]
	if !ok {
		i = len(rows)
		index[event.LaunchID] = i
		rows = append(rows, launchRow{ID: event.LaunchID, Name: event.Name})
	}
	row := rows[i]
	row.Phases = append(append([]ports.LifecyclePhase(nil), row.Phases...), event.Phase)
	if event.Detail != "" {
		row.Detail = event.Detail
	}
	row.Updated = event.OccurredAt
	rows[i] = row

	m.rows = rows
	m.index = index
	return m
}

// View implements the Bubble Tea view method
func (m dashboardModel) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), m.renderTable(), m.renderFooter())
}

func (m dashboardModel) renderHeader() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Render("mirrord launches")

	status := fmt.Sprintf("%d of %d configurations scheduled", len(m.rows), len(m.names))
	statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	switch {
	case m.done && m.err != nil:
		status = "failed: " + m.err.Error()
		statusStyle = statusStyle.Foreground(lipgloss.Color("196"))
	case m.done:
		status = "all processes exited"
		statusStyle = statusStyle.Foreground(lipgloss.Color("46"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, title, statusStyle.Render(status), "")
}

func (m dashboardModel) renderTable() string {
	if len(m.rows) == 0 {
		return lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Render("Waiting for launches...")
	}

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Render(fmt.Sprintf("%-24s %-12s %-14s %s", "CONFIGURATION", "PHASE", "UPDATED", "DETAIL"))

	now := m.now()
	lines := []string{header}
	for _, row := range m.rows {
		phase := row.phase()
		phaseCell := lipgloss.NewStyle().
			Foreground(phaseColor(phase)).
			Render(fmt.Sprintf("%-12s", phase))
		lines = append(lines, fmt.Sprintf("%-24s %s %-14s %s",
			truncate(row.Name, 24),
			phaseCell,
			humanize.RelTime(row.Updated, now, "ago", "from now"),
			row.Detail,
		))
		lines = append(lines, lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Render("  "+joinPhases(row.Phases)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m dashboardModel) renderFooter() string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")).
		Render("\nq: quit")
}

func phaseColor(phase ports.LifecyclePhase) lipgloss.Color {
	switch phase {
	case ports.PhaseFailed, ports.PhaseNotStarted:
		return lipgloss.Color("196")
	case ports.PhaseSkipped:
		return lipgloss.Color("245")
	case ports.PhaseRestored, ports.PhaseStarted:
		return lipgloss.Color("46")
	default:
		return lipgloss.Color("214")
	}
}

func joinPhases(phases []ports.LifecyclePhase) string {
	parts := make([]string, len(phases))
	for i, p := range phases {
		parts[i] = string(p)
	}
	return strings.Join(parts, " → ")
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
