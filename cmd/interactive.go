package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/adamgarcia4/rendezvous/barrier"
	"github.com/adamgarcia4/rendezvous/logger"
	"github.com/adamgarcia4/rendezvous/node"
)

var (
	interactiveFlags    barrierFlags
	interactiveSimulate int
	interactiveAbsent   int
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Watch a barrier run in a terminal UI",
	Long: `Run the barrier with a live view of every peer's liveness flags and the log.
With --simulate N the whole peer set runs in this process on loopback,
otherwise this host joins the real peer list like "run".

Keyboard shortcuts:
  ←/→/tab - Select node (simulation)
  ↑/↓/j/k - Scroll logs
  C       - Clear logs
  Q       - Quit

Examples:
  rendezvous interactive --hosts ./hosts
  rendezvous interactive --simulate 4 --absent 1`,
	Args: cobra.NoArgs,
	RunE: runInteractive,
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
	interactiveFlags.register(interactiveCmd.Flags())
	interactiveCmd.Flags().IntVar(&interactiveSimulate, "simulate", 0, "Run this many in-process nodes instead of joining the peer list")
	interactiveCmd.Flags().IntVar(&interactiveAbsent, "absent", 0, "With --simulate, how many nodes never start")
}

const logCount = 15

type model struct {
	nodes    []*node.Node
	absent   []string
	stopAll  func() error
	ctx      context.Context
	cancel   context.CancelFunc
	results  map[string]barrier.State
	finished bool
	quitting bool

	selected  int
	err       error
	logBuffer *logger.LogBuffer
	logScroll int // for scrolling logs
	width     int
	height    int
}

func initialModel(nodes []*node.Node, absent []string, stopAll func() error) model {
	ctx, cancel := context.WithCancel(context.Background())
	return model{
		nodes:     nodes,
		absent:    absent,
		stopAll:   stopAll,
		ctx:       ctx,
		cancel:    cancel,
		logBuffer: logger.GetGlobalLogBuffer(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tick(), runNodes(m.ctx, m.nodes))
}

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

type tickMsg struct{}

type runFinishedMsg struct {
	results map[string]barrier.State
	err     error
}

type shutdownCompleteMsg struct {
	err error
}

// runNodes runs every node concurrently and reports once all are terminal.
func runNodes(ctx context.Context, nodes []*node.Node) tea.Cmd {
	return func() tea.Msg {
		type result struct {
			host  string
			state barrier.State
			err   error
		}
		ch := make(chan result, len(nodes))
		for _, n := range nodes {
			go func(n *node.Node) {
				state, err := n.Run(ctx)
				if err != nil {
					logger.Errorf("%s: %v", n.Hostname(), err)
					err = fmt.Errorf("%s: %w", n.Hostname(), err)
				}
				ch <- result{n.Hostname(), state, err}
			}(n)
		}

		msg := runFinishedMsg{results: make(map[string]barrier.State, len(nodes))}
		for range nodes {
			r := <-ch
			msg.results[r.host] = r.state
			if msg.err == nil {
				msg.err = r.err
			}
		}
		return msg
	}
}

// shutdownNodes stops all nodes and sends a message when complete
func shutdownNodes(stopAll func() error) tea.Cmd {
	return func() tea.Msg {
		return shutdownCompleteMsg{err: stopAll()}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.quitting {
				return m, nil
			}
			m.quitting = true
			m.cancel()
			if m.finished {
				return m, shutdownNodes(m.stopAll)
			}
			// wait for the runs to return before closing their sockets
			return m, nil

		case "left", "h", "shift+tab":
			if m.selected > 0 {
				m.selected--
			}
			return m, nil

		case "right", "l", "tab":
			if m.selected < len(m.nodes)-1 {
				m.selected++
			}
			return m, nil

		case "up", "k":
			// Scroll logs up (show older logs)
			maxScroll := len(m.logBuffer.GetAll()) - logCount
			if maxScroll < 0 {
				maxScroll = 0
			}
			if m.logScroll < maxScroll {
				m.logScroll++
			}
			return m, nil

		case "down", "j":
			// Scroll logs down (show newer logs)
			if m.logScroll > 0 {
				m.logScroll--
			}
			return m, nil

		case "c":
			m.logBuffer.Clear()
			m.logScroll = 0
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, tick()

	case runFinishedMsg:
		m.finished = true
		m.results = msg.results
		m.err = msg.err
		if m.quitting {
			return m, shutdownNodes(m.stopAll)
		}
		return m, nil

	case shutdownCompleteMsg:
		// Log any shutdown errors via the logger
		if msg.err != nil {
			logger.Errorf("Error stopping nodes during shutdown: %v", msg.err)
			m.err = msg.err
		}
		// Now quit after shutdown is complete
		return m, tea.Quit
	}

	return m, nil
}

func (m model) View() string {
	var s strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Padding(1, 2)
	s.WriteString(titleStyle.Render("Rendezvous Barrier"))
	s.WriteString("\n\n")

	if m.err != nil {
		errorStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
	}

	// Nodes row
	for i, n := range m.nodes {
		st := n.BarrierStatus()
		label := fmt.Sprintf("[%d] %s %s", i+1, n.Hostname(), stateStyle(st.State.String()).Render(st.State.String()))
		if i == m.selected {
			label = lipgloss.NewStyle().Underline(true).Render(label)
		}
		s.WriteString("  " + label)
	}
	for _, h := range m.absent {
		s.WriteString("  " + dimStyle.Render(h+" absent"))
	}
	s.WriteString("\n\n")

	if len(m.nodes) > 0 {
		s.WriteString(renderPeers(m.nodes[m.selected]))
		s.WriteString("\n")
	}

	s.WriteString(m.renderLogs())
	s.WriteString("\n\n")

	instructionsStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true).
		PaddingTop(1)

	instructionText := "↑/↓/j/k to scroll logs | C to clear | Q to quit"
	if len(m.nodes) > 1 {
		instructionText = "←/→/tab to select node | " + instructionText
	}
	switch {
	case m.quitting:
		instructionText = "Shutting down..."
	case m.finished:
		instructionText = "Run finished | " + instructionText
	}
	s.WriteString(instructionsStyle.Render(instructionText))

	return s.String()
}

// renderPeers draws the liveness table of one node.
func renderPeers(n *node.Node) string {
	st := n.BarrierStatus()
	var s strings.Builder

	s.WriteString(headerStyle.Render(fmt.Sprintf("%s  elapsed %v  run %s", n.Hostname(), st.Elapsed.Round(100*time.Millisecond), n.RunID())))
	s.WriteString("\n")
	s.WriteString(dimStyle.Render(fmt.Sprintf("  %-14s %-22s %-10s %-10s %s", "PEER", "ADDRESS", "HEARTBEAT", "ACK", "LAST SENT")))
	s.WriteString("\n")

	for _, p := range st.Peers {
		if p.Self {
			continue
		}
		lastSent := "-"
		if !p.LastSent.IsZero() {
			lastSent = p.LastSent.Format("15:04:05.000")
		}
		row := fmt.Sprintf("  %-14s %-22s %-10s %-10s %s", p.Hostname, p.Addr, check(p.HeartbeatReceived), check(p.AckReceived), lastSent)
		if p.HeartbeatReceived && p.AckReceived {
			row = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render(row)
		}
		s.WriteString(row)
		s.WriteString("\n")
	}
	return s.String()
}

func check(ok bool) string {
	if ok {
		return "✓"
	}
	return "·"
}

func (m model) renderLogs() string {
	allEntries := m.logBuffer.GetAll()

	var logLines []string
	if len(allEntries) == 0 {
		logLines = []string{"     | (no logs yet)"}
	} else {
		end := len(allEntries) - m.logScroll
		if end < 0 {
			end = 0
		}
		start := end - logCount
		if start < 0 {
			start = 0
		}

		// newest first; line 0 is the most recent entry
		for i := end - 1; i >= start; i-- {
			lineNumber := len(allEntries) - 1 - i
			logLines = append(logLines, fmt.Sprintf("%4d | %s", lineNumber, logger.FormatLogEntry(allEntries[i])))
		}
	}

	boxWidth := 100
	if m.width > 0 {
		boxWidth = m.width - 4 // Leave some margin
	}

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Height(logCount + 1).
		Width(boxWidth)

	return logStyle.Render("Logs:\n" + strings.Join(logLines, "\n"))
}

func runInteractive(cmd *cobra.Command, args []string) error {
	config, err := interactiveFlags.config(cmd.Flags())
	if err != nil {
		return fatal(err)
	}

	// Initialize logger for interactive mode (no stderr, only log buffer)
	logger.Init("", false)
	logger.AddOutput(logger.NewLogBufferWriter(logger.GetGlobalLogBuffer()))
	logger.SetDebug(config.Debug)

	var (
		nodes   []*node.Node
		absent  []string
		stopAll func() error
	)
	if interactiveSimulate > 0 {
		m := node.NewManager(config)
		if err := m.CreateCluster(cmd.Context(), interactiveSimulate, interactiveAbsent); err != nil {
			return fatal(err)
		}
		nodes = m.GetNodes()
		for _, h := range m.Hostnames() {
			if _, ok := m.GetNode(h); !ok {
				absent = append(absent, h)
			}
		}
		stopAll = m.StopAll
	} else {
		n, err := node.New(config)
		if err != nil {
			return fatal(err)
		}
		if err := n.Start(cmd.Context()); err != nil {
			return fatal(err)
		}
		nodes = []*node.Node{n}
		stopAll = n.Stop
	}

	final, err := tea.NewProgram(initialModel(nodes, absent, stopAll), tea.WithAltScreen()).Run()
	if err != nil {
		if stopErr := stopAll(); stopErr != nil {
			logger.Errorf("Error stopping nodes: %v", stopErr)
		}
		return fatal(fmt.Errorf("error running interactive mode: %w", err))
	}

	fm := final.(model)
	printResults(cmd.OutOrStdout(), nodeNames(nodes, absent), fm.results)
	if fm.err != nil {
		return fatal(fm.err)
	}
	return exitForAll(fm.results)
}

func nodeNames(nodes []*node.Node, absent []string) []string {
	names := make([]string, 0, len(nodes)+len(absent))
	for _, n := range nodes {
		names = append(names, n.Hostname())
	}
	return append(names, absent...)
}
