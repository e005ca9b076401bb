package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"go.viam.com/rdk/logging"

	"workcell"
)

const (
	headerHeight = 2  // title + blank line
	legendHeight = 2  // legend row + blank
	footerHeight = 10 // piece table + status line
	maxRows      = 6  // piece rows to show
	borderSize   = 2  // chart border
)

// Joint colors for the chart legend.
var jointColors = map[string]string{
	"base_yaw": "196", // red
	"shoulder": "208", // orange
	"elbow":    "226", // yellow
	"wrist":    "46",  // green
}

var jointOrder = []string{"base_yaw", "shoulder", "elbow", "wrist"}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	pauseStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
)

type model struct {
	orch     *workcell.Orchestrator
	chart    *streamlinechart.Model
	state    workcell.CellState
	width    int
	height   int
	quitting bool
}

type stateMsg workcell.CellState

func waitForState(orch *workcell.Orchestrator) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-orch.States())
	}
}

func (m *model) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 16 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 8 {
		height = 8
	}
	return width, height
}

func (m *model) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialModel(orch *workcell.Orchestrator) model {
	chart := streamlinechart.New(80, 16,
		streamlinechart.WithYRange(-180, 180),
	)
	for _, name := range jointOrder {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColors[name]))
		chart.SetDataSetStyles(name, runes.ThinLineStyle, style)
	}
	return model{
		orch:  orch,
		chart: &chart,
	}
}

func (m model) Init() tea.Cmd {
	return waitForState(m.orch)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case " ":
			if m.state.Paused {
				m.orch.Resume()
			} else {
				m.orch.Pause()
			}
		case "n":
			m.orch.AdmitPiece()
		case "r":
			m.orch.Reset()
		case "+", "=":
			m.orch.SetSpeed(m.orch.Speed() + 0.25) //nolint:errcheck
		case "-":
			m.orch.SetSpeed(m.orch.Speed() - 0.25) //nolint:errcheck
		}
		return m, nil

	case stateMsg:
		m.state = workcell.CellState(msg)
		deg := 180.0 / math.Pi
		m.chart.PushDataSet("base_yaw", m.state.Arm.BaseYaw*deg)
		m.chart.PushDataSet("shoulder", m.state.Arm.Shoulder*deg)
		m.chart.PushDataSet("elbow", m.state.Arm.Elbow*deg)
		m.chart.PushDataSet("wrist", m.state.Arm.Wrist*deg)
		m.chart.DrawAll()
		return m, waitForState(m.orch)
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return "Work-cell stopped.\n"
	}

	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Pick & Place Cell"))
	sb.WriteString(fmt.Sprintf("  t=%s  speed=%.2fx", m.state.SimTime.Truncate(10*time.Millisecond), m.state.Speed))
	if m.state.Paused {
		sb.WriteString("  " + pauseStyle.Render("PAUSED"))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	sb.WriteString(m.renderPieces())
	sb.WriteString("\n")

	st := m.state.Stats
	sb.WriteString(fmt.Sprintf("processed %d  pass %s  fail %s  yield %.1f%%\n",
		st.TotalProcessed,
		passStyle.Render(fmt.Sprintf("%d", st.PassCount)),
		failStyle.Render(fmt.Sprintf("%d", st.NGCount)),
		st.YieldRate*100))
	sb.WriteString(statusStyle.Render("[space] pause/resume  [n] new piece  [r] reset  [+/-] speed  [q] quit"))
	sb.WriteString("\n")

	return sb.String()
}

func (m model) renderPieces() string {
	pieces := m.state.Pieces
	if len(pieces) == 0 {
		return statusStyle.Render("feed line empty")
	}
	if len(pieces) > maxRows {
		pieces = pieces[len(pieces)-maxRows:]
	}
	var rows []string
	for _, p := range pieces {
		marker := " "
		if p.ID == m.state.ActivePiece {
			marker = ">"
		}
		result := "-"
		if p.Classification != nil {
			if p.Classification.Result == workcell.ResultPass {
				result = passStyle.Render("pass")
			} else {
				result = failStyle.Render("fail")
				if p.Classification.TimedOut {
					result += " (timeout)"
				}
			}
		}
		warn := ""
		if p.ReachWarning {
			warn = failStyle.Render(" !reach")
		}
		rows = append(rows, fmt.Sprintf("%s #%-3d %-14s (%5.2f, %5.2f, %5.2f)  %s%s",
			marker, p.ID, p.Stage, p.Position.X, p.Position.Y, p.Position.Z, result, warn))
	}
	return strings.Join(rows, "\n")
}

func renderLegend() string {
	var items []string
	for _, name := range jointOrder {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColors[name])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+name)
	}
	return strings.Join(items, "  ")
}

func main() {
	var (
		speed     = flag.Float64("speed", 1.0, "Initial speed multiplier [0.1, 5.0]")
		seed      = flag.Int64("seed", 0, "Classifier RNG seed (0 = time-based)")
		timeout   = flag.Duration("timeout", 2*time.Second, "Classification timeout")
		threshold = flag.Int("threshold", 128, "Defect intensity threshold [0, 255]")
		feed      = flag.Duration("feed", 4*time.Second, "Auto-feed interval (0 disables)")
		hwPort    = flag.String("hw", "", "Serial port of a physical arm to mirror (optional)")
		listPorts = flag.Bool("list-ports", false, "Probe serial ports for servo buses and exit")
		debug     = flag.Bool("debug", false, "Panic on internal invariant violations")
	)
	flag.Parse()

	logger := logging.NewLogger("workcell")

	if *listPorts {
		ports := workcell.DiscoverServoPorts(context.Background(), logger)
		if len(ports) == 0 {
			fmt.Println("no servo buses found")
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	classifier := workcell.NewSimClassifier(workcell.SimClassifierConfig{
		Threshold: *threshold,
		Seed:      *seed,
		Latency:   150 * time.Millisecond,
	})

	cfg := &workcell.CellConfig{
		Speed:           *speed,
		ClassifyTimeout: *timeout,
		FeedInterval:    *feed,
		Debug:           *debug,
		Logger:          logger,
	}
	orch, err := workcell.NewOrchestrator(cfg, classifier)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}
	defer orch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *hwPort != "" {
		mirror, err := workcell.NewServoMirror(ctx, workcell.ServoMirrorConfig{Port: *hwPort}, logger)
		if err != nil {
			log.Fatalf("Failed to open servo mirror on %s: %v", *hwPort, err)
		}
		orch.AddSink(mirror)
		logger.Infof("mirroring arm to %s", *hwPort)
	}

	if err := orch.Start(ctx); err != nil {
		log.Fatalf("Failed to start cell: %v", err)
	}

	p := tea.NewProgram(initialModel(orch), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running program: %v", err)
	}
}
