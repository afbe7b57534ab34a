// internal/tui/model.go
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/export"
	"github.com/rovshanmuradov/pumpwatch/internal/feed"
	"github.com/rovshanmuradov/pumpwatch/internal/logger"
	"github.com/rovshanmuradov/pumpwatch/internal/monitor"
)

const (
	maxTokens     = 200
	maxTrades     = 500
	maxActivity   = 200
	sparkWidth    = 24
	maxPriceMints = 50
)

type tab int

const (
	tabTokens tab = iota
	tabTrades
	tabPrices
	tabActivity
	tabLogs
	tabCount
)

var tabNames = [tabCount]string{"Tokens", "Trades", "Prices", "Alerts & Orders", "Logs"}

// Backend is the read side of the service the viewer polls.
type Backend interface {
	FeedState() feed.State
	Watched() []string
	WatchStatus(mint string) (monitor.Status, bool)
}

// Config configures the model.
type Config struct {
	Backend Backend
	// Listen waits for the next pipeline message, usually Bridge.Listen().
	Listen    tea.Cmd
	Logs      *logger.Buffer
	Exporter  *export.TradeExporter
	ExportDir string
	Refresh   time.Duration
}

type tickMsg time.Time

type exportedMsg struct {
	path string
	err  error
}

type priceRow struct {
	mint  string
	spark *Sparkline
	at    time.Time
}

// Model is the feed viewer screen.
type Model struct {
	cfg  Config
	keys KeyMap
	help help.Model

	active tab
	paused bool
	width  int
	height int

	tokens    []domain.NewToken
	trades    []domain.Trade
	prices    map[string]*priceRow
	activity  []string
	feedState feed.State
	watched   int
	status    string

	tokenCount uint64
	tradeCount uint64
	buyVolume  float64
	sellVolume float64

	tokenTable table.Model
	tradeTable table.Model
	priceTable table.Model
	logView    viewport.Model
}

// New creates the model.
func New(cfg Config) Model {
	if cfg.Refresh <= 0 {
		cfg.Refresh = time.Second
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = "exports"
	}

	m := Model{
		cfg:       cfg,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		prices:    make(map[string]*priceRow),
		feedState: feed.StateIdle,
		logView:   viewport.New(80, 20),
	}
	m.tokenTable = newTable([]table.Column{
		{Title: "Time", Width: 8},
		{Title: "Symbol", Width: 10},
		{Title: "Name", Width: 24},
		{Title: "Mint", Width: 44},
		{Title: "Creator", Width: 11},
	})
	m.tradeTable = newTable([]table.Column{
		{Title: "Time", Width: 8},
		{Title: "Side", Width: 4},
		{Title: "SOL", Width: 10},
		{Title: "Price", Width: 14},
		{Title: "Mint", Width: 11},
		{Title: "Trader", Width: 11},
	})
	m.priceTable = newTable([]table.Column{
		{Title: "Mint", Width: 11},
		{Title: "Last", Width: 14},
		{Title: "Trend", Width: sparkWidth},
		{Title: "Chg %", Width: 8},
		{Title: "Watch", Width: 18},
	})
	return m
}

func newTable(cols []table.Column) table.Model {
	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(Base01).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(Base02).
		Background(Cyan).
		Bold(false)
	t.SetStyles(s)
	return t
}

// Init starts listening for pipeline messages and the refresh tick.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.cfg.Listen, m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.cfg.Refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles terminal input and pipeline messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case TokenMsg:
		m.addToken(msg.Token)
		return m, m.cfg.Listen

	case TradeMsg:
		m.addTrade(msg.Trade)
		return m, m.cfg.Listen

	case PriceMsg:
		m.addPrice(msg)
		return m, m.cfg.Listen

	case AlertMsg:
		a := msg.Alert
		value := 0.0
		if a.TriggerValue != nil {
			value = *a.TriggerValue
		}
		m.addActivity(warnStyle.Render("ALERT ") + fmt.Sprintf("%s %s %s target=%g value=%g user=%s",
			timeOf(a.TriggeredAt), logger.ShortAddress(a.Mint), a.Type, a.TargetValue, value, a.UserID))
		return m, m.cfg.Listen

	case OrderMsg:
		o := msg.Order
		line := fmt.Sprintf("%s %s %s %s trigger=%s amount=%s",
			o.UpdatedAt.Format("15:04:05"), logger.ShortAddress(o.Mint), o.Kind, o.Status,
			o.TriggerPrice.String(), o.Amount.String())
		switch {
		case o.Error != "":
			line = errorStyle.Render("ORDER ") + line + " error=" + o.Error
		case o.ExecutionRef != "":
			line = buyStyle.Render("ORDER ") + line + " ref=" + o.ExecutionRef
		default:
			line = titleStyle.Render("ORDER ") + line
		}
		m.addActivity(line)
		return m, m.cfg.Listen

	case tickMsg:
		m.refresh()
		return m, m.tick()

	case exportedMsg:
		switch {
		case msg.err != nil:
			m.status = errorStyle.Render("export failed: " + msg.err.Error())
		case msg.path == "":
			m.status = "nothing to export"
		default:
			m.status = buyStyle.Render("exported " + msg.path)
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Tab):
		m.active = (m.active + 1) % tabCount
		m.syncText()
		m.logView.GotoBottom()
		return m, nil
	case key.Matches(msg, m.keys.ShiftTab):
		m.active = (m.active + tabCount - 1) % tabCount
		m.syncText()
		m.logView.GotoBottom()
		return m, nil
	case key.Matches(msg, m.keys.Pause):
		m.paused = !m.paused
		if !m.paused {
			m.syncTables()
		}
		return m, nil
	case key.Matches(msg, m.keys.Export):
		return m, m.exportTrades()
	case key.Matches(msg, m.keys.Report):
		return m, m.exportDailyReport()
	case key.Matches(msg, m.keys.Clear):
		m.clearActive()
		return m, nil
	}

	var cmd tea.Cmd
	switch m.active {
	case tabTokens:
		m.tokenTable, cmd = m.tokenTable.Update(msg)
	case tabTrades:
		m.tradeTable, cmd = m.tradeTable.Update(msg)
	case tabPrices:
		m.priceTable, cmd = m.priceTable.Update(msg)
	case tabLogs, tabActivity:
		m.logView, cmd = m.logView.Update(msg)
	}
	return m, cmd
}

func (m *Model) addToken(t domain.NewToken) {
	m.tokenCount++
	m.tokens = prepend(m.tokens, t, maxTokens)
	if !m.paused {
		m.syncTables()
	}
}

func (m *Model) addTrade(t domain.Trade) {
	m.tradeCount++
	switch t.Side {
	case domain.SideBuy:
		m.buyVolume += t.QuoteAmount
	case domain.SideSell:
		m.sellVolume += t.QuoteAmount
	}
	m.trades = prepend(m.trades, t, maxTrades)
	if !m.paused {
		m.syncTables()
	}
}

func (m *Model) addPrice(p PriceMsg) {
	row, ok := m.prices[p.Mint]
	if !ok {
		if len(m.prices) >= maxPriceMints {
			m.evictOldestPrice()
		}
		row = &priceRow{mint: p.Mint, spark: NewSparkline(sparkWidth)}
		m.prices[p.Mint] = row
	}
	row.spark.Add(p.Price)
	row.at = p.At
	if !m.paused {
		m.syncTables()
	}
}

func (m *Model) evictOldestPrice() {
	var oldest *priceRow
	for _, r := range m.prices {
		if oldest == nil || r.at.Before(oldest.at) {
			oldest = r
		}
	}
	if oldest != nil {
		delete(m.prices, oldest.mint)
	}
}

func (m *Model) addActivity(line string) {
	m.activity = append(m.activity, line)
	if len(m.activity) > maxActivity {
		m.activity = m.activity[len(m.activity)-maxActivity:]
	}
	m.syncText()
}

func (m *Model) clearActive() {
	switch m.active {
	case tabTokens:
		m.tokens = nil
	case tabTrades:
		m.trades = nil
	case tabPrices:
		m.prices = make(map[string]*priceRow)
	case tabActivity:
		m.activity = nil
	}
	m.syncTables()
	m.syncText()
}

func (m *Model) refresh() {
	if m.cfg.Backend == nil {
		m.syncText()
		return
	}
	m.feedState = m.cfg.Backend.FeedState()
	m.watched = len(m.cfg.Backend.Watched())
	if !m.paused {
		m.syncTables()
		m.syncText()
	}
}

func (m *Model) syncTables() {
	tokenRows := make([]table.Row, len(m.tokens))
	for i, t := range m.tokens {
		tokenRows[i] = table.Row{
			t.Timestamp.Local().Format("15:04:05"),
			t.Symbol,
			t.Name,
			t.Mint,
			logger.ShortAddress(t.Creator),
		}
	}
	m.tokenTable.SetRows(tokenRows)

	tradeRows := make([]table.Row, len(m.trades))
	for i, t := range m.trades {
		tradeRows[i] = table.Row{
			t.Timestamp.Local().Format("15:04:05"),
			string(t.Side),
			fmt.Sprintf("%.4f", t.QuoteAmount),
			fmt.Sprintf("%.10f", t.PriceInQuote),
			logger.ShortAddress(t.Mint),
			logger.ShortAddress(t.Trader),
		}
	}
	m.tradeTable.SetRows(tradeRows)

	rows := make([]*priceRow, 0, len(m.prices))
	for _, r := range m.prices {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].at.After(rows[j].at) })
	priceRows := make([]table.Row, len(rows))
	for i, r := range rows {
		last, _ := r.spark.Last()
		priceRows[i] = table.Row{
			logger.ShortAddress(r.mint),
			fmt.Sprintf("%.10f", last),
			r.spark.View(),
			fmt.Sprintf("%+.2f", r.spark.ChangePercent()),
			m.watchLabel(r.mint),
		}
	}
	m.priceTable.SetRows(priceRows)
}

func (m *Model) watchLabel(mint string) string {
	if m.cfg.Backend == nil {
		return "-"
	}
	st, ok := m.cfg.Backend.WatchStatus(mint)
	if !ok {
		return "-"
	}
	if st.Degraded() {
		return fmt.Sprintf("refs=%d failing(%d)", st.Refs, st.ConsecutiveFailures)
	}
	return fmt.Sprintf("refs=%d ok", st.Refs)
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	bodyHeight := height - 6
	if bodyHeight < 3 {
		bodyHeight = 3
	}
	m.tokenTable.SetHeight(bodyHeight)
	m.tradeTable.SetHeight(bodyHeight)
	m.priceTable.SetHeight(bodyHeight)
	m.logView.Width = width
	m.logView.Height = bodyHeight
	m.help.Width = width
}

func (m Model) exportTrades() tea.Cmd {
	if m.cfg.Exporter == nil {
		return nil
	}
	trades := make([]domain.Trade, len(m.trades))
	copy(trades, m.trades)
	exporter, dir := m.cfg.Exporter, m.cfg.ExportDir
	return func() tea.Msg {
		path, err := exporter.ExportTrades(trades, export.ExportOptions{
			Format:    export.FormatCSV,
			OutputDir: dir,
		})
		return exportedMsg{path: path, err: err}
	}
}

// exportDailyReport writes the report for the day of the newest trade.
func (m Model) exportDailyReport() tea.Cmd {
	if m.cfg.Exporter == nil {
		return nil
	}
	if len(m.trades) == 0 {
		return func() tea.Msg { return exportedMsg{} }
	}
	trades := make([]domain.Trade, len(m.trades))
	copy(trades, m.trades)
	day := trades[0].Timestamp
	exporter, dir := m.cfg.Exporter, m.cfg.ExportDir
	return func() tea.Msg {
		path, err := exporter.ExportDailyReport(trades, day, dir)
		return exportedMsg{path: path, err: err}
	}
}

// View renders the screen.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.tabsView())
	b.WriteString("\n")

	switch m.active {
	case tabTokens:
		b.WriteString(m.tokenTable.View())
	case tabTrades:
		b.WriteString(m.tradeTable.View())
	case tabPrices:
		b.WriteString(m.priceTable.View())
	case tabActivity:
		b.WriteString(m.textView(m.activity, "no alerts or order updates yet"))
	case tabLogs:
		b.WriteString(m.textView(m.logLines(), "no log entries"))
	}

	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(m.status + "\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) headerView() string {
	state := string(m.feedState)
	parts := []string{
		titleStyle.Render("pumpwatch"),
		"feed " + stateStyle(state).Render(state),
		fmt.Sprintf("tokens %d", m.tokenCount),
		fmt.Sprintf("trades %d", m.tradeCount),
		buyStyle.Render(fmt.Sprintf("buy %.2f SOL", m.buyVolume)),
		sellStyle.Render(fmt.Sprintf("sell %.2f SOL", m.sellVolume)),
		fmt.Sprintf("watched %d", m.watched),
	}
	if m.paused {
		parts = append(parts, warnStyle.Render("PAUSED"))
	}
	return headerStyle.Render(strings.Join(parts, mutedStyle.Render(" │ ")))
}

func (m Model) tabsView() string {
	tabs := make([]string, tabCount)
	for i := tab(0); i < tabCount; i++ {
		if i == m.active {
			tabs[i] = activeTabStyle.Render(tabNames[i])
		} else {
			tabs[i] = tabStyle.Render(tabNames[i])
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) textView(lines []string, empty string) string {
	if len(lines) == 0 {
		return mutedStyle.Render(empty)
	}
	return m.logView.View()
}

// syncText loads the activity or log lines into the viewport, following the
// tail unless the user scrolled up.
func (m *Model) syncText() {
	var lines []string
	switch m.active {
	case tabActivity:
		lines = m.activity
	case tabLogs:
		lines = m.logLines()
	default:
		return
	}
	atBottom := m.logView.AtBottom()
	m.logView.SetContent(strings.Join(lines, "\n"))
	if atBottom {
		m.logView.GotoBottom()
	}
}

func (m Model) logLines() []string {
	if m.cfg.Logs == nil {
		return nil
	}
	entries := m.cfg.Logs.Recent(200)
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("%s %s %s %s",
			mutedStyle.Render(e.Timestamp.Local().Format("15:04:05")),
			levelStyle(e.Level).Render(fmt.Sprintf("%-5s", e.Level)),
			mutedStyle.Render(e.Logger),
			e.Message)
	}
	return lines
}

func timeOf(t *time.Time) string {
	if t == nil {
		return "--:--:--"
	}
	return t.Format("15:04:05")
}

func prepend[T any](list []T, v T, limit int) []T {
	list = append([]T{v}, list...)
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}
