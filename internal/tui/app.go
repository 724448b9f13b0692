// Package tui renders one cart tab in the terminal. The view is redrawn from
// the store after every local edit and every change a peer tab pushes in.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rl1809/cart-sync/internal/core/domain"
	"github.com/rl1809/cart-sync/internal/core/service"
)

const validateTimeout = 5 * time.Second

// Validator asks the validation service for a verdict on a cart.
type Validator interface {
	Validate(ctx context.Context, sessionID string, snapshot domain.Snapshot) (domain.Verdict, error)
}

type pane int

const (
	paneCatalog pane = iota
	paneCart
)

// cartChangedMsg means the store or the sync state moved; the model rereads both.
type cartChangedMsg struct{}

type verdictMsg struct {
	verdict domain.Verdict
	err     error
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	syncingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	selected     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#5B8DEF"))
	paneStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	activePane   = paneStyle.BorderForeground(lipgloss.Color("#5B8DEF"))
)

type Model struct {
	tab       *service.Tab
	catalog   []domain.Product
	validator Validator
	sessionID string
	changes   chan struct{}

	snapshot  domain.Snapshot
	syncState service.SyncState

	focus         pane
	catalogCursor int
	cartCursor    int

	verdict    *domain.Verdict
	validating bool
	status     string
	err        error

	keys   keyMap
	help   help.Model
	width  int
	height int
}

// New wires the model to tab. validator may be nil when no validation
// service is reachable.
func New(tab *service.Tab, catalog []domain.Product, validator Validator, sessionID string) Model {
	changes := make(chan struct{}, 1)
	signal := func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	}
	tab.Store.Subscribe(func(domain.Snapshot) { signal() })
	tab.Sync.OnStateChange(func(service.SyncState) { signal() })

	return Model{
		tab:       tab,
		catalog:   catalog,
		validator: validator,
		sessionID: sessionID,
		changes:   changes,
		snapshot:  tab.Store.Snapshot(),
		syncState: tab.Sync.State(),
		keys:      defaultKeyMap(),
		help:      help.New(),
	}
}

func (m Model) Init() tea.Cmd {
	return waitForChange(m.changes)
}

func waitForChange(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-changes
		return cartChangedMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case cartChangedMsg:
		m.refresh()
		return m, waitForChange(m.changes)

	case verdictMsg:
		m.validating = false
		if msg.err != nil {
			m.err = msg.err
			m.status = "validation failed"
			return m, nil
		}
		m.err = nil
		v := msg.verdict
		m.verdict = &v
		m.status = "validated"
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx := context.Background()

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Switch):
		if m.focus == paneCatalog {
			m.focus = paneCart
		} else {
			m.focus = paneCatalog
		}

	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)

	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)

	case key.Matches(msg, m.keys.Add):
		if len(m.catalog) == 0 {
			m.status = "catalog is empty"
			break
		}
		p := m.catalog[m.catalogCursor]
		m.tab.Store.AddLine(ctx, p)
		m.status = fmt.Sprintf("added %s", p.Name)

	case key.Matches(msg, m.keys.Inc):
		if l, ok := m.selectedLine(); ok {
			m.tab.Store.SetQuantity(ctx, l.ID, l.Quantity+1)
		}

	case key.Matches(msg, m.keys.Dec):
		if l, ok := m.selectedLine(); ok {
			m.tab.Store.SetQuantity(ctx, l.ID, l.Quantity-1)
		}

	case key.Matches(msg, m.keys.Remove):
		if l, ok := m.selectedLine(); ok {
			m.tab.Store.RemoveLine(ctx, l.ID)
			m.status = fmt.Sprintf("removed %s", l.Name)
		}

	case key.Matches(msg, m.keys.Clear):
		m.tab.Store.Clear(ctx)
		m.status = "cart cleared"

	case key.Matches(msg, m.keys.Validate):
		if m.validator == nil {
			m.status = "validation service not configured"
			break
		}
		if m.validating {
			break
		}
		m.validating = true
		m.status = "validating..."
		return m, m.validate(m.tab.Store.Snapshot())
	}

	m.refresh()
	return m, nil
}

func (m Model) validate(snap domain.Snapshot) tea.Cmd {
	validator := m.validator
	sessionID := m.sessionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), validateTimeout)
		defer cancel()
		verdict, err := validator.Validate(ctx, sessionID, snap)
		return verdictMsg{verdict: verdict, err: err}
	}
}

func (m *Model) refresh() {
	m.snapshot = m.tab.Store.Snapshot()
	m.syncState = m.tab.Sync.State()
	if m.cartCursor >= m.snapshot.Len() {
		m.cartCursor = max(0, m.snapshot.Len()-1)
	}
}

func (m *Model) moveCursor(delta int) {
	switch m.focus {
	case paneCatalog:
		m.catalogCursor = clamp(m.catalogCursor+delta, len(m.catalog))
	case paneCart:
		m.cartCursor = clamp(m.cartCursor+delta, m.snapshot.Len())
	}
}

func (m Model) selectedLine() (domain.CartLine, bool) {
	lines := m.snapshot.Lines()
	if len(lines) == 0 {
		return domain.CartLine{}, false
	}
	return lines[m.cartCursor], true
}

func clamp(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func (m Model) View() string {
	var b strings.Builder

	badge := idleStyle.Render("● in sync")
	if m.syncState == service.SyncSyncing {
		badge = syncingStyle.Render("◌ syncing")
	}
	fmt.Fprintf(&b, "%s  %s  %s\n\n", titleStyle.Render("cart-sync"), hintStyle.Render("tab "+shortID(m.tab.ID)), badge)

	catalog := m.renderCatalog()
	cart := m.renderCart()
	if m.focus == paneCatalog {
		catalog = activePane.Render(catalog)
		cart = paneStyle.Render(cart)
	} else {
		catalog = paneStyle.Render(catalog)
		cart = activePane.Render(cart)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, catalog, " ", cart))
	b.WriteString("\n")

	if v := m.renderVerdict(); v != "" {
		b.WriteString(v)
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	} else if m.status != "" {
		b.WriteString(hintStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderCatalog() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Catalog"))
	b.WriteString("\n")
	if len(m.catalog) == 0 {
		b.WriteString(hintStyle.Render("no products"))
		return b.String()
	}
	for i, p := range m.catalog {
		row := fmt.Sprintf("%-20s %10s", p.Name, p.Price.StringFixed(2))
		if m.focus == paneCatalog && i == m.catalogCursor {
			row = selected.Render(row)
		}
		b.WriteString(row)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderCart() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Cart"))
	b.WriteString("\n")
	lines := m.snapshot.Lines()
	if len(lines) == 0 {
		b.WriteString(hintStyle.Render("cart is empty"))
		b.WriteString("\n")
	}
	for i, l := range lines {
		row := fmt.Sprintf("%-20s x%-3d %10s", l.Name, l.Quantity, l.Subtotal().StringFixed(2))
		if m.focus == paneCart && i == m.cartCursor {
			row = selected.Render(row)
		}
		b.WriteString(row)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "items: %d  total: %s", m.snapshot.TotalItems(), m.snapshot.TotalPrice().StringFixed(2))
	return b.String()
}

func (m Model) renderVerdict() string {
	if m.verdict == nil {
		return ""
	}
	v := m.verdict
	var b strings.Builder
	if v.IsValid {
		b.WriteString(idleStyle.Render("✓ cart is valid"))
	} else {
		b.WriteString(errorStyle.Render("✗ cart is invalid"))
	}
	b.WriteString("\n")
	for _, e := range v.Errors {
		b.WriteString(errorStyle.Render("  • " + e))
		b.WriteString("\n")
	}
	for _, w := range v.Warnings {
		b.WriteString(warnStyle.Render("  ! " + w))
		b.WriteString("\n")
	}
	for _, s := range v.Suggestions {
		b.WriteString(hintStyle.Render("  → " + s))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
