package ui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"todogate/internal/model"
	"todogate/internal/provider"
)

// ItemAPI is the backend accessor for the Todo model.
type ItemAPI interface {
	List(ctx context.Context) ([]model.Item, error)
	Create(ctx context.Context, in model.CreateItemInput) (model.Item, error)
}

type listState int

const (
	listUninitialized listState = iota
	listReady
	listFailed
)

func (s listState) String() string {
	switch s {
	case listUninitialized:
		return "uninitialized"
	case listReady:
		return "ready"
	case listFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Every message below carries the id of the view that issued it, so results
// arriving after the view has been unmounted are dropped.

type clientSettledMsg struct {
	view int
	api  ItemAPI
	err  error
}

type fetchedMsg struct {
	view  int
	seq   uint64
	items []model.Item
	err   error
}

type createdMsg struct {
	view int
	item model.Item
	err  error
}

type listView struct {
	id      int
	clients *provider.Provider[ItemAPI]
	api     ItemAPI
	state   listState
	keys    keyMap
	timeout time.Duration
	logger  *slog.Logger

	items   []model.Item
	cursor  int
	adding  bool
	input   textinput.Model
	spinner spinner.Model

	// fetchSeq numbers fetches in issue order; appliedSeq is the newest one
	// whose result is on screen.
	fetchSeq   uint64
	appliedSeq uint64
	inflight   int

	initErr   error
	fetchErr  error
	createErr error
	status    string
}

func newListView(id int, clients *provider.Provider[ItemAPI], keys keyMap, timeout time.Duration, logger *slog.Logger) listView {
	if logger == nil {
		logger = slog.Default()
	}
	ti := textinput.New()
	ti.Placeholder = "Todo content?"
	ti.Prompt = "> "
	ti.Width = 40

	return listView{
		id:      id,
		clients: clients,
		keys:    keys,
		timeout: timeout,
		logger:  logger.With("view", id),
		input:   ti,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

func (v listView) Init() tea.Cmd {
	return tea.Batch(v.spinner.Tick, v.waitForClient())
}

// waitForClient turns the provider's readiness into a message.
func (v listView) waitForClient() tea.Cmd {
	id, clients := v.id, v.clients
	return func() tea.Msg {
		<-clients.Done()
		if api, ok := clients.Get(); ok {
			return clientSettledMsg{view: id, api: api}
		}
		return clientSettledMsg{view: id, err: clients.Err()}
	}
}

func (v listView) Update(msg tea.Msg) (listView, tea.Cmd) {
	switch msg := msg.(type) {
	case clientSettledMsg:
		if msg.view != v.id {
			return v, nil
		}
		return v.onClientSettled(msg)
	case fetchedMsg:
		if msg.view != v.id {
			return v, nil
		}
		return v.onFetched(msg), nil
	case createdMsg:
		if msg.view != v.id {
			return v, nil
		}
		return v.onCreated(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		return v, cmd
	case tea.WindowSizeMsg:
		v.input.Width = max(msg.Width-10, 10)
	case tea.KeyMsg:
		return v.handleKey(msg)
	}
	return v, nil
}

// onClientSettled is the one-way Uninitialized -> Ready|Failed transition.
// Ready issues exactly one fetch.
func (v listView) onClientSettled(msg clientSettledMsg) (listView, tea.Cmd) {
	if v.state != listUninitialized {
		return v, nil
	}
	if msg.err != nil || msg.api == nil {
		v.state = listFailed
		v.initErr = msg.err
		if v.initErr == nil {
			v.initErr = provider.ErrNotReady
		}
		v.logger.Error("client unavailable", "error", v.initErr)
		return v, nil
	}
	v.api = msg.api
	v.state = listReady
	v.logger.Debug("client ready, fetching")
	return v.fetchAll()
}

// fetchAll issues a full read. No-op while the client is absent.
func (v listView) fetchAll() (listView, tea.Cmd) {
	if v.api == nil {
		return v, nil
	}
	v.fetchSeq++
	v.inflight++
	id, seq, api, timeout := v.id, v.fetchSeq, v.api, v.timeout
	return v, func() tea.Msg {
		ctx, cancel := requestContext(timeout)
		defer cancel()
		items, err := api.List(ctx)
		return fetchedMsg{view: id, seq: seq, items: items, err: err}
	}
}

// createOne writes one item with the description exactly as given; the
// follow-up fetch is issued from onCreated whatever the outcome.
func (v listView) createOne(description string) (listView, tea.Cmd) {
	if v.api == nil {
		return v, nil
	}
	v.inflight++
	id, api, timeout := v.id, v.api, v.timeout
	in := model.CreateItemInput{Status: description, IsDone: false}
	return v, func() tea.Msg {
		ctx, cancel := requestContext(timeout)
		defer cancel()
		it, err := api.Create(ctx, in)
		return createdMsg{view: id, item: it, err: err}
	}
}

func (v listView) onFetched(msg fetchedMsg) listView {
	v.inflight = max(v.inflight-1, 0)
	if msg.seq <= v.appliedSeq {
		v.logger.Debug("dropping stale fetch", "seq", msg.seq, "applied", v.appliedSeq)
		return v
	}
	if msg.err != nil {
		v.fetchErr = msg.err
		v.status = fmt.Sprintf("reload failed: %v", msg.err)
		v.logger.Warn("fetch failed", "seq", msg.seq, "error", msg.err)
		return v
	}
	v.appliedSeq = msg.seq
	v.fetchErr = nil
	v.items = msg.items
	v.cursor = clampCursor(v.cursor, len(v.items))
	if v.status == "Refreshing..." || strings.HasPrefix(v.status, "reload failed") {
		v.status = ""
	}
	return v
}

func (v listView) onCreated(msg createdMsg) (listView, tea.Cmd) {
	v.inflight = max(v.inflight-1, 0)
	if msg.err != nil {
		v.createErr = msg.err
		v.status = fmt.Sprintf("save failed: %v", msg.err)
		v.logger.Warn("create failed", "error", msg.err)
	} else {
		v.createErr = nil
		v.status = "Added todo"
		v.logger.Debug("created", "id", msg.item.ID)
	}
	return v.fetchAll()
}

func (v listView) handleKey(msg tea.KeyMsg) (listView, tea.Cmd) {
	if v.adding {
		return v.updateAddMode(msg)
	}
	if v.state != listReady {
		return v, nil
	}
	switch {
	case key.Matches(msg, v.keys.Add):
		v.adding = true
		v.input.SetValue("")
		v.status = "Add mode: type the todo and press Enter"
		return v, v.input.Focus()
	case key.Matches(msg, v.keys.Retry):
		v.status = "Refreshing..."
		return v.fetchAll()
	case key.Matches(msg, v.keys.Down):
		if len(v.items) > 0 {
			v.cursor = clampCursor(v.cursor+1, len(v.items))
		}
	case key.Matches(msg, v.keys.Up):
		if v.cursor > 0 {
			v.cursor = clampCursor(v.cursor-1, len(v.items))
		}
	}
	return v, nil
}

func (v listView) updateAddMode(msg tea.KeyMsg) (listView, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Cancel):
		v.adding = false
		v.input.SetValue("")
		v.input.Blur()
		v.status = "Cancelled"
		return v, nil
	case key.Matches(msg, v.keys.Confirm):
		description := v.input.Value()
		v.adding = false
		v.input.SetValue("")
		v.input.Blur()
		v.status = "Saving..."
		return v.createOne(description)
	default:
		var cmd tea.Cmd
		v.input, cmd = v.input.Update(msg)
		return v, cmd
	}
}

// capturingInput reports whether keystrokes belong to the add prompt.
func (v listView) capturingInput() bool {
	return v.adding
}

func (v listView) View() string {
	var b strings.Builder
	switch v.state {
	case listUninitialized:
		b.WriteString(v.spinner.View() + " Loading data...")
		return b.String()
	case listFailed:
		b.WriteString(errorStyle.Render("Could not connect to the backend"))
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%v", v.initErr))
		b.WriteString("\n\n")
		b.WriteString(renderHelp(v.keys.SignOut, v.keys.Quit))
		return b.String()
	}

	header := titleStyle.Render("Todos") + " " + mutedStyle.Render(fmt.Sprintf("(%d)", len(v.items)))
	if v.inflight > 0 {
		header += " " + v.spinner.View() + mutedStyle.Render(" syncing")
	}
	b.WriteString(header)
	b.WriteString("\n\n")

	if len(v.items) == 0 {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("No todos yet. Press '%s' to add one.", v.keys.Add.Help().Key)))
		b.WriteString("\n")
	} else {
		b.WriteString(v.renderItems())
	}

	if v.adding {
		b.WriteString("\n")
		b.WriteString(panelStyle.Render(accentStyle.Render("Add new todo") + "\n" + v.input.View()))
		b.WriteString("\n")
	}

	if v.fetchErr != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("Could not load todos: %v", v.fetchErr)))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render(fmt.Sprintf("Press '%s' to retry.", v.keys.Retry.Help().Key)))
		b.WriteString("\n")
	}
	if v.createErr != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("Last todo was not saved: %v", v.createErr)))
		b.WriteString("\n")
	}

	if v.status != "" {
		b.WriteString("\n")
		b.WriteString(v.status)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(renderHelp(v.keys.Up, v.keys.Down, v.keys.Add, v.keys.Retry, v.keys.SignOut, v.keys.Quit))
	return b.String()
}

func (v listView) renderItems() string {
	var b strings.Builder
	for i, it := range v.items {
		cursor := "  "
		if i == v.cursor && !v.adding {
			cursor = selectedStyle.Render("> ")
		}
		box := mutedStyle.Render(boxUnchecked)
		if it.IsDone {
			box = successStyle.Render(boxChecked)
		}
		b.WriteString(fmt.Sprintf("%s%s %s\n", cursor, box, it.Status))
	}
	return b.String()
}

func requestContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}

func clampCursor(cur, n int) int {
	if n <= 0 {
		return 0
	}
	if cur < 0 {
		return 0
	}
	if cur >= n {
		return n - 1
	}
	return cur
}
