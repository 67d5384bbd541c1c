package ui

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"todogate/internal/auth"
	"todogate/internal/config"
	"todogate/internal/dataclient"
	"todogate/internal/provider"
)

type phase int

const (
	phaseChecking phase = iota
	phaseGate
	phaseSignedIn
)

// Backend is what the app needs from the data client outside of the list
// view: the gate's account calls plus session checks bound to a token.
type Backend interface {
	Accounts
	Me(ctx context.Context, token string) (string, error)
	SignOut(ctx context.Context, token string) error
}

type Options struct {
	Config  config.Config
	Creds   auth.Store
	Backend Backend
	// NewClients returns the client provider for a signed-in session. The
	// app starts it when the list view mounts.
	NewClients func(auth.Session) *provider.Provider[ItemAPI]
	// Logger is used for lifecycle logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// ClientBackend adapts a dataclient.Client to Backend.
type ClientBackend struct {
	*dataclient.Client
}

func (b ClientBackend) Me(ctx context.Context, token string) (string, error) {
	return b.Client.WithToken(token).Me(ctx)
}

func (b ClientBackend) SignOut(ctx context.Context, token string) error {
	return b.Client.WithToken(token).SignOut(ctx)
}

type sessionCheckedMsg struct {
	session auth.Session
	err     error
}

type signedOutMsg struct {
	err error
}

type Model struct {
	opts   Options
	keys   keyMap
	logger *slog.Logger

	phase    phase
	gate     gate
	list     listView
	session  auth.Session
	nextView int
	checking spinner.Model
}

func New(opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	keys := newKeyMap(opts.Config.Keys)
	timeout := opts.Config.Backend.RequestTimeoutDuration()
	m := Model{
		opts:     opts,
		keys:     keys,
		logger:   logger,
		phase:    phaseGate,
		gate:     newGate(opts.Backend, opts.Config.Backend.Endpoint, keys, timeout),
		checking: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}

	sess, err := opts.Creds.Load()
	switch {
	case err == nil && sess.Expired(time.Now()):
		if err := opts.Creds.Delete(); err != nil {
			logger.Warn("could not remove credentials", "error", err)
		}
		m.gate = m.gate.reset("Session expired, please sign in again")
	case err == nil:
		m.phase = phaseChecking
		m.session = sess
	case !errors.Is(err, auth.ErrNotSignedIn):
		logger.Warn("could not read stored credentials", "error", err)
	}
	return m
}

func Run(opts Options) error {
	program := tea.NewProgram(New(opts), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

// Init verifies a stored session if New found one; otherwise the gate shows.
func (m Model) Init() tea.Cmd {
	if m.phase != phaseChecking {
		return nil
	}
	return tea.Batch(m.checking.Tick, m.checkSession(m.session))
}

func (m Model) checkSession(sess auth.Session) tea.Cmd {
	backend := m.opts.Backend
	timeout := m.opts.Config.Backend.RequestTimeoutDuration()
	return func() tea.Msg {
		ctx, cancel := requestContext(timeout)
		defer cancel()
		name, err := backend.Me(ctx, sess.Token)
		if err == nil && name != "" {
			sess.Username = name
		}
		return sessionCheckedMsg{session: sess, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && k.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	case sessionCheckedMsg:
		return m.onSessionChecked(msg)
	case signedInMsg:
		if msg.err != nil {
			var cmd tea.Cmd
			m.gate, cmd = m.gate.Update(msg)
			return m, cmd
		}
		if err := m.opts.Creds.Save(msg.session); err != nil {
			m.logger.Warn("could not store credentials", "error", err)
		}
		m.gate, _ = m.gate.Update(msg)
		return m.mount(msg.session)
	case signedOutMsg:
		notice := "Signed out"
		if msg.err != nil {
			notice = "Signed out locally (" + msg.err.Error() + ")"
		}
		m.gate = m.gate.reset(notice)
		return m, nil
	case clientSettledMsg, fetchedMsg, createdMsg:
		if m.phase != phaseSignedIn {
			return m, nil
		}
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	case spinner.TickMsg:
		var cmd tea.Cmd
		if m.phase == phaseChecking {
			m.checking, cmd = m.checking.Update(msg)
			return m, cmd
		}
		if m.phase == phaseSignedIn {
			m.list, cmd = m.list.Update(msg)
		}
		return m, cmd
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.phase {
	case phaseGate:
		m.gate, cmd = m.gate.Update(msg)
		return m, cmd
	case phaseSignedIn:
		if !m.list.capturingInput() {
			switch {
			case key.Matches(msg, m.keys.Quit):
				return m, tea.Quit
			case key.Matches(msg, m.keys.SignOut):
				return m.signOut()
			}
		}
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) onSessionChecked(msg sessionCheckedMsg) (tea.Model, tea.Cmd) {
	if m.phase != phaseChecking {
		return m, nil
	}
	if dataclient.IsUnauthorized(msg.err) {
		m.logger.Info("stored session rejected", "username", msg.session.Username)
		if err := m.opts.Creds.Delete(); err != nil {
			m.logger.Warn("could not remove credentials", "error", err)
		}
		m.phase = phaseGate
		m.gate = m.gate.reset("Session expired, please sign in again")
		return m, nil
	}
	if msg.err != nil {
		// The list view reports connectivity problems itself.
		m.logger.Warn("session check failed", "error", msg.err)
	}
	return m.mount(msg.session)
}

// mount shows the list view for sess with a fresh client provider.
func (m Model) mount(sess auth.Session) (tea.Model, tea.Cmd) {
	m.nextView++
	m.session = sess
	clients := m.opts.NewClients(sess)
	clients.Start(context.Background())
	m.list = newListView(
		m.nextView,
		clients,
		m.keys,
		m.opts.Config.Backend.RequestTimeoutDuration(),
		m.logger.With("username", sess.Username),
	)
	m.phase = phaseSignedIn
	m.logger.Info("signed in", "username", sess.Username, "view", m.nextView)
	return m, m.list.Init()
}

// signOut unmounts the list view at once; late results for it are dropped.
func (m Model) signOut() (tea.Model, tea.Cmd) {
	sess := m.session
	m.list = listView{}
	m.session = auth.Session{}
	m.phase = phaseGate
	m.gate = m.gate.reset("Signing out...")
	m.logger.Info("signing out", "username", sess.Username)

	backend, creds := m.opts.Backend, m.opts.Creds
	timeout := m.opts.Config.Backend.RequestTimeoutDuration()
	return m, func() tea.Msg {
		ctx, cancel := requestContext(timeout)
		defer cancel()
		remoteErr := backend.SignOut(ctx, sess.Token)
		if err := creds.Delete(); err != nil {
			return signedOutMsg{err: err}
		}
		if remoteErr != nil && !dataclient.IsUnauthorized(remoteErr) {
			return signedOutMsg{err: remoteErr}
		}
		return signedOutMsg{}
	}
}

func (m Model) View() string {
	switch m.phase {
	case phaseChecking:
		return m.checking.View() + " Checking session..."
	case phaseGate:
		return m.gate.View()
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Hello, " + m.session.DisplayName() + "!"))
	b.WriteString("\n\n")
	b.WriteString(m.list.View())
	return b.String()
}
