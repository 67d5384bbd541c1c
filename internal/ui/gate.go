package ui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"todogate/internal/auth"
	"todogate/internal/dataclient"
)

// Accounts is the part of the backend the sign-in gate talks to.
type Accounts interface {
	SignUp(ctx context.Context, username, password string) error
	SignIn(ctx context.Context, username, password string) (dataclient.SignInResult, error)
}

type gateMode int

const (
	gateSignIn gateMode = iota
	gateSignUp
)

// signedInMsg reports the outcome of a gate submission.
type signedInMsg struct {
	session auth.Session
	err     error
}

type gate struct {
	mode     gateMode
	username textinput.Model
	password textinput.Model
	focus    int
	busy     bool
	err      string
	notice   string

	accounts Accounts
	endpoint string
	keys     keyMap
	timeout  time.Duration
}

func newGate(accounts Accounts, endpoint string, keys keyMap, timeout time.Duration) gate {
	user := textinput.New()
	user.Placeholder = "Username"
	user.Prompt = "Username: "
	user.CharLimit = 128
	user.Focus()

	pass := textinput.New()
	pass.Placeholder = "Password"
	pass.Prompt = "Password: "
	pass.CharLimit = 256
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'

	return gate{
		username: user,
		password: pass,
		accounts: accounts,
		endpoint: endpoint,
		keys:     keys,
		timeout:  timeout,
	}
}

func (g gate) Update(msg tea.Msg) (gate, tea.Cmd) {
	switch msg := msg.(type) {
	case signedInMsg:
		g.busy = false
		if msg.err != nil {
			g.err = describeAuthError(msg.err)
			g.password.SetValue("")
		}
		return g, nil
	case tea.KeyMsg:
		if g.busy {
			return g, nil
		}
		switch {
		case key.Matches(msg, g.keys.Switch):
			if g.mode == gateSignIn {
				g.mode = gateSignUp
			} else {
				g.mode = gateSignIn
			}
			g.err = ""
			return g, nil
		case msg.Type == tea.KeyUp || msg.Type == tea.KeyDown:
			return g.setFocus(1 - g.focus)
		case key.Matches(msg, g.keys.Confirm):
			if g.focus == 0 {
				return g.setFocus(1)
			}
			return g.submit()
		}
	}

	var cmd tea.Cmd
	if g.focus == 0 {
		g.username, cmd = g.username.Update(msg)
	} else {
		g.password, cmd = g.password.Update(msg)
	}
	return g, cmd
}

func (g gate) setFocus(i int) (gate, tea.Cmd) {
	g.focus = i
	if i == 0 {
		g.password.Blur()
		return g, g.username.Focus()
	}
	g.username.Blur()
	return g, g.password.Focus()
}

func (g gate) submit() (gate, tea.Cmd) {
	username := strings.TrimSpace(g.username.Value())
	password := g.password.Value()
	if username == "" || password == "" {
		g.err = "Username and password are required"
		return g, nil
	}
	g.busy = true
	g.err = ""
	accounts, endpoint, timeout, mode := g.accounts, g.endpoint, g.timeout, g.mode
	return g, func() tea.Msg {
		ctx, cancel := requestContext(timeout)
		defer cancel()
		if mode == gateSignUp {
			if err := accounts.SignUp(ctx, username, password); err != nil {
				return signedInMsg{err: err}
			}
		}
		res, err := accounts.SignIn(ctx, username, password)
		if err != nil {
			return signedInMsg{err: err}
		}
		sess := auth.Session{
			Username:  res.Username,
			Token:     res.Token,
			Endpoint:  endpoint,
			CreatedAt: time.Now().UTC(),
		}
		if !res.ExpiresAt.IsZero() {
			exp := res.ExpiresAt
			sess.ExpiresAt = &exp
		}
		return signedInMsg{session: sess}
	}
}

// reset clears the form for the next sign-in, keeping the username.
func (g gate) reset(notice string) gate {
	g.password.SetValue("")
	g.busy = false
	g.err = ""
	g.notice = notice
	g.mode = gateSignIn
	g, _ = g.setFocus(0)
	return g
}

func (g gate) View() string {
	title := "Sign in"
	if g.mode == gateSignUp {
		title = "Create account"
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteString(mutedStyle.Render("  " + g.endpoint))
	b.WriteString("\n\n")
	b.WriteString(g.username.View())
	b.WriteString("\n")
	b.WriteString(g.password.View())
	b.WriteString("\n")
	if g.busy {
		b.WriteString("\n" + mutedStyle.Render("Contacting backend..."))
	}
	if g.err != "" {
		b.WriteString("\n" + errorStyle.Render(g.err))
	} else if g.notice != "" {
		b.WriteString("\n" + successStyle.Render(g.notice))
	}
	b.WriteString("\n\n")
	b.WriteString(renderHelp(g.keys.Confirm, g.keys.Switch))
	b.WriteString(helpStyle.Render(" • ctrl+c quit"))
	return panelStyle.Render(b.String())
}

func describeAuthError(err error) string {
	var apiErr *dataclient.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
