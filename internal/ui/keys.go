package ui

import (
	"github.com/charmbracelet/bubbles/key"

	"todogate/internal/config"
)

type keyMap struct {
	Quit    key.Binding
	Add     key.Binding
	Up      key.Binding
	Down    key.Binding
	Confirm key.Binding
	Cancel  key.Binding
	Retry   key.Binding
	SignOut key.Binding
	Switch  key.Binding
}

func newKeyMap(k config.Keymap) keyMap {
	return keyMap{
		Quit:    key.NewBinding(key.WithKeys(k.Quit), key.WithHelp(k.Quit, "quit")),
		Add:     key.NewBinding(key.WithKeys(k.Add), key.WithHelp(k.Add, "add todo")),
		Up:      key.NewBinding(key.WithKeys(k.Up, "up"), key.WithHelp(k.Up, "up")),
		Down:    key.NewBinding(key.WithKeys(k.Down, "down"), key.WithHelp(k.Down, "down")),
		Confirm: key.NewBinding(key.WithKeys(k.Confirm), key.WithHelp(k.Confirm, "confirm")),
		Cancel:  key.NewBinding(key.WithKeys(k.Cancel), key.WithHelp(k.Cancel, "cancel")),
		Retry:   key.NewBinding(key.WithKeys(k.Retry), key.WithHelp(k.Retry, "refresh")),
		SignOut: key.NewBinding(key.WithKeys(k.SignOut), key.WithHelp(k.SignOut, "sign out")),
		Switch:  key.NewBinding(key.WithKeys(k.Switch), key.WithHelp(k.Switch, "sign in / create account")),
	}
}

func renderHelp(bindings ...key.Binding) string {
	var out string
	for i, b := range bindings {
		h := b.Help()
		if i > 0 {
			out += " • "
		}
		out += h.Key + " " + h.Desc
	}
	return helpStyle.Render(out)
}
