package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const minPasswordLen = 8

type loginModel struct {
	serverInput   textinput.Model
	emailInput    textinput.Model
	fullNameInput textinput.Model
	passwordInput textinput.Model
	focusIdx      int
	isRegister    bool
	submitting    bool
	errMsg        string
	width         int
	height        int
}

func newLoginModel(defaultServer string) loginModel {
	server := textinput.New()
	server.Placeholder = "http://localhost:8080"
	server.CharLimit = 256
	server.Width = 40
	if strings.TrimSpace(defaultServer) != "" {
		server.SetValue(strings.TrimSpace(defaultServer))
	}
	server.Focus()

	email := textinput.New()
	email.Placeholder = "email"
	email.CharLimit = 256
	email.Width = 40

	fullName := textinput.New()
	fullName.Placeholder = "full name"
	fullName.CharLimit = 128
	fullName.Width = 40

	password := textinput.New()
	password.Placeholder = "password (min 8 chars)"
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '*'
	password.CharLimit = 128
	password.Width = 40

	return loginModel{
		serverInput:   server,
		emailInput:    email,
		fullNameInput: fullName,
		passwordInput: password,
	}
}

func (m loginModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m loginModel) inputs() []*textinput.Model {
	if m.isRegister {
		return []*textinput.Model{&m.serverInput, &m.emailInput, &m.fullNameInput, &m.passwordInput}
	}
	return []*textinput.Model{&m.serverInput, &m.emailInput, &m.passwordInput}
}

func (m loginModel) Update(msg tea.Msg) (loginModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case authErrorMsg:
		m.submitting = false
		m.errMsg = msg.err.Error()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+r":
			m.isRegister = !m.isRegister
			m.errMsg = ""
			m.focusIdx = 0
			return m.applyFocus(), nil

		case "tab", "shift+tab", "up", "down":
			fields := m.inputs()
			if msg.String() == "shift+tab" || msg.String() == "up" {
				m.focusIdx--
			} else {
				m.focusIdx++
			}
			if m.focusIdx < 0 {
				m.focusIdx = len(fields) - 1
			}
			if m.focusIdx >= len(fields) {
				m.focusIdx = 0
			}
			return m.applyFocus(), nil

		case "enter":
			if err := m.validate(); err != nil {
				m.errMsg = err.Error()
				return m, nil
			}
			m.errMsg = ""
			m.submitting = true
			return m, nil
		}
	}

	fields := m.inputs()
	var cmd tea.Cmd
	*fields[m.focusIdx], cmd = fields[m.focusIdx].Update(msg)
	return m, cmd
}

func (m loginModel) applyFocus() loginModel {
	fields := m.inputs()
	for i, f := range fields {
		if i == m.focusIdx {
			f.Focus()
		} else {
			f.Blur()
		}
	}
	return m
}

func (m loginModel) validate() error {
	if strings.TrimSpace(m.serverInput.Value()) == "" {
		return fmt.Errorf("server address is required")
	}
	if strings.TrimSpace(m.emailInput.Value()) == "" {
		return fmt.Errorf("email is required")
	}
	if m.isRegister && strings.TrimSpace(m.fullNameInput.Value()) == "" {
		return fmt.Errorf("full name is required")
	}
	if len(m.passwordInput.Value()) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}
	return nil
}

func (m loginModel) serverURL() string {
	return strings.TrimRight(strings.TrimSpace(m.serverInput.Value()), "/")
}

func (m loginModel) email() string {
	return strings.TrimSpace(m.emailInput.Value())
}

func (m loginModel) fullName() string {
	return strings.TrimSpace(m.fullNameInput.Value())
}

func (m loginModel) password() string {
	return m.passwordInput.Value()
}

func (m loginModel) View() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(centerText(appNameStyle.Render("pigeon"), m.width))
	b.WriteString("\n\n")

	mode := "login"
	if m.isRegister {
		mode = "register"
	}
	b.WriteString(centerText(subtitleStyle.Render(mode+" (ctrl+r to switch)"), m.width))
	b.WriteString("\n\n")

	labels := []string{"server", "email", "password"}
	fields := []textinput.Model{m.serverInput, m.emailInput, m.passwordInput}
	if m.isRegister {
		labels = []string{"server", "email", "full name", "password"}
		fields = []textinput.Model{m.serverInput, m.emailInput, m.fullNameInput, m.passwordInput}
	}

	for i, f := range fields {
		label := labelStyle.Render(labels[i])
		if i == m.focusIdx {
			label = activeInputStyle.Render(labels[i])
		}
		b.WriteString(fmt.Sprintf("  %s\n  %s\n\n", label, f.View()))
	}

	if m.submitting {
		b.WriteString("  " + subtitleStyle.Render("signing in...") + "\n")
	}
	if m.errMsg != "" {
		b.WriteString("  " + errorStyle.Render(m.errMsg) + "\n")
	}

	b.WriteString("\n" + helpStyle.Render("  enter: submit · tab: next field · ctrl+q: quit"))
	return b.String()
}
