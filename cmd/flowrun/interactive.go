package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/portflow/boundary"
	"github.com/wippyai/portflow/host"
	"github.com/wippyai/portflow/packet"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F5F5F5")).
			Background(lipgloss.Color("#5A56E0")).
			Padding(0, 1)

	opStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7FD4A8"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8AB4F8"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F5F5F5")).
			Background(lipgloss.Color("#5A56E0"))

	portStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFD580"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A6E3A1"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F38BA8"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C7086"))
)

type modelState int

const (
	stateSelectOp modelState = iota
	stateInputs
	stateShowOutput
)

type interactiveModel struct {
	err      error
	host     *host.Host
	instance *host.Instance
	cfg      host.Config
	filename string
	sigs     []*boundary.Signature
	inputs   []textinput.Model
	outputs  map[string][]string
	order    []string
	selected int
	focusIdx int
	state    modelState
	loaded   bool
}

func newInteractiveModel(filename string, cfg host.Config, sigs map[string]*boundary.Signature) *interactiveModel {
	m := &interactiveModel{filename: filename, cfg: cfg, state: stateSelectOp}
	for _, name := range sortedNames(sigs) {
		m.sigs = append(m.sigs, sigs[name])
	}
	return m
}

type loadedMsg struct {
	err  error
	host *host.Host
	inst *host.Instance
}

// outputMsg carries one wrapper of a running invocation; the stream
// continues through next.
type outputMsg struct {
	next    tea.Cmd
	wrapper packet.Wrapper
}

type invocationDoneMsg struct {
	err error
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadComponent
}

func (m *interactiveModel) loadComponent() tea.Msg {
	ctx := context.Background()

	h, err := host.New(ctx, m.cfg)
	if err != nil {
		return loadedMsg{err: err}
	}
	mod, err := h.LoadFile(ctx, m.filename)
	if err != nil {
		h.Close(ctx)
		return loadedMsg{err: err}
	}
	inst, err := h.Instantiate(ctx, mod)
	if err != nil {
		h.Close(ctx)
		return loadedMsg{err: err}
	}
	return loadedMsg{host: h, inst: inst}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.close()
			return m, tea.Quit

		case "q":
			if m.state != stateInputs {
				m.close()
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectOp && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectOp && m.selected < len(m.sigs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectOp:
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.startInvocation()
				}
				m.state = stateInputs
				return m, nil

			case stateInputs:
				return m, m.startInvocation()

			case stateShowOutput:
				m.reset()
			}

		case "tab":
			if m.state == stateInputs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			if m.state != stateSelectOp {
				m.reset()
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.host = msg.host
		m.instance = msg.inst
		m.loaded = true

	case outputMsg:
		m.record(msg.wrapper)
		return m, msg.next

	case invocationDoneMsg:
		if msg.err != nil {
			m.err = msg.err
		}
		return m, nil
	}

	if m.state == stateInputs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) close() {
	ctx := context.Background()
	if m.instance != nil {
		m.instance.Close(ctx)
	}
	if m.host != nil {
		m.host.Close(ctx)
	}
}

func (m *interactiveModel) reset() {
	m.state = stateSelectOp
	m.inputs = nil
	m.outputs = nil
	m.order = nil
	m.err = nil
}

func (m *interactiveModel) prepareInputs() {
	sig := m.sigs[m.selected]
	m.inputs = make([]textinput.Model, len(sig.Inputs))
	for i, p := range sig.Inputs {
		ti := textinput.New()
		ti.Placeholder = p.TypeName
		ti.Prompt = p.Name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) record(w packet.Wrapper) {
	if m.outputs == nil {
		return // left the output view
	}
	if _, ok := m.outputs[w.Port]; !ok {
		m.order = append(m.order, w.Port)
	}
	m.outputs[w.Port] = append(m.outputs[w.Port], strings.TrimPrefix(formatWrapper(w), w.Port+": "))
}

// startInvocation validates the entered inputs and starts the call. Each
// wrapper is delivered to Update as it arrives.
func (m *interactiveModel) startInvocation() tea.Cmd {
	m.state = stateShowOutput
	m.outputs = make(map[string][]string)
	m.order = nil
	m.err = nil

	if m.instance == nil {
		m.err = fmt.Errorf("module not loaded")
		return nil
	}

	sig := m.sigs[m.selected]
	items := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		items[i] = sig.Inputs[i].Name + "=" + input.Value()
	}
	inputs, err := packet.ParseMapKV(quotePlain(items))
	if err == nil {
		err = sig.CheckInputs(inputs)
	}
	if err != nil {
		m.err = err
		return nil
	}

	ctx := context.Background()
	s, err := m.instance.Invoke(ctx, sig.Name, inputs)
	if err != nil {
		m.err = err
		return nil
	}

	var next tea.Cmd
	next = func() tea.Msg {
		w, ok, err := s.Next(ctx)
		if err != nil || !ok {
			s.Close()
			return invocationDoneMsg{err: err}
		}
		return outputMsg{wrapper: w, next: next}
	}
	return next
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowOutput {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nq quits.", m.err))
	}

	if !m.loaded {
		return "Compiling " + m.filename + "..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Port Flow"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectOp:
		b.WriteString("Select an operation:\n\n")
		for i, sig := range m.sigs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + sig.String()))
			} else {
				b.WriteString("  " + m.formatSignature(sig))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter invoke • q quit"))

	case stateInputs:
		sig := m.sigs[m.selected]
		b.WriteString(fmt.Sprintf("Invoking %s\n\n", opStyle.Render(sig.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(sig.Inputs[i].TypeName))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next port • enter invoke • esc back"))

	case stateShowOutput:
		sig := m.sigs[m.selected]
		b.WriteString(fmt.Sprintf("Output of %s:\n\n", opStyle.Render(sig.Name)))
		for _, name := range m.order {
			b.WriteString(portStyle.Render(name))
			b.WriteString("\n")
			for _, line := range m.outputs[name] {
				style := resultStyle
				if name == packet.PortError {
					style = errorStyle
				}
				b.WriteString("  ")
				b.WriteString(style.Render(line))
				b.WriteString("\n")
			}
		}
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatSignature(sig *boundary.Signature) string {
	ports := func(specs []boundary.PortSpec) string {
		parts := make([]string, len(specs))
		for i, p := range specs {
			parts[i] = p.Name + ": " + typeStyle.Render(p.TypeName)
		}
		return strings.Join(parts, ", ")
	}
	return opStyle.Render(sig.Name) + "(" + ports(sig.Inputs) + ") -> (" + ports(sig.Outputs) + ")"
}

func runInteractive(filename string, cfg host.Config, sigs map[string]*boundary.Signature) error {
	p := tea.NewProgram(newInteractiveModel(filename, cfg, sigs), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
