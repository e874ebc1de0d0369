package update

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sandeepkv93/remindd/internal/commands"
)

func (m Model) handlePaletteKey(msg tea.KeyMsg) Model {
	switch msg.String() {
	case "esc":
		m.Palette.Active = false
		m.Palette.Input = ""
		m.commandInput.SetValue("")
		m.commandInput.Blur()
		m.Status = StatusBar{Text: "command palette closed", IsError: false}
	case "enter":
		m.Palette.Input = m.commandInput.Value()
		m = m.executePaletteCommand()
	default:
		if msg.Type == tea.KeyRunes {
			m.commandInput.SetValue(m.commandInput.Value() + string(msg.Runes))
			m.Palette.Input = m.commandInput.Value()
			return m
		}
		var cmd tea.Cmd
		m.commandInput, cmd = m.commandInput.Update(msg)
		_ = cmd
		m.Palette.Input = m.commandInput.Value()
	}
	return m
}

func (m Model) executePaletteCommand() Model {
	raw := strings.TrimSpace(m.Palette.Input)
	cmd, err := commands.Parse(raw)
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
		m.closePalette()
		return m
	}

	res, err := commands.Execute(cmd, commands.Handlers{
		Snooze: func(s commands.SnoozeArgs) (commands.Result, error) {
			msg, err := m.snoozeTask(s.TaskID, s.Minutes)
			return commands.Result{Message: msg}, err
		},
		Complete: func(a commands.TaskArgs) (commands.Result, error) {
			msg, err := m.completeTask(a.TaskID)
			return commands.Result{Message: msg}, err
		},
		Uncomplete: func(a commands.TaskArgs) (commands.Result, error) {
			msg, err := m.uncompleteTask(a.TaskID)
			return commands.Result{Message: msg}, err
		},
		Deps: func(d commands.DepsArgs) (commands.Result, error) {
			if m.Controller == nil {
				return commands.Result{}, errNoController
			}
			task, err := m.Controller.SetDependencies(m.ctx, d.TaskID, d.Dependencies)
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("%s now depends on %d task(s), status %s", task.Title, len(task.Dependencies), task.Status)}, nil
		},
		Tick: func() (commands.Result, error) {
			return commands.Result{Message: m.runTick()}, nil
		},
	})
	if err != nil {
		m.LastError = err
		m.Status = StatusBar{Text: err.Error(), IsError: true}
	} else {
		m.Status = StatusBar{Text: res.Message, IsError: false}
	}
	m.refreshBanner()
	m.closePalette()
	return m
}

func (m *Model) closePalette() {
	m.Palette.Active = false
	m.Palette.Input = ""
	m.commandInput.SetValue("")
	m.commandInput.Blur()
}
