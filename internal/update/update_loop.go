package update

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sandeepkv93/remindd/internal/views"
)

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForAlertCmd(m.alertCh), waitForNarrativeCmd(m.narrativeCh))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		if m.Palette.Active {
			return m.handlePaletteKey(typed), nil
		}
		return m.handleKey(typed)
	case AlertMsg:
		m.pushAlert(typed.Alert)
		m.refreshBanner()
		m.Status = StatusBar{Text: fmt.Sprintf("reminder: %s", typed.Alert.Title), IsError: false}
		return m, waitForAlertCmd(m.alertCh)
	case NarrativeMsg:
		if strings.TrimSpace(typed.Narrative) != "" {
			m.Narratives[typed.TaskID] = typed.Narrative
		}
		return m, waitForNarrativeCmd(m.narrativeCh)
	case SetStatusMsg:
		m.Status = StatusBar{Text: typed.Text, IsError: typed.IsError}
		return m, nil
	case ClearStatusMsg:
		m.Status = StatusBar{}
		return m, nil
	case AppErrorMsg:
		m.LastError = typed.Err
		if typed.Err != nil {
			m.Status = StatusBar{Text: typed.Err.Error(), IsError: true}
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "/":
		m.Palette.Active = true
		m.Palette.Input = ""
		m.commandInput.Focus()
		m.commandInput.SetValue("")
		m.Status = StatusBar{Text: "command palette active", IsError: false}
		return m, nil
	case "j", "down":
		if m.Cursor < len(m.Alerts)-1 {
			m.Cursor++
		}
		return m, nil
	case "k", "up":
		if m.Cursor > 0 {
			m.Cursor--
		}
		return m, nil
	case m.Keys.Help:
		m.HelpVisible = !m.HelpVisible
		return m, nil
	case m.Keys.Tick:
		m.Status = StatusBar{Text: m.runTick(), IsError: false}
		m.refreshBanner()
		return m, nil
	case m.Keys.Snooze, m.Keys.Complete, m.Keys.Open:
		return m.actOnSelected(msg.String()), nil
	case "ctrl+c", m.Keys.Quit:
		m.Quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) actOnSelected(k string) Model {
	item, ok := m.selected()
	if !ok {
		m.Status = StatusBar{Text: "no reminder selected", IsError: true}
		return m
	}
	var (
		text string
		err  error
	)
	switch k {
	case m.Keys.Snooze:
		text, err = m.snoozeTask(item.TaskID, m.cfg.SnoozeMinutes)
	case m.Keys.Complete:
		text, err = m.completeTask(item.TaskID)
	case m.Keys.Open:
		if m.Controller == nil {
			err = errNoController
			break
		}
		m.Controller.Interacted(m.ctx, item.TaskID)
		if item.State == AlertNew {
			m.Alerts[m.Cursor].State = AlertOpened
		}
		text = fmt.Sprintf("opened %s", item.Title)
	}
	if err != nil {
		m.LastError = err
		m.Status = StatusBar{Text: err.Error(), IsError: true}
		return m
	}
	m.Status = StatusBar{Text: text, IsError: false}
	return m
}

func (m Model) View() string {
	status := ""
	if m.Status.Text != "" {
		if m.Status.IsError {
			status = fmt.Sprintf("status: error: %s", m.Status.Text)
		} else {
			status = fmt.Sprintf("status: %s", m.Status.Text)
		}
	}
	right := m.renderDetail()
	if m.Palette.Active {
		right = strings.TrimSpace(views.RenderCommandPalette(true, m.commandInput.View()) + "\n\n" + right)
	}
	if m.HelpVisible {
		right = strings.TrimSpace(right + "\n\n" + m.renderHelpView())
	}
	return views.RenderApp(views.AppData{
		Header:       fmt.Sprintf("remindd | alerts: %d", len(m.Alerts)),
		Banner:       m.Banner,
		LeftPane:     m.renderAlertList(),
		RightPane:    right,
		StatusLine:   status,
		Notification: m.renderNarrative(),
		Footer:       fmt.Sprintf("keys: j/k move | %s snooze %dm | %s complete | %s open | %s tick | / cmd | %s help | %s quit", m.Keys.Snooze, m.cfg.SnoozeMinutes, m.Keys.Complete, m.Keys.Open, m.Keys.Tick, m.Keys.Help, m.Keys.Quit),
	})
}

func (m Model) renderAlertList() string {
	items := make([]views.AlertRowData, 0, len(m.Alerts))
	for i, a := range m.Alerts {
		items = append(items, views.AlertRowData{
			Selected: i == m.Cursor,
			Time:     formatFiredAt(a.FiredAt),
			Kind:     a.Kind,
			Title:    a.Title,
			Body:     a.Body,
			Urgent:   a.RequireInteraction,
			State:    stateLabel(a.State),
		})
	}
	return views.RenderAlertList(items)
}

func (m Model) renderDetail() string {
	item, ok := m.selected()
	if !ok {
		return views.RenderTaskDetail(views.TaskDetailData{})
	}
	data := views.TaskDetailData{
		TaskID: item.TaskID,
		Title:  item.Title,
		Body:   item.Body,
		Kind:   item.Kind,
	}
	if task, found := m.lookupTask(item.TaskID); found {
		data.Found = true
		data.Status = string(task.Status)
		data.Priority = string(task.Priority)
		data.ProgressPct = int(progressFraction(task) * 100)
		data.ProgressView = m.taskProgress.ViewAs(progressFraction(task))
		data.Dependencies = task.Dependencies
		if task.SnoozeUntil != nil {
			data.SnoozeUntil = formatFiredAt(*task.SnoozeUntil)
		}
	}
	return views.RenderTaskDetail(data)
}

func (m Model) renderNarrative() string {
	item, ok := m.selected()
	if !ok {
		return ""
	}
	md, ok := m.Narratives[item.TaskID]
	if !ok {
		return ""
	}
	if m.cfg.RenderNarratives {
		return views.RenderMarkdown(md)
	}
	return md
}

func (m Model) renderHelpView() string {
	bindings := m.helpBindings()
	var plain []string
	for _, kb := range m.keyBindings() {
		plain = append(plain, fmt.Sprintf("- %s: %s", kb.Key, kb.Action))
	}
	return views.RenderHelpPanel(views.HelpPanelData{
		Bindings: plain,
		HelpView: m.helpModel.View(helpKeyMap{
			short: bindings,
			full:  [][]key.Binding{bindings},
		}),
	})
}

func (m Model) keyBindings() []KeyBinding {
	return []KeyBinding{
		{Key: "j/k", Action: "select reminder"},
		{Key: m.Keys.Snooze, Action: fmt.Sprintf("snooze %d minutes", m.cfg.SnoozeMinutes)},
		{Key: m.Keys.Complete, Action: "complete task"},
		{Key: m.Keys.Open, Action: "open reminder"},
		{Key: m.Keys.Tick, Action: "evaluate now"},
		{Key: "/", Action: "open command palette"},
		{Key: m.Keys.Help, Action: "toggle help panel"},
		{Key: m.Keys.Quit, Action: "quit"},
	}
}

func (m Model) helpBindings() []key.Binding {
	out := make([]key.Binding, 0, len(m.keyBindings()))
	for _, kb := range m.keyBindings() {
		out = append(out, key.NewBinding(key.WithKeys(kb.Key), key.WithHelp(kb.Key, kb.Action)))
	}
	return out
}
