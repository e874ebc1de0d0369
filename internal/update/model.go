package update

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/sandeepkv93/remindd/internal/cascade"
	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/notify"
	"github.com/sandeepkv93/remindd/internal/scheduler"
)

// Controller is the part of the scheduling engine the console drives.
type Controller interface {
	Tasks() *model.TaskSet
	PermissionBanner() string
	Tick(ctx context.Context) scheduler.TickReport
	Snooze(ctx context.Context, taskID string, minutes int) (model.Task, error)
	Complete(ctx context.Context, taskID string) (cascade.Result, error)
	Uncomplete(ctx context.Context, taskID string) (cascade.Result, error)
	SetDependencies(ctx context.Context, taskID string, deps []string) (model.Task, error)
	Interacted(ctx context.Context, taskID string)
}

type StatusBar struct {
	Text    string
	IsError bool
}

type GlobalKeyMap struct {
	Snooze   string
	Complete string
	Open     string
	Tick     string
	Help     string
	Quit     string
}

type AlertState string

const (
	AlertNew       AlertState = "new"
	AlertOpened    AlertState = "opened"
	AlertSnoozed   AlertState = "snoozed"
	AlertCompleted AlertState = "completed"
)

type AlertItem struct {
	notify.Alert
	State AlertState
}

type CommandPaletteState struct {
	Active bool
	Input  string
}

type KeyBinding struct {
	Key    string
	Action string
}

type helpKeyMap struct {
	short []key.Binding
	full  [][]key.Binding
}

func (k helpKeyMap) ShortHelp() []key.Binding  { return k.short }
func (k helpKeyMap) FullHelp() [][]key.Binding { return k.full }

type Model struct {
	Controller  Controller
	Alerts      []AlertItem
	Cursor      int
	Narratives  map[string]string
	Palette     CommandPaletteState
	HelpVisible bool
	Banner      string
	Status      StatusBar
	Keys        GlobalKeyMap
	Quitting    bool
	LastError   error

	cfg          RuntimeConfig
	ctx          context.Context
	alertCh      <-chan notify.Alert
	narrativeCh  <-chan NarrativeMsg
	commandInput textinput.Model
	taskProgress progress.Model
	helpModel    help.Model
}

type AlertMsg struct {
	Alert notify.Alert
}

type NarrativeMsg struct {
	TaskID    string
	Narrative string
}

type SetStatusMsg struct {
	Text    string
	IsError bool
}

type ClearStatusMsg struct{}

type AppErrorMsg struct {
	Err error
}

// NarrativeFeed carries completion narratives from background goroutines
// into the console. Push never blocks; narratives are dropped when the
// buffer is full.
type NarrativeFeed struct {
	ch chan NarrativeMsg
}

func NewNarrativeFeed(size int) *NarrativeFeed {
	if size <= 0 {
		size = 8
	}
	return &NarrativeFeed{ch: make(chan NarrativeMsg, size)}
}

func (f *NarrativeFeed) Push(taskID, narrative string) {
	select {
	case f.ch <- NarrativeMsg{TaskID: taskID, Narrative: narrative}:
	default:
	}
}

func (f *NarrativeFeed) C() <-chan NarrativeMsg {
	return f.ch
}

func NewModel(ctrl Controller, alerts <-chan notify.Alert, narratives <-chan NarrativeMsg, cfg RuntimeConfig) Model {
	if cfg.AlertHistory <= 0 {
		cfg.AlertHistory = DefaultRuntimeConfig().AlertHistory
	}
	if cfg.SnoozeMinutes <= 0 {
		cfg.SnoozeMinutes = DefaultRuntimeConfig().SnoozeMinutes
	}
	m := Model{
		Controller:  ctrl,
		Narratives:  make(map[string]string),
		Keys:        GlobalKeyMap{Snooze: "s", Complete: "c", Open: "enter", Tick: "t", Help: "?", Quit: "q"},
		cfg:         cfg,
		ctx:         context.Background(),
		alertCh:     alerts,
		narrativeCh: narratives,
	}
	m.initBubbleComponents()
	m.refreshBanner()
	return m
}

// WithContext sets the context engine calls are made with.
func (m Model) WithContext(ctx context.Context) Model {
	if ctx != nil {
		m.ctx = ctx
	}
	return m
}

func (m *Model) initBubbleComponents() {
	m.commandInput = textinput.New()
	m.commandInput.Prompt = "/"
	m.commandInput.CharLimit = 256
	m.commandInput.Width = 48

	m.taskProgress = progress.New(progress.WithDefaultGradient(), progress.WithWidth(30))
	m.helpModel = help.New()
}

func (m *Model) refreshBanner() {
	if m.Controller == nil {
		m.Banner = ""
		return
	}
	m.Banner = m.Controller.PermissionBanner()
}

func (m Model) selected() (AlertItem, bool) {
	if m.Cursor < 0 || m.Cursor >= len(m.Alerts) {
		return AlertItem{}, false
	}
	return m.Alerts[m.Cursor], true
}

func (m *Model) pushAlert(a notify.Alert) {
	m.Alerts = append(m.Alerts, AlertItem{Alert: a, State: AlertNew})
	if len(m.Alerts) > m.cfg.AlertHistory {
		m.Alerts = m.Alerts[len(m.Alerts)-m.cfg.AlertHistory:]
	}
	m.Cursor = len(m.Alerts) - 1
}

// markTask sets the state of every alert raised for taskID.
func (m *Model) markTask(taskID string, state AlertState) {
	for i := range m.Alerts {
		if m.Alerts[i].TaskID == taskID {
			m.Alerts[i].State = state
		}
	}
}

func (m Model) lookupTask(id string) (model.Task, bool) {
	if m.Controller == nil || m.Controller.Tasks() == nil {
		return model.Task{}, false
	}
	return m.Controller.Tasks().Get(id)
}

func formatFiredAt(t time.Time) string {
	if t.IsZero() {
		return "--:--"
	}
	return t.Local().Format("15:04")
}
