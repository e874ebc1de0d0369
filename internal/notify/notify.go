// Package notify delivers fired reminders to the user: a native desktop
// notification, an actionable in-app alert, an optional sound and, when
// configured, an event on the message bus.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sandeepkv93/remindd/internal/model"
)

var ErrPermissionDenied = errors.New("notify: permission denied")

type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

func (p Permission) IsValid() bool {
	switch p {
	case PermissionDefault, PermissionGranted, PermissionDenied:
		return true
	default:
		return false
	}
}

type Notification struct {
	TaskID             string
	Title              string
	Body               string
	Tag                string
	RequireInteraction bool
	Sound              string
	Kind               string
	MessageType        model.MessageType
	FiredAt            time.Time
}

type Action string

const (
	ActionSnooze   Action = "snooze"
	ActionComplete Action = "complete"
)

// SnoozeMinutes is the snooze length offered on every alert.
const SnoozeMinutes = 15

// Alert is the in-app form of a notification.
type Alert struct {
	Notification
	Actions []Action
}

// Sink is an outbound channel for notifications other than the in-app alert.
type Sink interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Availability is implemented by sinks that can tell whether the host
// supports them.
type Availability interface {
	Available() bool
}

type SoundPlayer interface {
	Play(sound string) error
}

type Options struct {
	Permission  Permission
	Sinks       []Sink
	Sound       SoundPlayer
	AlertBuffer int
	Logger      *zap.Logger
}

type Emitter struct {
	mu         sync.Mutex
	permission Permission
	sinks      []Sink
	sound      SoundPlayer
	alerts     chan Alert
	logger     *zap.Logger
	dropped    uint64
}

func NewEmitter(opts Options) *Emitter {
	if !opts.Permission.IsValid() {
		opts.Permission = PermissionDefault
	}
	if opts.AlertBuffer <= 0 {
		opts.AlertBuffer = 32
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Emitter{
		permission: opts.Permission,
		sinks:      opts.Sinks,
		sound:      opts.Sound,
		alerts:     make(chan Alert, opts.AlertBuffer),
		logger:     opts.Logger,
	}
}

// Alerts streams in-app alerts. Alerts are dropped when nobody reads.
func (e *Emitter) Alerts() <-chan Alert {
	return e.alerts
}

func (e *Emitter) Dropped() uint64 {
	return atomic.LoadUint64(&e.dropped)
}

func (e *Emitter) Permission() Permission {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.permission
}

// RequestPermission resolves a default permission. It is granted when at
// least one sink is usable on this host, denied otherwise. A decided
// permission is returned unchanged.
func (e *Emitter) RequestPermission() Permission {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.permission != PermissionDefault {
		return e.permission
	}
	e.permission = PermissionDenied
	for _, s := range e.sinks {
		if a, ok := s.(Availability); ok && !a.Available() {
			continue
		}
		e.permission = PermissionGranted
		break
	}
	return e.permission
}

// PermissionBanner is the passive indicator shown when notifications cannot
// be delivered. It is empty while permission is granted.
func (e *Emitter) PermissionBanner() string {
	switch e.Permission() {
	case PermissionDenied:
		return "Notifications are disabled. Reminders will not be shown."
	case PermissionDefault:
		return "Notifications have not been enabled yet."
	default:
		return ""
	}
}

// Emit delivers n to every sink and the in-app alert stream. Sink failures
// are joined into the returned error after every sink has been tried.
func (e *Emitter) Emit(ctx context.Context, n Notification) error {
	perm := e.Permission()
	if perm == PermissionDefault {
		perm = e.RequestPermission()
	}
	if perm == PermissionDenied {
		return ErrPermissionDenied
	}

	var errs []error
	for _, s := range e.sinks {
		if err := s.Send(ctx, n); err != nil {
			e.logger.Warn("notification sink failed", zap.String("sink", s.Name()), zap.String("task_id", n.TaskID), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}

	select {
	case e.alerts <- Alert{Notification: n, Actions: []Action{ActionSnooze, ActionComplete}}:
	default:
		atomic.AddUint64(&e.dropped, 1)
	}

	if n.Sound != "" && e.sound != nil {
		if err := e.sound.Play(n.Sound); err != nil {
			e.logger.Debug("sound failed", zap.String("sound", n.Sound), zap.Error(err))
		}
	}
	return errors.Join(errs...)
}
