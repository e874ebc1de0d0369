package storage

import (
	"context"
	"errors"

	"github.com/sandeepkv93/remindd/internal/model"
)

var ErrNotFound = errors.New("storage: not found")

// DefaultUserID owns the settings row of a single-user install.
const DefaultUserID = "local"

type Repository interface {
	CreateTask(ctx context.Context, in model.Task) error
	GetTask(ctx context.Context, id string) (model.Task, error)
	UpdateTask(ctx context.Context, id string, patch model.TaskPatch) error
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, filter TaskListFilter) ([]model.Task, error)

	CreateRule(ctx context.Context, in model.NotificationRule) error
	ListRules(ctx context.Context) ([]model.NotificationRule, error)

	RecordBehavior(ctx context.Context, in model.Behavior) error
	ListRecentBehavior(ctx context.Context, limit int) ([]model.Behavior, error)

	CreateCompletionRecord(ctx context.Context, in model.CompletionRecord) error
	DeleteMostRecentCompletionRecord(ctx context.Context, taskID string) error
	ListCompletionRecords(ctx context.Context, taskID string) ([]model.CompletionRecord, error)
	AttachNarrative(ctx context.Context, recordID, narrative string) error

	GetCurrentUser(ctx context.Context) (model.UserSettings, error)
	SaveUserSettings(ctx context.Context, in model.UserSettings) error
}
