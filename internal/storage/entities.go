package storage

import "github.com/sandeepkv93/remindd/internal/model"

type TaskListFilter struct {
	Status       model.Status
	ParentTaskID string
	Limit        int
	Offset       int
}
