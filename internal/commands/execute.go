package commands

import "fmt"

type Result struct {
	Message string
}

type Handlers struct {
	Snooze     func(SnoozeArgs) (Result, error)
	Complete   func(TaskArgs) (Result, error)
	Uncomplete func(TaskArgs) (Result, error)
	Deps       func(DepsArgs) (Result, error)
	Tick       func() (Result, error)
}

func Execute(cmd Command, handlers Handlers) (Result, error) {
	switch cmd.Type {
	case TypeSnooze:
		if handlers.Snooze == nil {
			return Result{}, &CommandError{Code: ErrCodeHandlerMissing, Message: "snooze handler not configured"}
		}
		return handlers.Snooze(*cmd.Snooze)
	case TypeComplete:
		if handlers.Complete == nil {
			return Result{}, &CommandError{Code: ErrCodeHandlerMissing, Message: "complete handler not configured"}
		}
		return handlers.Complete(*cmd.Task)
	case TypeUncomplete:
		if handlers.Uncomplete == nil {
			return Result{}, &CommandError{Code: ErrCodeHandlerMissing, Message: "uncomplete handler not configured"}
		}
		return handlers.Uncomplete(*cmd.Task)
	case TypeDeps:
		if handlers.Deps == nil {
			return Result{}, &CommandError{Code: ErrCodeHandlerMissing, Message: "deps handler not configured"}
		}
		return handlers.Deps(*cmd.Deps)
	case TypeTick:
		if handlers.Tick == nil {
			return Result{}, &CommandError{Code: ErrCodeHandlerMissing, Message: "tick handler not configured"}
		}
		return handlers.Tick()
	default:
		return Result{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unknown command type: %s", cmd.Type)}
	}
}
