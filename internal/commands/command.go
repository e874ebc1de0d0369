package commands

import (
	"fmt"
	"strconv"
	"strings"
)

type Type string

const (
	TypeSnooze     Type = "snooze"
	TypeComplete   Type = "complete"
	TypeUncomplete Type = "uncomplete"
	TypeDeps       Type = "deps"
	TypeTick       Type = "tick"
)

// DefaultSnoozeMinutes applies when snooze is given no duration.
const DefaultSnoozeMinutes = 15

type ErrorCode string

const (
	ErrCodeEmptyInput      ErrorCode = "empty_input"
	ErrCodeUnknownCommand  ErrorCode = "unknown_command"
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeHandlerMissing  ErrorCode = "handler_missing"
)

type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type SnoozeArgs struct {
	TaskID  string
	Minutes int
}

type TaskArgs struct {
	TaskID string
}

type DepsArgs struct {
	TaskID       string
	Dependencies []string
}

type Command struct {
	Type   Type
	Raw    string
	Snooze *SnoozeArgs
	Task   *TaskArgs
	Deps   *DepsArgs
}

func Parse(input string) (Command, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}
	if strings.HasPrefix(raw, "/") {
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "/"))
	}
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}

	parts := strings.Fields(raw)
	head := strings.ToLower(parts[0])
	args := parts[1:]

	switch Type(head) {
	case TypeSnooze:
		return parseSnooze(input, args)
	case TypeComplete, TypeUncomplete:
		return parseTask(input, Type(head), args)
	case TypeDeps:
		return parseDeps(input, args)
	case TypeTick:
		return Command{Type: TypeTick, Raw: input}, nil
	default:
		return Command{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unsupported command: %s", head)}
	}
}

func parseSnooze(raw string, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "snooze requires a task id"}
	}
	minutes := DefaultSnoozeMinutes
	if len(args) > 1 {
		n, err := parseMinutes(strings.Join(args[1:], ""))
		if err != nil {
			return Command{}, err
		}
		minutes = n
	}
	return Command{Type: TypeSnooze, Raw: raw, Snooze: &SnoozeArgs{TaskID: args[0], Minutes: minutes}}, nil
}

// parseMinutes accepts "30", "30m" and "2h".
func parseMinutes(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	mult := 1
	switch {
	case strings.HasSuffix(s, "h"):
		mult = 60
		s = strings.TrimSuffix(s, "h")
	case strings.HasSuffix(s, "min"):
		s = strings.TrimSuffix(s, "min")
	case strings.HasSuffix(s, "m"):
		s = strings.TrimSuffix(s, "m")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, &CommandError{Code: ErrCodeInvalidArgument, Message: "snooze duration must be a positive number of minutes"}
	}
	return n * mult, nil
}

func parseTask(raw string, typ Type, args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("%s requires exactly one task id", typ)}
	}
	return Command{Type: typ, Raw: raw, Task: &TaskArgs{TaskID: args[0]}}, nil
}

// parseDeps reads "deps <id> a,b c". "none" clears the dependency set.
func parseDeps(raw string, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "deps requires a task id"}
	}
	deps := make([]string, 0)
	for _, arg := range args[1:] {
		for _, d := range strings.Split(arg, ",") {
			d = strings.TrimSpace(d)
			if d == "" || strings.EqualFold(d, "none") {
				continue
			}
			deps = append(deps, d)
		}
	}
	if len(args) == 1 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "deps requires dependency ids or none"}
	}
	return Command{Type: TypeDeps, Raw: raw, Deps: &DepsArgs{TaskID: args[0], Dependencies: deps}}, nil
}
