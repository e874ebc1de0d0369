package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// DesktopSink shows native notifications through notify-send on Linux and
// osascript on macOS.
type DesktopSink struct {
	goos string
	run  func(ctx context.Context, name string, args ...string) error
	look func(name string) (string, error)
}

func NewDesktopSink() *DesktopSink {
	return &DesktopSink{
		goos: runtime.GOOS,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
		look: exec.LookPath,
	}
}

func (d *DesktopSink) Name() string { return "desktop" }

func (d *DesktopSink) Available() bool {
	bin := d.binary()
	if bin == "" {
		return false
	}
	_, err := d.look(bin)
	return err == nil
}

func (d *DesktopSink) Send(ctx context.Context, n Notification) error {
	bin := d.binary()
	if bin == "" {
		return nil
	}
	return d.run(ctx, bin, d.args(n)...)
}

func (d *DesktopSink) binary() string {
	switch d.goos {
	case "linux":
		return "notify-send"
	case "darwin":
		return "osascript"
	default:
		return ""
	}
}

func (d *DesktopSink) args(n Notification) []string {
	if d.goos == "darwin" {
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, escapeAppleScript(n.Body), escapeAppleScript(n.Title))
		if n.Sound != "" {
			script += fmt.Sprintf(` sound name "%s"`, escapeAppleScript(n.Sound))
		}
		return []string{"-e", script}
	}
	args := []string{"--app-name=remindd"}
	if n.RequireInteraction {
		args = append(args, "--urgency=critical")
	}
	if n.Tag != "" {
		args = append(args, "--hint=string:x-canonical-private-synchronous:"+n.Tag)
	}
	return append(args, n.Title, n.Body)
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
