package notify

import (
	"io"
	"strings"
)

// BellPlayer rings the terminal bell. Named sounds other than "none" all map
// to the bell; the desktop sink carries the name for hosts that can play it.
type BellPlayer struct {
	W io.Writer
}

func (b BellPlayer) Play(sound string) error {
	if b.W == nil || strings.EqualFold(strings.TrimSpace(sound), "none") {
		return nil
	}
	_, err := io.WriteString(b.W, "\a")
	return err
}
