package bot

import (
	"fmt"
	"io"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/michaelbrown/artoo/internal/slack"
)

const watchSeparator = "----------------------\n"

// Watcher prints every message it sees as a YAML document. It is used in
// watch-only mode, where the bot never replies.
type Watcher struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWatcher creates a Watcher writing to w.
func NewWatcher(w io.Writer) *Watcher {
	return &Watcher{w: w}
}

// Print writes m to the watcher's output.
func (w *Watcher) Print(m slack.Message) error {
	data, err := yaml.Marshal(m.Fields())
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := io.WriteString(w.w, watchSeparator); err != nil {
		return err
	}
	_, err = w.w.Write(data)
	return err
}
