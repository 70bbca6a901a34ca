package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/michaelbrown/artoo/internal/bot"
	"github.com/michaelbrown/artoo/internal/payload"
	"github.com/michaelbrown/artoo/internal/slack"
)

const (
	consolePrompt       = "\033[36myou>\033[0m "
	consoleContinuation = "\033[36m...>\033[0m "
	consoleChannel      = "console"
)

// console feeds lines typed in the terminal to the bot as messages and
// prints its replies. A message stays open while it has an unclosed code
// fence, so multi-line code can be typed as-is.
type console struct {
	rl       *readline.Instance
	tag      string
	mention  *regexp.Regexp
	waitDone bool
	stop     context.CancelFunc
	stats    *bot.Stats

	msgs    chan slack.Message
	replied chan struct{}
	once    sync.Once
}

func newConsole(name, identity string, waitForReplies bool, stop context.CancelFunc) (*console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          consolePrompt,
		HistoryFile:     filepath.Join(os.TempDir(), "artoo_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("readline: %w", err)
	}

	fmt.Fprintf(rl.Stdout(), "Artoo console. Type code instructions such as:\n  python ```print('hello')```\nType /help for commands, /quit to exit\n\n")

	return &console{
		rl:       rl,
		tag:      "<@" + identity + ">",
		mention:  regexp.MustCompile(`(^|[^<\w])@` + regexp.QuoteMeta(name) + `\b`),
		waitDone: waitForReplies,
		stop:     stop,
		msgs:     make(chan slack.Message),
		replied:  make(chan struct{}, 1),
	}, nil
}

// Connect starts reading the terminal. The console can only be connected
// once; it is gone after the user quits.
func (c *console) Connect(ctx context.Context) (bot.Source, error) {
	started := false
	c.once.Do(func() {
		started = true
		go c.read(ctx)
	})
	if !started {
		return nil, io.EOF
	}
	return c, nil
}

// Next returns the messages typed since the previous call.
func (c *console) Next(ctx context.Context) ([]slack.Message, error) {
	var batch []slack.Message
	for {
		select {
		case <-ctx.Done():
			return batch, ctx.Err()
		case m, ok := <-c.msgs:
			if !ok {
				return batch, io.EOF
			}
			batch = append(batch, m)
		default:
			return batch, nil
		}
	}
}

// PostMessage prints a reply.
func (c *console) PostMessage(_ context.Context, _ string, text string) error {
	_, err := fmt.Fprintf(c.rl.Stdout(), "\n\033[32martoo>\033[0m %s\n\n", text)
	select {
	case c.replied <- struct{}{}:
	default:
	}
	return err
}

func (c *console) Close() error {
	return c.rl.Close()
}

func (c *console) read(ctx context.Context) {
	defer close(c.msgs)
	defer c.stop()

	var lines []string
	seq := 0
	for {
		line, err := c.rl.Readline()
		if err != nil {
			if !errors.Is(err, readline.ErrInterrupt) && !errors.Is(err, io.EOF) {
				fmt.Fprintf(c.rl.Stderr(), "readline: %v\n", err)
			}
			return
		}

		if len(lines) == 0 && strings.HasPrefix(strings.TrimSpace(line), "/") {
			if c.command(strings.TrimSpace(line)) {
				return
			}
			continue
		}

		lines = append(lines, line)
		text := strings.Join(lines, "\n")
		if strings.Count(text, payload.Fence)%2 == 1 {
			c.rl.SetPrompt(consoleContinuation)
			continue
		}
		c.rl.SetPrompt(consolePrompt)
		lines = nil
		if strings.TrimSpace(text) == "" {
			continue
		}

		seq++
		m := slack.Message{
			Type:    "message",
			Channel: consoleChannel,
			TS:      strconv.Itoa(seq),
			Text:    c.address(text),
		}
		select {
		case c.msgs <- m:
		case <-ctx.Done():
			return
		}
		if c.waitDone {
			select {
			case <-c.replied:
			case <-ctx.Done():
				return
			}
		}
	}
}

// address turns "@name" into the bot's mention tag and mentions the bot
// when the text does not.
func (c *console) address(text string) string {
	text = c.mention.ReplaceAllString(text, "${1}"+c.tag)
	if !strings.Contains(text, c.tag) {
		text = c.tag + " " + text
	}
	return text
}

// command runs a slash command and reports whether the console should exit.
func (c *console) command(input string) bool {
	out := c.rl.Stdout()
	switch strings.ToLower(strings.Fields(input)[0]) {
	case "/quit", "/exit", "/q":
		fmt.Fprintln(out, "Goodbye!")
		return true
	case "/stats":
		if c.stats != nil {
			data, _ := json.MarshalIndent(c.stats.Snapshot(), "", "  ")
			fmt.Fprintln(out, string(data))
		}
	case "/help":
		fmt.Fprintln(out, "Commands:")
		fmt.Fprintln(out, "  /help   - Show this help")
		fmt.Fprintln(out, "  /stats  - Show message counters")
		fmt.Fprintln(out, "  /quit   - Exit")
		fmt.Fprintln(out, "Anything else is sent to the bot; lines are joined until code fences are balanced.")
	default:
		fmt.Fprintf(out, "Unknown command: %s (try /help)\n", input)
	}
	fmt.Fprintln(out)
	return false
}
