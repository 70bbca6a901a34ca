// Package bot runs the poll loop: it reads message batches from Slack,
// hands messages that mention the bot to the dispatcher, and posts the
// replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/michaelbrown/artoo/internal/dispatch"
	"github.com/michaelbrown/artoo/internal/slack"
	"github.com/michaelbrown/artoo/internal/storage"
)

const defaultReconnectDelay = 5 * time.Second

// Source yields batches of messages. Next returns whatever arrived since
// the previous call, possibly nothing; an error means the source is dead.
type Source interface {
	Next(ctx context.Context) ([]slack.Message, error)
	Close() error
}

// Connector opens a new Source.
type Connector interface {
	Connect(ctx context.Context) (Source, error)
}

// ConnectFunc adapts a function to Connector.
type ConnectFunc func(ctx context.Context) (Source, error)

func (f ConnectFunc) Connect(ctx context.Context) (Source, error) { return f(ctx) }

// Poster sends a reply to a channel.
type Poster interface {
	PostMessage(ctx context.Context, channel, text string) error
}

// Tagger renders a mention of a user for a reply.
type Tagger interface {
	UserTag(ctx context.Context, userID string) string
}

// Options wires a Bot.
type Options struct {
	Connector  Connector
	Dispatcher *dispatch.Dispatcher
	Poster     Poster
	Tagger     Tagger        // nil tags users by raw ID
	Ledger     storage.Store // nil disables duplicate detection
	Watcher    *Watcher      // non-nil switches to watch-only mode

	PollDelay      time.Duration
	ReconnectDelay time.Duration // defaults to 5s
	Retention      time.Duration // ledger entries older than this are pruned at startup
}

// Bot is the poll loop.
type Bot struct {
	opts   Options
	stats  *Stats
	logger *zap.Logger
}

// New creates a Bot.
func New(opts Options, logger *zap.Logger) *Bot {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	return &Bot{
		opts:   opts,
		stats:  newStats(),
		logger: logger.With(zap.String("component", "bot")),
	}
}

// Stats returns the live counters of the bot.
func (b *Bot) Stats() *Stats { return b.stats }

// Run polls until ctx is cancelled, reconnecting whenever the source dies.
// Failing to connect the first time is returned as an error; cancellation
// returns nil.
func (b *Bot) Run(ctx context.Context) error {
	b.prune(ctx)

	first := true
	for {
		src, err := b.opts.Connector.Connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if first {
				return fmt.Errorf("connecting to slack: %w", err)
			}
			b.logger.Warn("reconnect failed", zap.Error(err), zap.Duration("retry_in", b.opts.ReconnectDelay))
		} else {
			first = false
			b.stats.connected(true)
			err = b.poll(ctx, src)
			b.stats.connected(false)
			if cerr := src.Close(); cerr != nil {
				b.logger.Debug("closing source", zap.Error(cerr))
			}
			if ctx.Err() != nil {
				return nil
			}
			b.stats.Reconnects.Add(1)
			b.logger.Warn("message source lost, reconnecting", zap.Error(err),
				zap.Duration("retry_in", b.opts.ReconnectDelay))
		}

		if !sleep(ctx, b.opts.ReconnectDelay) {
			return nil
		}
	}
}

func (b *Bot) poll(ctx context.Context, src Source) error {
	for {
		batch, err := src.Next(ctx)
		if err != nil {
			return err
		}
		for _, m := range batch {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.handle(ctx, m)
		}
		if !sleep(ctx, b.opts.PollDelay) {
			return ctx.Err()
		}
	}
}

// handle processes one message. Errors and panics are logged and never
// stop the loop.
func (b *Bot) handle(ctx context.Context, m slack.Message) {
	b.stats.Seen.Add(1)
	defer func() {
		if r := recover(); r != nil {
			b.stats.Panics.Add(1)
			b.logger.Error("panic while handling message", zap.Any("panic", r),
				zap.String("channel", m.Channel), zap.String("ts", m.TS))
		}
	}()

	if b.opts.Watcher != nil {
		if err := b.opts.Watcher.Print(m); err != nil {
			b.logger.Warn("printing message", zap.Error(err))
		}
		return
	}

	parser := b.opts.Dispatcher.Parser()
	if m.Subtype == "bot_message" || (m.User != "" && m.User == parser.Identity()) {
		return
	}
	if m.Text == "" || !parser.Tagged(m.Text) {
		return
	}
	b.stats.Tagged.Add(1)

	logger := b.logger.With(zap.String("channel", m.Channel), zap.String("ts", m.TS), zap.String("user", m.User))
	if !b.claim(ctx, m, logger) {
		b.stats.Duplicates.Add(1)
		logger.Debug("message already handled, skipping")
		return
	}

	out, err := b.opts.Dispatcher.Dispatch(ctx, dispatch.Request{
		Text:    m.Text,
		FileURL: m.FileURL(),
		UserTag: b.userTag(ctx, m.User),
	})
	if err != nil {
		logger.Info("dispatch interrupted", zap.Error(err))
		return
	}
	b.stats.record(out)
	logger.Info("message handled", zap.String("instruction", string(out.Instruction)), zap.Stringer("state", out.State))

	if m.Channel == "" {
		logger.Warn("message has no channel, reply dropped")
	} else if err := b.opts.Poster.PostMessage(ctx, m.Channel, out.Reply); err != nil {
		b.stats.PostErrors.Add(1)
		logger.Error("posting reply", zap.Error(err))
	}

	b.complete(ctx, m, out, logger)
}

func (b *Bot) userTag(ctx context.Context, user string) string {
	if user == "" {
		return ""
	}
	if b.opts.Tagger == nil {
		return "<@" + user + ">"
	}
	return b.opts.Tagger.UserTag(ctx, user)
}

// claim reports whether m should be handled. Ledger failures never block
// a message.
func (b *Bot) claim(ctx context.Context, m slack.Message, logger *zap.Logger) bool {
	if b.opts.Ledger == nil || m.Channel == "" || m.TS == "" {
		return true
	}
	ok, err := b.opts.Ledger.Claim(ctx, m.Channel, m.TS)
	if err != nil {
		logger.Warn("ledger claim failed, handling anyway", zap.Error(err))
		return true
	}
	return ok
}

func (b *Bot) complete(ctx context.Context, m slack.Message, out dispatch.Outcome, logger *zap.Logger) {
	if b.opts.Ledger == nil || m.Channel == "" || m.TS == "" {
		return
	}
	state := out.State.String()
	if out.Failed {
		state = "failed"
	}
	err := b.opts.Ledger.Complete(ctx, storage.Handled{
		Channel:     m.Channel,
		TS:          m.TS,
		Instruction: string(out.Instruction),
		State:       state,
		HandledAt:   time.Now(),
	})
	if err != nil {
		logger.Warn("ledger update failed", zap.Error(err))
	}
}

func (b *Bot) prune(ctx context.Context) {
	if b.opts.Ledger == nil || b.opts.Retention <= 0 {
		return
	}
	n, err := b.opts.Ledger.Prune(ctx, time.Now().Add(-b.opts.Retention))
	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Warn("pruning ledger", zap.Error(err))
		return
	}
	if n > 0 {
		b.logger.Info("pruned ledger", zap.Int64("entries", n))
	}
}

// sleep waits for d or until ctx is done; it reports false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
