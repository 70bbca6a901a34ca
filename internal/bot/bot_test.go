package bot

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelbrown/artoo/internal/dispatch"
	"github.com/michaelbrown/artoo/internal/payload"
	"github.com/michaelbrown/artoo/internal/sandbox"
	"github.com/michaelbrown/artoo/internal/slack"
	"github.com/michaelbrown/artoo/internal/storage/sqlite"
)

type fakeSource struct {
	mu      sync.Mutex
	batches [][]slack.Message
	err     error
}

func (s *fakeSource) Next(context.Context) ([]slack.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.batches) > 0 {
		b := s.batches[0]
		s.batches = s.batches[1:]
		return b, nil
	}
	return nil, s.err
}

func (s *fakeSource) Close() error { return nil }

func connectSequence(sources ...*fakeSource) Connector {
	var mu sync.Mutex
	return ConnectFunc(func(context.Context) (Source, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(sources) == 0 {
			return nil, errors.New("no more sources")
		}
		s := sources[0]
		sources = sources[1:]
		return s, nil
	})
}

type post struct {
	channel string
	text    string
}

type fakePoster struct {
	posts   chan post
	panicOn string
}

func newFakePoster() *fakePoster { return &fakePoster{posts: make(chan post, 16)} }

func (p *fakePoster) PostMessage(_ context.Context, channel, text string) error {
	if p.panicOn != "" && channel == p.panicOn {
		panic("poster exploded")
	}
	p.posts <- post{channel, text}
	return nil
}

type echoExecutor struct {
	mu    sync.Mutex
	calls int
}

func (e *echoExecutor) Execute(_ context.Context, _ string, source string) (sandbox.Result, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return sandbox.Result{Stdout: source, Status: sandbox.Exited(0)}, nil
}

type mapTagger map[string]string

func (m mapTagger) UserTag(_ context.Context, id string) string {
	if name, ok := m[id]; ok {
		return "<@" + name + ">"
	}
	return "<@" + id + ">"
}

func testDispatcher(t *testing.T, exec dispatch.Executor) *dispatch.Dispatcher {
	t.Helper()
	logger := zaptest.NewLogger(t)
	resolver := payload.NewResolver(nil, logger)
	table, err := dispatch.NewHandlerTable(map[dispatch.Instruction]dispatch.Handler{
		"python": dispatch.NewCodeHandler("python", exec, resolver),
		"help":   dispatch.HelpHandler,
	})
	require.NoError(t, err)
	return dispatch.New("artoo", dispatch.NewParser("U42"), table, logger)
}

// runBot starts b and returns a stop function that cancels it and returns
// Run's error.
func runBot(t *testing.T, b *Bot) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	var once sync.Once
	var err error
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case err = <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("bot did not stop")
			}
		})
		return err
	}
	t.Cleanup(func() { stop() })
	return stop
}

func nextPost(t *testing.T, p *fakePoster) post {
	t.Helper()
	select {
	case got := <-p.posts:
		return got
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a reply")
		return post{}
	}
}

func assertNoPost(t *testing.T, p *fakePoster) {
	t.Helper()
	select {
	case got := <-p.posts:
		t.Fatalf("unexpected reply: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func msg(channel, ts, user, text string) slack.Message {
	return slack.Message{Type: "message", Channel: channel, TS: ts, User: user, Text: text}
}

func TestBotRepliesToTaggedMessages(t *testing.T) {
	exec := &echoExecutor{}
	poster := newFakePoster()
	src := &fakeSource{batches: [][]slack.Message{{
		msg("C1", "1.0", "U1", "just chatting"),
		{Type: "hello"},
		msg("C1", "2.0", "U1", "<@U42> python\n```print(1)```"),
		msg("C2", "3.0", "U2", "<@U42> help"),
	}}}

	b := New(Options{
		Connector:  connectSequence(src),
		Dispatcher: testDispatcher(t, exec),
		Poster:     poster,
		Tagger:     mapTagger{"U1": "luke"},
		PollDelay:  time.Millisecond,
	}, zaptest.NewLogger(t))
	stop := runBot(t, b)

	first := nextPost(t, poster)
	assert.Equal(t, "C1", first.channel)
	assert.Equal(t, "<@luke> [Beep, Beep, Bleep!]\nstdout: print(1)\nstderr: \nreturn code: 0", first.text)

	second := nextPost(t, poster)
	assert.Equal(t, "C2", second.channel)
	assert.True(t, strings.HasPrefix(second.text, "<@U2> [Electronic Trilling]"), second.text)

	assertNoPost(t, poster)
	require.NoError(t, stop())

	snap := b.Stats().Snapshot()
	assert.EqualValues(t, 4, snap.Seen)
	assert.EqualValues(t, 2, snap.Tagged)
	assert.EqualValues(t, 2, snap.Dispatched)
	assert.False(t, snap.Connected)
}

func TestBotConfusedReply(t *testing.T) {
	poster := newFakePoster()
	exec := &echoExecutor{}
	src := &fakeSource{batches: [][]slack.Message{{msg("C1", "1.0", "", "<@U42> python")}}}

	b := New(Options{
		Connector:  connectSequence(src),
		Dispatcher: testDispatcher(t, exec),
		Poster:     poster,
		PollDelay:  time.Millisecond,
	}, zaptest.NewLogger(t))
	stop := runBot(t, b)

	got := nextPost(t, poster)
	assert.True(t, strings.HasPrefix(got.text, " [Electronic Trilling]"), "no user means no tag: %q", got.text)
	require.NoError(t, stop())
	assert.Zero(t, exec.calls)
	assert.EqualValues(t, 1, b.Stats().Snapshot().Confused)
}

func TestBotIgnoresItsOwnMessages(t *testing.T) {
	exec := &echoExecutor{}
	poster := newFakePoster()
	ownReply := msg("C1", "2.0", "U42", "<@U1> [Beep, Beep, Bleep!]\nstdout: <@U42> python ```print(1)```")
	botMessage := msg("C1", "3.0", "", "<@U42> python ```print(2)```")
	botMessage.Subtype = "bot_message"
	src := &fakeSource{batches: [][]slack.Message{{
		ownReply,
		botMessage,
		msg("C1", "4.0", "U1", "<@U42> python ```print(3)```"),
	}}}

	b := New(Options{
		Connector:  connectSequence(src),
		Dispatcher: testDispatcher(t, exec),
		Poster:     poster,
		PollDelay:  time.Millisecond,
	}, zaptest.NewLogger(t))
	stop := runBot(t, b)

	got := nextPost(t, poster)
	assert.Contains(t, got.text, "stdout: print(3)")
	assertNoPost(t, poster)
	require.NoError(t, stop())

	assert.Equal(t, 1, exec.calls)
	snap := b.Stats().Snapshot()
	assert.EqualValues(t, 3, snap.Seen)
	assert.EqualValues(t, 1, snap.Tagged)
}

func TestBotSkipsHandledMessagesAfterReconnect(t *testing.T) {
	ledger, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	exec := &echoExecutor{}
	poster := newFakePoster()
	m1 := msg("C1", "1.0", "U1", "<@U42> python ```1```")
	m2 := msg("C1", "2.0", "U1", "<@U42> python ```2```")

	b := New(Options{
		Connector: connectSequence(
			&fakeSource{batches: [][]slack.Message{{m1}}, err: slack.ErrDisconnected},
			&fakeSource{batches: [][]slack.Message{{m1, m2}}},
		),
		Dispatcher:     testDispatcher(t, exec),
		Poster:         poster,
		Ledger:         ledger,
		PollDelay:      time.Millisecond,
		ReconnectDelay: time.Millisecond,
	}, zaptest.NewLogger(t))
	stop := runBot(t, b)

	assert.Contains(t, nextPost(t, poster).text, "stdout: 1\n")
	assert.Contains(t, nextPost(t, poster).text, "stdout: 2\n")
	assertNoPost(t, poster)
	require.NoError(t, stop())

	snap := b.Stats().Snapshot()
	assert.EqualValues(t, 1, snap.Duplicates)
	assert.EqualValues(t, 1, snap.Reconnects)
	assert.Equal(t, 2, exec.calls)

	recent, err := ledger.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	for _, h := range recent {
		assert.Equal(t, "dispatched", h.State)
		assert.Equal(t, "python", h.Instruction)
	}
}

func TestBotRecoversFromPanics(t *testing.T) {
	poster := newFakePoster()
	poster.panicOn = "C1"
	src := &fakeSource{batches: [][]slack.Message{{
		msg("C1", "1.0", "U1", "<@U42> help"),
		msg("C2", "2.0", "U1", "<@U42> help"),
	}}}

	b := New(Options{
		Connector:  connectSequence(src),
		Dispatcher: testDispatcher(t, &echoExecutor{}),
		Poster:     poster,
		PollDelay:  time.Millisecond,
	}, zaptest.NewLogger(t))
	stop := runBot(t, b)

	assert.Equal(t, "C2", nextPost(t, poster).channel)
	require.NoError(t, stop())
	assert.EqualValues(t, 1, b.Stats().Snapshot().Panics)
}

func TestBotFirstConnectFailure(t *testing.T) {
	b := New(Options{
		Connector: ConnectFunc(func(context.Context) (Source, error) {
			return nil, errors.New("invalid_auth")
		}),
	}, zaptest.NewLogger(t))

	err := b.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_auth")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestBotWatchMode(t *testing.T) {
	var out syncBuffer
	poster := newFakePoster()
	src := &fakeSource{batches: [][]slack.Message{{
		msg("C1", "1.0", "U1", "<@U42> python ```print(1)```"),
		{Type: "presence_change", User: "U2"},
	}}}

	b := New(Options{
		Connector: connectSequence(src),
		Poster:    poster,
		Watcher:   NewWatcher(&out),
		PollDelay: time.Millisecond,
	}, zaptest.NewLogger(t))
	stop := runBot(t, b)

	require.Eventually(t, func() bool {
		return strings.Count(out.String(), watchSeparator) == 2
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	text := out.String()
	assert.Contains(t, text, "channel: C1\n")
	assert.Contains(t, text, "type: presence_change\n")
	assert.Len(t, poster.posts, 0, "watch mode never replies")
}
