package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelbrown/artoo/internal/payload"
	"github.com/michaelbrown/artoo/internal/reply"
	"github.com/michaelbrown/artoo/internal/sandbox"
)

type call struct {
	interpreter string
	source      string
}

type fakeExecutor struct {
	calls  []call
	result sandbox.Result
	err    error
}

func (f *fakeExecutor) Execute(_ context.Context, interpreter, source string) (sandbox.Result, error) {
	f.calls = append(f.calls, call{interpreter, source})
	return f.result, f.err
}

type fakeFetcher map[string][]byte

func (f fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	data, ok := f[url]
	if !ok {
		return nil, errors.New("404")
	}
	return data, nil
}

func newTestDispatcher(t *testing.T, exec Executor, fetcher payload.Fetcher) *Dispatcher {
	t.Helper()
	logger := zaptest.NewLogger(t)
	resolver := payload.NewResolver(fetcher, logger)
	table, err := NewHandlerTable(map[Instruction]Handler{
		"python": NewCodeHandler("python", exec, resolver),
		"bash":   NewCodeHandler("bash", exec, resolver),
		"help":   HelpHandler,
	})
	require.NoError(t, err)
	return New("artoo", NewParser("U42"), table, logger)
}

func helpFor(tag string) string {
	return reply.Help("artoo", tag, []string{"bash", "python"})
}

func TestDispatchRunsInlineCode(t *testing.T) {
	exec := &fakeExecutor{result: sandbox.Result{Stdout: "4\n", Status: sandbox.Exited(0)}}
	d := newTestDispatcher(t, exec, nil)

	out, err := d.Dispatch(context.Background(), Request{
		Text:    "<@U42> python\n```print(2+2)```",
		UserTag: "<@luke>",
	})
	require.NoError(t, err)

	assert.Equal(t, Dispatched, out.State)
	assert.Equal(t, Instruction("python"), out.Instruction)
	assert.Equal(t, "<@luke> [Beep, Beep, Bleep!]\nstdout: 4\n\nstderr: \nreturn code: 0", out.Reply)
	assert.Equal(t, []call{{"python", "print(2+2)"}}, exec.calls)
}

func TestDispatchRoutesByInstruction(t *testing.T) {
	exec := &fakeExecutor{result: sandbox.Result{Status: sandbox.Exited(0)}}
	d := newTestDispatcher(t, exec, nil)

	_, err := d.Dispatch(context.Background(), Request{Text: "<@U42>   bash ```echo hi```"})
	require.NoError(t, err)
	assert.Equal(t, []call{{"bash", "echo hi"}}, exec.calls)
}

func TestDispatchFileWinsOverInline(t *testing.T) {
	url := "https://files.slack.com/files-pri/T1/main.py"
	exec := &fakeExecutor{result: sandbox.Result{Stdout: "file", Status: sandbox.Exited(0)}}
	d := newTestDispatcher(t, exec, fakeFetcher{url: []byte("print('file')")})

	out, err := d.Dispatch(context.Background(), Request{
		Text:    "<@U42> python ```print('inline')```",
		FileURL: url,
		UserTag: "<@leia>",
	})
	require.NoError(t, err)

	assert.Equal(t, []call{{"python", "print('file')"}}, exec.calls)
	assert.Contains(t, out.Reply, "\nFile: "+url+"\n")
}

func TestDispatchTimedOutResult(t *testing.T) {
	exec := &fakeExecutor{result: sandbox.Result{Stdout: "started", Status: sandbox.TimedOut(300 * time.Second)}}
	d := newTestDispatcher(t, exec, nil)

	out, err := d.Dispatch(context.Background(), Request{Text: "<@U42> python ```while True: pass```"})
	require.NoError(t, err)
	assert.Equal(t, Dispatched, out.State)
	assert.Contains(t, out.Reply, "return code: Artoo halted execution after 300 seconds")
}

func TestDispatchConfused(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		instr   Instruction
		fetcher payload.Fetcher
	}{
		{name: "no instruction", req: Request{Text: "<@U42>"}},
		{name: "punctuation after tag", req: Request{Text: "<@U42> !python ```x```"}},
		{name: "unknown instruction", req: Request{Text: "<@U42> fortran ```x```"}, instr: "fortran"},
		{name: "no payload", req: Request{Text: "<@U42> python"}, instr: "python"},
		{name: "odd fences", req: Request{Text: "<@U42> python ```x``` ```"}, instr: "python"},
		{name: "empty file", req: Request{Text: "<@U42> python", FileURL: "https://files.slack.com/e"},
			instr: "python", fetcher: fakeFetcher{"https://files.slack.com/e": nil}},
		{name: "fetch error", req: Request{Text: "<@U42> python", FileURL: "https://files.slack.com/missing"},
			instr: "python", fetcher: fakeFetcher{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			d := newTestDispatcher(t, exec, tt.fetcher)
			tt.req.UserTag = "<@han>"

			out, err := d.Dispatch(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, Confused, out.State)
			assert.Equal(t, tt.instr, out.Instruction)
			assert.Equal(t, helpFor("<@han>"), out.Reply)
			assert.Empty(t, exec.calls, "confused messages never execute code")
		})
	}
}

func TestUnknownAndMissingInstructionShareReply(t *testing.T) {
	d := newTestDispatcher(t, &fakeExecutor{}, nil)

	unknown, err := d.Dispatch(context.Background(), Request{Text: "<@U42> cobol", UserTag: "<@han>"})
	require.NoError(t, err)
	missing, err := d.Dispatch(context.Background(), Request{Text: "hey <@U42>", UserTag: "<@han>"})
	require.NoError(t, err)

	assert.Equal(t, unknown.Reply, missing.Reply)
}

func TestDispatchHelpInstruction(t *testing.T) {
	d := newTestDispatcher(t, &fakeExecutor{}, nil)

	out, err := d.Dispatch(context.Background(), Request{Text: "<@U42> help", UserTag: "<@han>"})
	require.NoError(t, err)
	assert.Equal(t, Dispatched, out.State)
	assert.Equal(t, helpFor("<@han>"), out.Reply)
}

func TestDispatchSpawnFailure(t *testing.T) {
	exec := &fakeExecutor{err: fmt.Errorf("%w: python: not found", sandbox.ErrSpawn)}
	d := newTestDispatcher(t, exec, nil)

	out, err := d.Dispatch(context.Background(), Request{Text: "<@U42> python ```1```", UserTag: "<@han>"})
	require.NoError(t, err)
	assert.Equal(t, Dispatched, out.State)
	assert.True(t, out.Failed)
	assert.Equal(t, reply.Failure("<@han>", "python"), out.Reply)
}

func TestDispatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exec := &fakeExecutor{err: context.Canceled}
	d := newTestDispatcher(t, exec, nil)

	_, err := d.Dispatch(ctx, Request{Text: "<@U42> python ```1```"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFirstMentionWins(t *testing.T) {
	exec := &fakeExecutor{result: sandbox.Result{Status: sandbox.Exited(0)}}
	d := newTestDispatcher(t, exec, nil)

	_, err := d.Dispatch(context.Background(), Request{Text: "<@U42> bash ```echo 1``` <@U42> python"})
	require.NoError(t, err)
	require.Len(t, exec.calls, 1)
	assert.Equal(t, "bash", exec.calls[0].interpreter)
}
