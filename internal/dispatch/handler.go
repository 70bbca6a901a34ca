package dispatch

import (
	"context"
	"errors"

	"github.com/michaelbrown/artoo/internal/payload"
	"github.com/michaelbrown/artoo/internal/reply"
	"github.com/michaelbrown/artoo/internal/sandbox"
)

// ErrHelp is returned by handlers that want the dispatcher to answer with
// the help text.
var ErrHelp = errors.New("help requested")

// Request is a tagged message as seen by a handler.
type Request struct {
	Text    string
	FileURL string
	UserTag string // rendered mention of the sender, e.g. "<@luke>"
}

// Handler answers one instruction.
type Handler interface {
	Handle(ctx context.Context, req Request) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) (string, error)

func (f HandlerFunc) Handle(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// HelpHandler answers with the help text.
var HelpHandler Handler = HandlerFunc(func(context.Context, Request) (string, error) {
	return "", ErrHelp
})

// Executor runs source code with a named interpreter. *sandbox.Runner
// implements it.
type Executor interface {
	Execute(ctx context.Context, interpreter, source string) (sandbox.Result, error)
}

// CodeHandler resolves the payload of a message and executes it.
type CodeHandler struct {
	interpreter string
	executor    Executor
	resolver    *payload.Resolver
}

// NewCodeHandler creates a handler that runs payloads with interpreter.
func NewCodeHandler(interpreter string, executor Executor, resolver *payload.Resolver) *CodeHandler {
	return &CodeHandler{interpreter: interpreter, executor: executor, resolver: resolver}
}

// Handle returns payload.ErrNoPayload or payload.ErrMalformed when the
// message carries no usable code, and the executor's error when the
// interpreter could not run.
func (h *CodeHandler) Handle(ctx context.Context, req Request) (string, error) {
	p, origin := h.resolver.Resolve(ctx, payload.Message{Text: req.Text, FileURL: req.FileURL})
	if err := p.Err(); err != nil {
		return "", err
	}

	res, err := h.executor.Execute(ctx, h.interpreter, p.Text)
	if err != nil {
		return "", err
	}
	return reply.Result(req.UserTag, origin, res), nil
}
