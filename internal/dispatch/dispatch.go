// Package dispatch routes tagged messages to instruction handlers.
//
// Every message ends in one of two states. It is dispatched when its
// instruction is in the handler table, and confused when there is no
// instruction, the instruction is unknown, or a code handler found no usable
// payload. Confused messages get the help text.
package dispatch

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/michaelbrown/artoo/internal/payload"
	"github.com/michaelbrown/artoo/internal/reply"
	"github.com/michaelbrown/artoo/internal/sandbox"
)

// State is the dispatch state a message ended in.
type State int

const (
	Dispatched State = iota
	Confused
)

func (s State) String() string {
	if s == Confused {
		return "confused"
	}
	return "dispatched"
}

// Outcome is the result of dispatching one message.
type Outcome struct {
	State       State
	Instruction Instruction // empty when the message had none
	Reply       string
	Failed      bool // the handler errored and Reply is a failure notice
}

// Dispatcher routes tagged messages to handlers.
type Dispatcher struct {
	name   string
	parser *Parser
	table  *HandlerTable
	logger *zap.Logger
}

// New creates a Dispatcher for the bot called name (used in help text)
// whose mentions are recognized by parser.
func New(name string, parser *Parser, table *HandlerTable, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		name:   name,
		parser: parser,
		table:  table,
		logger: logger.With(zap.String("component", "dispatch")),
	}
}

// Table returns the dispatcher's handler table.
func (d *Dispatcher) Table() *HandlerTable { return d.table }

// Parser returns the mention parser.
func (d *Dispatcher) Parser() *Parser { return d.parser }

// Dispatch handles req and returns the reply to post. The error is non-nil
// only when ctx was cancelled while a handler was running.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Outcome, error) {
	instr, ok := d.parser.Instruction(req.Text)
	h, found := d.table.Lookup(instr)
	if !ok || !found {
		d.logger.Debug("no known instruction", zap.String("instruction", string(instr)))
		return Outcome{State: Confused, Instruction: instr, Reply: d.help(req)}, nil
	}

	logger := d.logger.With(zap.String("instruction", string(instr)))
	text, err := h.Handle(ctx, req)
	switch {
	case err == nil:
		return Outcome{State: Dispatched, Instruction: instr, Reply: text}, nil
	case errors.Is(err, ErrHelp):
		return Outcome{State: Dispatched, Instruction: instr, Reply: d.help(req)}, nil
	case errors.Is(err, payload.ErrNoPayload), errors.Is(err, payload.ErrMalformed):
		logger.Debug("no usable payload", zap.Error(err))
		return Outcome{State: Confused, Instruction: instr, Reply: d.help(req)}, nil
	case ctx.Err() != nil:
		return Outcome{}, ctx.Err()
	case errors.Is(err, sandbox.ErrSpawn):
		logger.Error("interpreter could not be started", zap.Error(err))
	default:
		logger.Error("handler failed", zap.Error(err))
	}
	return Outcome{State: Dispatched, Instruction: instr, Reply: reply.Failure(req.UserTag, string(instr)), Failed: true}, nil
}

func (d *Dispatcher) help(req Request) string {
	code := d.table.CodeInstructions()
	names := make([]string, len(code))
	for i, instr := range code {
		names[i] = string(instr)
	}
	return reply.Help(d.name, req.UserTag, names)
}
