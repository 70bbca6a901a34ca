package dispatch

import (
	"fmt"
	"maps"
	"slices"
)

// HandlerTable maps instructions to handlers. It is filled once by
// NewHandlerTable and only read afterwards, so it is safe for concurrent use.
type HandlerTable struct {
	handlers map[Instruction]Handler
}

// NewHandlerTable validates and copies handlers into a new table.
func NewHandlerTable(handlers map[Instruction]Handler) (*HandlerTable, error) {
	t := &HandlerTable{handlers: make(map[Instruction]Handler, len(handlers))}
	for instr, h := range handlers {
		if !instr.Valid() {
			return nil, fmt.Errorf("invalid instruction %q: only letters, digits and underscores are allowed", instr)
		}
		if h == nil {
			return nil, fmt.Errorf("instruction %q has no handler", instr)
		}
		t.handlers[instr] = h
	}
	return t, nil
}

// Lookup returns the handler bound to instr.
func (t *HandlerTable) Lookup(instr Instruction) (Handler, bool) {
	h, ok := t.handlers[instr]
	return h, ok
}

// Instructions returns every registered instruction, sorted.
func (t *HandlerTable) Instructions() []Instruction {
	return slices.Sorted(maps.Keys(t.handlers))
}

// CodeInstructions returns the instructions that execute code, sorted.
func (t *HandlerTable) CodeInstructions() []Instruction {
	var out []Instruction
	for _, instr := range t.Instructions() {
		if _, ok := t.handlers[instr].(*CodeHandler); ok {
			out = append(out, instr)
		}
	}
	return out
}
