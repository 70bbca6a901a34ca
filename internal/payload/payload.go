// Package payload locates the code a tagged message asks the bot to run.
//
// Code comes either from a file attached to the message or from regions of
// the message text delimited by triple-backtick fences.
package payload

import (
	"errors"
	"fmt"
)

// Fence is the delimiter that opens and closes an inline code region.
const Fence = "```"

// Kind classifies a resolved payload.
type Kind int

const (
	// None means the message carried no code at all.
	None Kind = iota
	// Malformed means code was expected but could not be recovered
	// (unbalanced fences, empty or unfetchable file).
	Malformed
	// Source means Text holds code ready to execute.
	Source
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Malformed:
		return "malformed"
	case Source:
		return "source"
	default:
		return "unknown"
	}
}

var (
	ErrNoPayload = errors.New("no code payload")
	ErrMalformed = errors.New("malformed code payload")
	ErrFetch     = errors.New("fetching code file")
)

// Payload is the outcome of code extraction. Text is only meaningful when
// Kind is Source.
type Payload struct {
	Kind Kind
	Text string

	cause error
}

// Err maps a non-Source payload onto its sentinel error; it returns nil for
// Source payloads.
func (p Payload) Err() error {
	switch p.Kind {
	case Source:
		return nil
	case None:
		return ErrNoPayload
	default:
		if p.cause != nil {
			return fmt.Errorf("%w: %w", ErrMalformed, p.cause)
		}
		return ErrMalformed
	}
}

// OK reports whether the payload holds executable source.
func (p Payload) OK() bool {
	return p.Kind == Source
}

func none() Payload              { return Payload{Kind: None} }
func malformed() Payload         { return Payload{Kind: Malformed} }
func source(text string) Payload { return Payload{Kind: Source, Text: text} }

// fetchFailed is a Malformed payload that remembers why the attached file
// could not be used.
func fetchFailed(err error) Payload {
	return Payload{Kind: Malformed, cause: fmt.Errorf("%w: %w", ErrFetch, err)}
}
