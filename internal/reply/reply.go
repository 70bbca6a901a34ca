// Package reply renders the chat replies the bot posts. Every function is
// pure: the same inputs always produce the same text.
package reply

import (
	"fmt"
	"slices"
	"strings"

	"github.com/michaelbrown/artoo/internal/payload"
	"github.com/michaelbrown/artoo/internal/sandbox"
)

// Help is the reply for a missing or unknown instruction, and for a code
// instruction whose payload could not be found. instructions lists the
// instruction keywords that run code; the order does not matter.
func Help(bot, userTag string, instructions []string) string {
	names := slices.Clone(instructions)
	slices.Sort(names)
	example := "python"
	if len(names) > 0 && !slices.Contains(names, example) {
		example = names[0]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [Electronic Trilling]\n", userTag)
	b.WriteString("--Please provide a command as--\n")
	fmt.Fprintf(&b, "@%s %s\n", bot, example)
	b.WriteString(payload.Fence + "\n[CODE]\n" + payload.Fence + "\n")
	b.WriteString("--or--\n")
	fmt.Fprintf(&b, "Comment '@%s %s' on a code snippet.", bot, example)
	if len(names) > 0 {
		b.WriteString("\n--instructions--\n")
		for i, name := range names {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(name)
		}
	}
	return b.String()
}

// Result is the reply for a finished execution. origin is the file the code
// came from, empty for inline code.
func Result(userTag, origin string, res sandbox.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [Beep, Beep, Bleep!]\n", userTag)
	if origin != "" {
		fmt.Fprintf(&b, "File: %s\n", origin)
	}
	fmt.Fprintf(&b, "stdout: %s\nstderr: %s\nreturn code: %s", res.Stdout, res.Stderr, status(res.Status))
	return b.String()
}

// Failure is the reply when the interpreter for instruction could not be
// started at all.
func Failure(userTag, instruction string) string {
	return fmt.Sprintf("%s [Sad Whistle]\nArtoo could not start the %s interpreter. Please let an operator know.", userTag, instruction)
}

func status(s sandbox.Status) string {
	if s.TimedOut() {
		return "Artoo halted execution after " + s.Seconds() + " seconds"
	}
	return fmt.Sprint(s.ExitCode())
}
