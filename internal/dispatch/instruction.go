package dispatch

import (
	"regexp"
	"strings"
)

// Instruction is the keyword following the bot's mention tag, e.g. "python".
type Instruction string

var validInstruction = regexp.MustCompile(`^[\p{L}\p{N}_]+$`)

// Valid reports whether i is a non-empty run of letters, digits and
// underscores.
func (i Instruction) Valid() bool {
	return validInstruction.MatchString(string(i))
}

// Parser recognizes mentions of one bot identity in message text.
type Parser struct {
	identity string
	tag      string
	re       *regexp.Regexp
}

// NewParser creates a Parser for the bot whose user ID is identity.
func NewParser(identity string) *Parser {
	tag := "<@" + identity + ">"
	return &Parser{
		identity: identity,
		tag:      tag,
		re:       regexp.MustCompile(regexp.QuoteMeta(tag) + `[\s\p{Z}\x{85}]*([\p{L}\p{N}_]*)`),
	}
}

// Identity returns the bot's user ID.
func (p *Parser) Identity() string { return p.identity }

// Tag returns the mention token, e.g. "<@U123>".
func (p *Parser) Tag() string { return p.tag }

// Tagged reports whether text mentions the bot.
func (p *Parser) Tagged(text string) bool {
	return strings.Contains(text, p.tag)
}

// Instruction returns the keyword after the first mention in text. The
// boolean is false when the bot is not mentioned or the first mention is
// not followed by a keyword.
func (p *Parser) Instruction(text string) (Instruction, bool) {
	m := p.re.FindStringSubmatch(text)
	if m == nil || m[1] == "" {
		return "", false
	}
	return Instruction(m[1]), true
}
