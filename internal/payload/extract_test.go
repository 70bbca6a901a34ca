package payload

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Payload
	}{
		{"no fences", "<@U1> python print(1)", Payload{Kind: None}},
		{"empty text", "", Payload{Kind: None}},
		{"single fence", "<@U1> python ```print(1)", Payload{Kind: Malformed}},
		{"three fences", "```a```b```", Payload{Kind: Malformed}},
		{"one block", "<@U1> python\n```\nprint('hi')\n```", Payload{Kind: Source, Text: "\nprint('hi')\n"}},
		{"empty block", "``````", Payload{Kind: Source, Text: ""}},
		{"two blocks", "A```B```C```D```E", Payload{Kind: Source, Text: "D\nB"}},
		{"three blocks", "```x``` ```y``` ```z```", Payload{Kind: Source, Text: "z\ny\nx"}},
		{"four backticks", "````x```", Payload{Kind: Source, Text: "`x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.text))
		})
	}
}

func TestExtractZeroMarkersIsNone(t *testing.T) {
	for _, text := range []string{"", "hello", "`` `", "`single` and ``double``", "<@U1>   bash"} {
		assert.Equal(t, None, Extract(text).Kind, "text %q", text)
	}
}

func TestExtractOddMarkersIsMalformed(t *testing.T) {
	for n := 1; n <= 9; n += 2 {
		text := strings.Repeat("x"+Fence, n) + "tail"
		assert.Equal(t, Malformed, Extract(text).Kind, "%d markers", n)
	}
}

func TestExtractTwoMarkersVerbatim(t *testing.T) {
	inner := "  for i in range(3):\n      print(i)  \n\t"
	got := Extract("before" + Fence + inner + Fence + "after")
	require.True(t, got.OK())
	assert.Equal(t, inner, got.Text)
}

func TestExtractPairsFromTheEnd(t *testing.T) {
	blocks := []string{"first", "second", "third", "fourth"}
	var b strings.Builder
	for i, blk := range blocks {
		b.WriteString("gap")
		b.WriteString(string(rune('0' + i)))
		b.WriteString(Fence + blk + Fence)
	}

	got := Extract(b.String())
	require.True(t, got.OK())
	assert.Equal(t, "fourth\nthird\nsecond\nfirst", got.Text)
	assert.NotContains(t, got.Text, Fence)
}

func TestPayloadErr(t *testing.T) {
	assert.ErrorIs(t, Payload{Kind: None}.Err(), ErrNoPayload)
	assert.ErrorIs(t, Payload{Kind: Malformed}.Err(), ErrMalformed)
	assert.NoError(t, Payload{Kind: Source, Text: "x"}.Err())
}
