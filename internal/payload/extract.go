package payload

import "strings"

// Extract pulls the fenced code regions out of text.
//
// Fence markers are paired from the last one toward the first, so the most
// recently opened block is consumed first. Recovered snippets are joined in
// that order with a newline, e.g. "A```B```C```D```E" yields "D\nB".
func Extract(text string) Payload {
	offsets := fenceOffsets(text)
	switch {
	case len(offsets) == 0:
		return none()
	case len(offsets)%2 == 1:
		return malformed()
	}

	snippets := make([]string, 0, len(offsets)/2)
	for len(offsets) > 0 {
		closing := offsets[len(offsets)-1]
		opening := offsets[len(offsets)-2] + len(Fence)
		offsets = offsets[:len(offsets)-2]
		snippets = append(snippets, text[opening:closing])
	}
	return source(strings.Join(snippets, "\n"))
}

// fenceOffsets returns the start offset of every non-overlapping fence
// marker in order of appearance.
func fenceOffsets(text string) []int {
	var offsets []int
	for i := 0; ; {
		j := strings.Index(text[i:], Fence)
		if j < 0 {
			return offsets
		}
		offsets = append(offsets, i+j)
		i += j + len(Fence)
	}
}
