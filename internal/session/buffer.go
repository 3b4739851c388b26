package session

import "strings"

// ResponseBuffer accumulates device output until a prompt is consumed.
// Probing a pattern only rescans the tail that could still complete it.
type ResponseBuffer struct {
	text strings.Builder
	// from[p] is the first offset where p can still start.
	from map[string]int
}

// Append adds a newly read chunk.
func (b *ResponseBuffer) Append(chunk string) {
	b.text.WriteString(chunk)
}

// Contains reports whether pattern occurs anywhere in the unconsumed text.
func (b *ResponseBuffer) Contains(pattern string) bool {
	if b.from == nil {
		b.from = make(map[string]int)
	}
	s := b.text.String()
	start := b.from[pattern]
	if start > len(s) {
		start = len(s)
	}
	if strings.Contains(s[start:], pattern) {
		return true
	}
	if next := len(s) - len(pattern) + 1; next > start {
		b.from[pattern] = next
	}
	return false
}

// Clear drops everything read so far.
func (b *ResponseBuffer) Clear() {
	b.text.Reset()
	b.from = nil
}

// String returns the unconsumed text.
func (b *ResponseBuffer) String() string { return b.text.String() }

// Len returns the size of the unconsumed text in bytes.
func (b *ResponseBuffer) Len() int { return b.text.Len() }
