// Package ringbuffer implements the bounded scrollback buffer backing each
// terminal record: an ordered sequence of output chunks trimmed to a
// character-count cap.
package ringbuffer

import "sync"

// Buffer is a bounded, ordered sequence of text chunks that preserves the
// most recently appended characters up to maxChars. Zero value is not
// usable; construct with New.
//
// Characters are counted as runes, not bytes, matching the "addressable
// unit of the language runtime's string" contract: Go strings are most
// naturally measured by rune count for scrollback display purposes.
type Buffer struct {
	mu       sync.Mutex
	chunks   []string
	size     int // total rune count currently retained
	maxChars int
}

// New creates a Buffer capped at maxChars runes. A non-positive maxChars
// starts the buffer empty and permanently disabled until SetMaxChars(n>0).
func New(maxChars int) *Buffer {
	return &Buffer{maxChars: maxChars}
}

// Append adds a chunk, discarding the oldest retained chunks until the
// total is within maxChars. Empty chunks are ignored. A chunk longer than
// maxChars by itself is truncated to its trailing maxChars characters.
func (b *Buffer) Append(chunk string) {
	if chunk == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appendLocked(chunk)
}

func (b *Buffer) appendLocked(chunk string) {
	if b.maxChars <= 0 {
		return
	}

	n := runeLen(chunk)
	if n > b.maxChars {
		chunk = trailingRunes(chunk, b.maxChars)
		n = b.maxChars
		// A single oversize chunk replaces everything retained so far.
		b.chunks = b.chunks[:0]
		b.size = 0
	}

	b.chunks = append(b.chunks, chunk)
	b.size += n

	for b.size > b.maxChars && len(b.chunks) > 0 {
		oldest := b.chunks[0]
		b.chunks = b.chunks[1:]
		b.size -= runeLen(oldest)
	}
}

// SetMaxChars adjusts the cap. n<=0 clears the buffer and disables future
// appends until a positive cap is set again; otherwise existing content is
// trimmed (oldest-first) to fit the new cap, keeping the trailing
// characters of a partially evicted chunk.
func (b *Buffer) SetMaxChars(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxChars = n
	if n <= 0 {
		b.chunks = nil
		b.size = 0
		return
	}
	for b.size > b.maxChars && len(b.chunks) > 0 {
		oldest := b.chunks[0]
		excess := b.size - b.maxChars
		if ol := runeLen(oldest); ol > excess {
			// Keep the trailing part of the oldest chunk that still fits.
			b.chunks[0] = trailingRunes(oldest, ol-excess)
			b.size -= excess
			break
		}
		b.chunks = b.chunks[1:]
		b.size -= runeLen(oldest)
	}
}

// Snapshot returns the concatenation of all retained chunks in append
// order. It does not mutate the buffer.
func (b *Buffer) Snapshot() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.chunks) == 0 {
		return ""
	}
	if len(b.chunks) == 1 {
		return b.chunks[0]
	}
	total := 0
	for _, c := range b.chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return string(out)
}

// Clear discards all retained content; the size counter resets so a
// subsequent append can fully reuse maxChars.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = nil
	b.size = 0
}

// Len returns the current retained rune count.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func runeLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}

// trailingRunes returns the trailing n runes of s.
func trailingRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
