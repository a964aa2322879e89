// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultDecodeThreshold is the buffered size at which bytes are decoded
	// even before a frame terminator arrives.
	DefaultDecodeThreshold = 256

	// DefaultMaxWithheld bounds how many trailing bytes of an incomplete
	// UTF-8 sequence may be held back waiting for the rest.
	DefaultMaxWithheld = 4
)

// ErrMalformedUTF8 reports bytes that could not be decoded as UTF-8.
// They are replaced with U+FFFD and the stream continues.
var ErrMalformedUTF8 = errors.New("sse: malformed utf-8")

var (
	frameSep    = []byte("\n\n")
	crlfSep     = []byte("\r\n\r\n")
	replacement = []byte(string(utf8.RuneError))
)

// Frame is the raw text of one SSE frame without its terminating blank line.
type Frame string

// =============================================================================
// INGESTOR
// =============================================================================

// Ingestor converts arbitrary network reads into complete frames.
//
// Raw bytes are buffered until they are safe to decode: either the buffer
// ends with a frame terminator, or it has grown past the decode threshold
// and its last byte does not open a multi-byte sequence. A trailing partial
// sequence is withheld for the next read. Decoded text is split on blank
// lines.
//
// An Ingestor is owned by a single connection goroutine and is not safe for
// concurrent use.
type Ingestor struct {
	pending     []byte
	text        []byte
	threshold   int
	maxWithheld int
}

// IngestOption configures an Ingestor.
type IngestOption func(*Ingestor)

// WithDecodeThreshold sets the size at which unterminated bytes are decoded.
func WithDecodeThreshold(n int) IngestOption {
	return func(in *Ingestor) {
		if n > 0 {
			in.threshold = n
		}
	}
}

// WithMaxWithheld sets the partial-sequence recovery budget in bytes.
func WithMaxWithheld(n int) IngestOption {
	return func(in *Ingestor) {
		if n > 0 {
			in.maxWithheld = n
		}
	}
}

// NewIngestor creates an empty Ingestor.
func NewIngestor(opts ...IngestOption) *Ingestor {
	in := &Ingestor{
		threshold:   DefaultDecodeThreshold,
		maxWithheld: DefaultMaxWithheld,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Feed appends p and returns every frame completed by it.
// A non-nil error wraps ErrMalformedUTF8; the returned frames are still valid.
func (in *Ingestor) Feed(p []byte) ([]Frame, error) {
	in.pending = append(in.pending, p...)
	if !in.ready() {
		return nil, nil
	}
	err := in.decode(false)
	return in.split(), err
}

// Close decodes everything still buffered and returns the remaining frames,
// including a final frame that never saw its terminator.
func (in *Ingestor) Close() ([]Frame, error) {
	err := in.decode(true)
	frames := in.split()
	if len(bytes.TrimSpace(in.text)) > 0 {
		frames = append(frames, Frame(in.text))
	}
	in.text = nil
	return frames, err
}

// Reset drops all buffered data, for reuse on a new connection.
func (in *Ingestor) Reset() {
	in.pending = nil
	in.text = nil
}

// Buffered returns the number of raw and decoded bytes not yet framed.
func (in *Ingestor) Buffered() int {
	return len(in.pending) + len(in.text)
}

func (in *Ingestor) ready() bool {
	n := len(in.pending)
	if n == 0 {
		return false
	}
	if in.terminated() {
		return true
	}
	return n >= in.threshold && !isLeadByte(in.pending[n-1])
}

// terminated reports whether the buffered bytes end with a frame
// terminator. The terminator may span decoded text and pending bytes.
func (in *Ingestor) terminated() bool {
	end := in.pending
	if short := len(crlfSep) - len(end); short > 0 {
		keep := min(short, len(in.text))
		end = append(append([]byte(nil), in.text[len(in.text)-keep:]...), end...)
	}
	return bytes.HasSuffix(end, frameSep) || bytes.HasSuffix(end, crlfSep)
}

// decode moves decodable bytes from pending to text. Unless final, a
// trailing incomplete sequence that fits the recovery budget stays pending.
func (in *Ingestor) decode(final bool) error {
	if len(in.pending) == 0 {
		return nil
	}

	tail := 0
	if !final {
		tail = incompleteTail(in.pending)
		if tail > in.maxWithheld {
			tail = 0
		}
	}

	var err error
	chunk := in.pending[:len(in.pending)-tail]
	if utf8.Valid(chunk) {
		in.text = append(in.text, chunk...)
	} else {
		in.text = append(in.text, bytes.ToValidUTF8(chunk, replacement)...)
		err = fmt.Errorf("%w: %d bytes replaced", ErrMalformedUTF8, len(chunk)-validBytes(chunk))
	}

	n := copy(in.pending, in.pending[len(in.pending)-tail:])
	in.pending = in.pending[:n]
	return err
}

// split cuts complete frames off the decoded text. Empty frames produced by
// runs of blank lines are skipped.
func (in *Ingestor) split() []Frame {
	if len(in.text) == 0 {
		return nil
	}

	var frames []Frame
	rest := in.text
	for {
		i, n := findSeparator(rest)
		if i < 0 {
			break
		}
		if frame := rest[:i]; len(bytes.TrimSpace(frame)) > 0 {
			frames = append(frames, Frame(frame))
		}
		rest = rest[i+n:]
	}

	if len(frames) > 0 || len(rest) < len(in.text) {
		in.text = append([]byte(nil), rest...)
	}
	return frames
}

// =============================================================================
// UTF-8 HELPERS
// =============================================================================

// isLeadByte reports whether b starts a multi-byte sequence.
func isLeadByte(b byte) bool {
	return b >= 0xC0
}

// incompleteTail returns the length of a trailing multi-byte sequence that is
// valid so far but still missing continuation bytes, or 0.
func incompleteTail(b []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < utf8.RuneSelf {
			return 0
		}
		if utf8.RuneStart(c) {
			if utf8.FullRune(b[len(b)-i:]) {
				return 0
			}
			return i
		}
	}
	return 0
}

// validBytes counts the bytes of b that decode without error.
func validBytes(b []byte) int {
	valid := 0
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r != utf8.RuneError || size > 1 {
			valid += size
		}
		b = b[size:]
	}
	return valid
}

// findSeparator locates the first blank line: LF LF, or LF CR LF when lines
// end in CRLF. It returns the separator offset and length, or -1.
func findSeparator(b []byte) (int, int) {
	for i := 0; i < len(b); {
		j := bytes.IndexByte(b[i:], '\n')
		if j < 0 {
			return -1, 0
		}
		i += j
		if i+1 < len(b) && b[i+1] == '\n' {
			return i, 2
		}
		if i+2 < len(b) && b[i+1] == '\r' && b[i+2] == '\n' {
			return i, 3
		}
		i++
	}
	return -1, 0
}
