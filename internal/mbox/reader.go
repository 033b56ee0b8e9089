// Package mbox splits MBOX byte streams into individual messages. It
// provides two shapes over the same envelope-detection primitives: a
// whole-stream Reader for offline/single-shot parsing, and a Split function
// that operates on independently-arriving byte chunks with explicit carryover —
// the resumable form the ingestion pipeline actually runs on.
//
// We support typical mboxo/mboxrd exports where each message is preceded by a
// Unix "From " separator line. Body lines that begin with "From " (or with one
// or more leading '>' followed by "From ") are commonly escaped in the file by
// prefixing an additional '>' (mboxrd). When reading, a single leading '>' is
// stripped from any line matching ^>+From .
package mbox

import (
	"bufio"
	"bytes"
	"io"
)

const maxLineBytes = 32 << 20 // 32 MiB

// Message is a single message recovered from an MBOX stream.
type Message struct {
	// FromLine is the envelope separator line, without trailing newline.
	FromLine string
	// Raw is the RFC 5322 message bytes (headers + body); the envelope line
	// is not included.
	Raw []byte
}

// Reader reads messages one at a time from a whole io.Reader, for an offline
// single-shot parse of a complete file already resident in memory or on disk.
// Split's chunking-invariance tests do not use it; their baseline is an
// uncut Split of the same bytes.
type Reader struct {
	br           *bufio.Reader
	nextFromLine string
	hasNextFrom  bool
	eof          bool
	unescapeFrom bool
}

// NewReader creates a whole-stream MBOX reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r), unescapeFrom: true}
}

// SetUnescapeFrom controls mboxrd-style ^>+From  unescaping. Default true.
func (r *Reader) SetUnescapeFrom(enabled bool) {
	r.unescapeFrom = enabled
}

// Next returns the next message, or io.EOF when the stream is exhausted.
func (r *Reader) Next() (*Message, error) {
	if r.eof {
		return nil, io.EOF
	}

	if !r.hasNextFrom {
		for {
			line, err := readLineBytes(r.br)
			if err != nil && err != io.EOF {
				return nil, err
			}
			if IsEnvelopeLine(line) {
				r.nextFromLine = string(bytes.TrimRight(line, "\r\n"))
				r.hasNextFrom = true
				break
			}
			if err == io.EOF {
				r.eof = true
				return nil, io.EOF
			}
		}
	}

	fromLine := r.nextFromLine
	r.hasNextFrom = false

	var raw bytes.Buffer
	for {
		line, err := readLineBytes(r.br)
		if len(line) > 0 {
			if IsEnvelopeLine(line) {
				r.nextFromLine = string(bytes.TrimRight(line, "\r\n"))
				r.hasNextFrom = true
				break
			}
			b := line
			if r.unescapeFrom {
				b = UnescapeFromLine(line)
			}
			raw.Write(b)
		}
		if err != nil {
			if err == io.EOF {
				r.eof = true
				break
			}
			return nil, err
		}
	}

	return &Message{FromLine: fromLine, Raw: raw.Bytes()}, nil
}

func readLineBytes(br *bufio.Reader) ([]byte, error) {
	var out []byte
	for {
		b, err := br.ReadBytes('\n')
		out = append(out, b...)
		if len(out) > maxLineBytes {
			return out, io.ErrShortBuffer
		}
		if err == nil {
			return out, nil
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err == io.EOF {
			return out, io.EOF
		}
		if len(out) > 0 {
			return out, err
		}
		return nil, err
	}
}

var fromPrefix = []byte("From ")

// IsEnvelopeLine reports whether line looks like an MBOX "From " envelope
// line: it disambiguates from body text that happens to start with "From " by
// requiring the remainder to contain either "@" or " at " somewhere after the
// prefix.
func IsEnvelopeLine(line []byte) bool {
	if !bytes.HasPrefix(line, fromPrefix) {
		return false
	}
	rest := line[len(fromPrefix):]
	return bytes.ContainsRune(rest, '@') || bytes.Contains(rest, []byte(" at "))
}

// UnescapeFromLine removes a single leading '>' from a line matching ^>+From
// (mboxrd unquoting). Lines that don't match are returned unchanged.
func UnescapeFromLine(line []byte) []byte {
	if len(line) == 0 || line[0] != '>' {
		return line
	}
	i := 0
	for i < len(line) && line[i] == '>' {
		i++
	}
	if i < len(line) && bytes.HasPrefix(line[i:], fromPrefix) {
		return line[1:]
	}
	return line
}
