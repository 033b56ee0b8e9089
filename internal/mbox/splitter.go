package mbox

import "bytes"

// RawMessage is one envelope-delimited message recovered by Split, still
// carrying its envelope line; callers strip it via Body before parsing.
type RawMessage struct {
	// FromLine is the envelope line, without trailing LF.
	FromLine string
	// Span is the full byte range of this message within the buffer passed
	// to Split, including the envelope line.
	Span []byte
}

// Body returns the message bytes with the envelope line stripped, by
// skipping to the first LF in Span (per the ingestion algorithm's rule).
func (m RawMessage) Body() []byte {
	if idx := bytes.IndexByte(m.Span, '\n'); idx >= 0 {
		return m.Span[idx+1:]
	}
	return nil
}

// Split locates MBOX envelope boundaries in buffer (which is
// carryover||chunk, already concatenated by the caller) and returns the
// complete messages it contains plus the bytes that must be carried into the
// next chunk. When isLast is true, the final partial message (if any) is
// also emitted rather than held back, since there is no next chunk to
// complete it.
//
// buffer is normalized (CRLF -> LF) before boundary detection, so splitting
// is always LF-based regardless of the source file's original line endings;
// per-message bytes handed to the header/body parser retain this
// normalization, since the parser itself also operates on LF-only text.
func Split(buffer []byte, isLast bool) (messages []RawMessage, carryover []byte) {
	normalized := normalizeNewlines(buffer)
	offsets := envelopeOffsets(normalized)
	k := len(offsets)

	if k == 0 {
		if isLast {
			return nil, nil
		}
		return nil, normalized
	}

	for i := 0; i < k-1; i++ {
		start, end := offsets[i], offsets[i+1]
		messages = append(messages, newRawMessage(normalized[start:end]))
	}

	if isLast {
		start := offsets[k-1]
		messages = append(messages, newRawMessage(normalized[start:]))
		return messages, nil
	}

	return messages, normalized[offsets[k-1]:]
}

func newRawMessage(span []byte) RawMessage {
	line := span
	if idx := bytes.IndexByte(span, '\n'); idx >= 0 {
		line = span[:idx]
	}
	return RawMessage{
		FromLine: string(bytes.TrimRight(line, "\r")),
		Span:     span,
	}
}

// envelopeOffsets returns the start offsets of every envelope line in buf,
// in ascending order. An envelope line is any line beginning "From " whose
// remainder contains "@" or " at ", including the first line of buf itself.
func envelopeOffsets(buf []byte) []int {
	var offsets []int
	pos := 0
	for pos <= len(buf) {
		lineEnd := bytes.IndexByte(buf[pos:], '\n')
		var line []byte
		if lineEnd < 0 {
			line = buf[pos:]
		} else {
			line = buf[pos : pos+lineEnd]
		}
		if IsEnvelopeLine(line) {
			offsets = append(offsets, pos)
		}
		if lineEnd < 0 {
			break
		}
		pos += lineEnd + 1
	}
	return offsets
}

func normalizeNewlines(buf []byte) []byte {
	if !bytes.Contains(buf, []byte("\r\n")) {
		return buf
	}
	return bytes.ReplaceAll(buf, []byte("\r\n"), []byte("\n"))
}
