// Package rfc5322 parses the per-message header/body structure that mbox
// hands it: unfolding continuation lines, decoding RFC 2047 encoded words,
// splitting one level of multipart, and transfer-decoding quoted-printable
// or base64 bodies. It intentionally does not attempt full MIME compliance
// (no nested multipart recursion beyond one level, no TNEF).
package rfc5322

import (
	"bytes"
	"strings"
)

// headerList preserves header order and duplicate keys (e.g. repeated
// Received lines), while also supporting case-insensitive single-value
// lookups via Get.
type headerList struct {
	keys   []string
	values []string
}

func (h *headerList) add(key, value string) {
	h.keys = append(h.keys, strings.ToLower(key))
	h.values = append(h.values, value)
}

// Get returns the first value for key (case-insensitive), or "".
func (h *headerList) Get(key string) string {
	key = strings.ToLower(key)
	for i, k := range h.keys {
		if k == key {
			return h.values[i]
		}
	}
	return ""
}

// splitHeadersBody splits raw message bytes (already LF-normalized) on the
// first blank line into a header block and a body. Returns ok=false if no
// blank line separator is found.
func splitHeadersBody(raw []byte) (headerBlock, body []byte, ok bool) {
	idx := bytes.Index(raw, []byte("\n\n"))
	if idx < 0 {
		return nil, nil, false
	}
	return raw[:idx], raw[idx+2:], true
}

// parseHeaderBlock parses an unfolded, colon-delimited header block into a
// headerList. Continuation lines (leading space or tab) are appended to the
// previous header's value with the leading whitespace collapsed to a single
// space, per RFC 5322 §2.2.3 unfolding.
func parseHeaderBlock(block []byte) *headerList {
	h := &headerList{}
	lines := strings.Split(string(block), "\n")

	var curKey, curVal string
	haveCur := false

	flush := func() {
		if haveCur {
			h.add(curKey, strings.TrimSpace(curVal))
		}
	}

	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && haveCur {
			curVal += " " + strings.TrimSpace(line)
			continue
		}
		flush()
		haveCur = false

		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		curKey = strings.TrimSpace(line[:colon])
		curVal = strings.TrimSpace(line[colon+1:])
		haveCur = true
	}
	flush()

	return h
}
