package rfc5322

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/quotedprintable"
	"strings"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding/htmlindex"
)

const maxBodyChars = 50000

// part is one piece of a message body after at most one level of multipart
// splitting: either the message itself (single-part) or one of its direct
// children.
type part struct {
	contentType string
	charset     string
	encoding    string
	raw         []byte
}

// extractBody walks the header/body pair and returns plain-text and HTML
// bodies, truncated to maxBodyChars. Multipart messages are split one level
// deep; the first text/plain part found is used for BodyText and the first
// text/html part for BodyHTML. A message whose top-level Content-Type is
// itself text/plain or text/html (the common non-multipart case) is treated
// as a single part of that type.
func extractBody(h *headerList, body []byte) (bodyText, bodyHTML string) {
	contentType := h.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, params = "text/plain", nil
	}

	transferEncoding := strings.ToLower(strings.TrimSpace(h.Get("Content-Transfer-Encoding")))

	var parts []part
	if strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "" {
		parts = splitMultipart(body, params["boundary"])
	} else {
		parts = []part{{
			contentType: mediaType,
			charset:     params["charset"],
			encoding:    transferEncoding,
			raw:         body,
		}}
	}

	for _, p := range parts {
		decoded := decodeTransfer(p.raw, p.encoding)
		text := decodeCharset(decoded, p.charset)

		switch {
		case bodyText == "" && strings.HasPrefix(p.contentType, "text/plain"):
			bodyText = truncate(text)
		case bodyHTML == "" && strings.HasPrefix(p.contentType, "text/html"):
			bodyHTML = truncate(text)
		}
	}

	return bodyText, bodyHTML
}

// splitMultipart splits body on a MIME boundary one level deep. Nested
// multipart children are not recursed into; their raw bytes are kept as an
// opaque part under their declared (possibly multipart/*) content type, so
// they simply won't match text/plain or text/html above.
func splitMultipart(body []byte, boundary string) []part {
	delim := []byte("--" + boundary)
	segments := bytes.Split(body, delim)

	var parts []part
	for _, seg := range segments {
		seg = bytes.TrimPrefix(seg, []byte("\r\n"))
		seg = bytes.TrimPrefix(seg, []byte("\n"))
		if len(seg) == 0 || bytes.Equal(bytes.TrimSpace(seg), []byte("--")) {
			continue
		}

		headerBlock, partBody, ok := splitHeadersBody(seg)
		if !ok {
			continue
		}
		ph := parseHeaderBlock(headerBlock)

		ct := ph.Get("Content-Type")
		if ct == "" {
			ct = "text/plain"
		}
		mt, params, err := mime.ParseMediaType(ct)
		if err != nil {
			mt, params = "text/plain", nil
		}

		parts = append(parts, part{
			contentType: mt,
			charset:     params["charset"],
			encoding:    strings.ToLower(strings.TrimSpace(ph.Get("Content-Transfer-Encoding"))),
			raw:         partBody,
		})
	}
	return parts
}

// decodeTransfer reverses Content-Transfer-Encoding. base64 decoding
// tolerates embedded whitespace and line breaks, as real-world exports
// routinely wrap base64 bodies at 76 columns.
func decodeTransfer(raw []byte, encoding string) []byte {
	switch encoding {
	case "base64":
		cleaned := make([]byte, 0, len(raw))
		for _, b := range raw {
			if b == ' ' || b == '\t' || b == '\r' || b == '\n' {
				continue
			}
			cleaned = append(cleaned, b)
		}
		decoded, err := base64.StdEncoding.DecodeString(string(cleaned))
		if err != nil {
			// Some exports omit padding; retry with the raw-std encoding.
			if d2, err2 := base64.RawStdEncoding.DecodeString(string(cleaned)); err2 == nil {
				return d2
			}
			return raw
		}
		return decoded
	case "quoted-printable":
		decoded, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(raw)))
		if err != nil {
			return raw
		}
		return decoded
	default:
		return raw
	}
}

// decodeCharset converts raw bytes to UTF-8 text. A declared charset other
// than utf-8/us-ascii is used when present. When none is declared, or utf-8
// or us-ascii is declared but the bytes are not valid UTF-8, chardet sniffs
// the bytes and the best guess is used. Bytes already valid as UTF-8 under
// such a declaration pass through unchanged. An unknown charset name or a
// decode error returns the raw bytes as a string; chardet is not tried then.
func decodeCharset(raw []byte, declared string) string {
	charset := strings.ToLower(strings.TrimSpace(declared))
	if charset == "" || charset == "utf-8" || charset == "us-ascii" {
		if isValidUTF8(raw) {
			return string(raw)
		}
		charset = sniffCharset(raw)
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return string(raw)
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

func sniffCharset(raw []byte) string {
	result, err := chardet.NewTextDetector().DetectBest(raw)
	if err != nil || result == nil {
		return "utf-8"
	}
	return result.Charset
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxBodyChars {
		return s
	}
	return string(r[:maxBodyChars])
}

func isValidUTF8(b []byte) bool {
	for i := 0; i < len(b); {
		r := b[i]
		switch {
		case r < 0x80:
			i++
		case r&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return false
			}
			i += 2
		case r&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return false
			}
			i += 3
		case r&0xF8 == 0xF0:
			if i+3 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 || b[i+3]&0xC0 != 0x80 {
				return false
			}
			i += 4
		default:
			return false
		}
	}
	return true
}
