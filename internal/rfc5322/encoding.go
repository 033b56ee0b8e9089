package rfc5322

import (
	"io"
	"mime"

	"golang.org/x/text/encoding/htmlindex"
)

// decodeSubject decodes RFC 2047 encoded-words in a header value (the
// "=?charset?B?...?=" / "=?charset?Q?...?=" forms, with Q using '_' for
// space). Non-ASCII charsets are resolved through the same charset table the
// body decoder uses; a value that fails to decode is returned unchanged.
func decodeSubject(raw string) string {
	dec := &mime.WordDecoder{CharsetReader: charsetReader}
	decoded, err := dec.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// charsetReader adapts an arbitrary MIME charset name to an io.Reader that
// yields UTF-8, via the same encoding table used for body charset detection.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return input, nil
	}
	return enc.NewDecoder().Reader(input), nil
}
