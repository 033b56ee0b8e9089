package rfc5322

import (
	"regexp"
	"strings"

	"hybridmail/internal/domain"
)

var bareAddrRe = regexp.MustCompile(`[^\s<>@"]+@[^\s<>@"]+`)

// parseFromField extracts the email and display name out of a raw From:
// header value. It prefers the bracketed <addr> form; failing that it takes
// the first bare name@host token found anywhere in the value. The display
// name, when present, has surrounding quotes and the trailing "<addr>" part
// stripped.
func parseFromField(raw string) (email, name string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}

	if lt := strings.IndexByte(raw, '<'); lt >= 0 {
		if gt := strings.IndexByte(raw[lt:], '>'); gt >= 0 {
			email = strings.TrimSpace(raw[lt+1 : lt+gt])
			name = strings.TrimSpace(raw[:lt])
			name = strings.Trim(name, `"`)
			return email, name
		}
	}

	if m := bareAddrRe.FindString(raw); m != "" {
		email = m
		name = strings.TrimSpace(strings.Replace(raw, m, "", 1))
		name = strings.Trim(name, `"<> `)
		return email, name
	}

	return "", ""
}

// splitAddressList splits a comma-separated address header value on commas
// that fall outside double-quoted display names, then parses each item as a
// From-style "Name <addr>" or bare address.
func splitAddressList(raw string) []domain.Address {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := splitOutsideQuotes(raw, ',')
	addrs := make([]domain.Address, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		email, name := parseFromField(p)
		if email == "" {
			continue
		}
		addrs = append(addrs, domain.Address{Name: name, Email: email})
	}
	return addrs
}

func splitOutsideQuotes(s string, sep byte) []string {
	var parts []string
	inQuotes := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuotes = !inQuotes
		case sep:
			if !inQuotes {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
