package materializer

import (
	"strings"

	"hybridmail/internal/domain"
)

// companyDomainAndName derives a company's unique domain key and display
// name from a contact's email address, per the data model's rule: strip the
// TLD-class suffix and title-case the remainder. Free-webmail domains never
// yield a company; ok is false for them.
func companyDomainAndName(email string) (domainKey, name string, ok bool) {
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return "", "", false
	}
	host := strings.ToLower(email[at+1:])
	if domain.FreeWebmailDomains[host] {
		return "", "", false
	}

	labels := strings.Split(host, ".")
	stem := host
	if len(labels) > 1 {
		stem = strings.Join(labels[:len(labels)-1], ".")
	}
	// Only the final label is stripped; a stem with more than one label
	// reduces to its rightmost label for the display name (e.g. "sub.example"
	// from "sub.example.org" gives "Example", and "acme.co.uk" gives "Co").
	nameParts := strings.Split(stem, ".")
	return host, titleCase(nameParts[len(nameParts)-1]), true
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '_' })
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
