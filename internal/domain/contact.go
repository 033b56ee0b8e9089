package domain

import "time"

// Contact is a per-tenant, unique-by-email address book entry.
type Contact struct {
	ID         int64
	TenantID   string
	Email      string
	Name       string
	CompanyID  *int64
	FirstSeen  time.Time
	LastSeen   time.Time
	EmailCount int64
}

// Company is a per-tenant, unique-by-domain organization derived from
// non-free-webmail contact email addresses.
type Company struct {
	ID           int64
	TenantID     string
	Domain       string
	Name         string
	TotalEmails  int64
	FirstContact time.Time
	LastContact  time.Time
}

// FreeWebmailDomains never yield a Company, per the data model invariant.
var FreeWebmailDomains = map[string]bool{
	"gmail.com":   true,
	"yahoo.com":   true,
	"hotmail.com": true,
	"outlook.com": true,
	"icloud.com":  true,
}
