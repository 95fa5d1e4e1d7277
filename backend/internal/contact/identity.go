package contact

import (
	"regexp"
	"strings"
)

// MatchMode controls how strictly company names are compared.
type MatchMode string

const (
	// MatchExact compares case-insensitively and nothing else, so
	// "Google" and "Google Inc." stay distinct.
	MatchExact MatchMode = "exact"
	// MatchNormalized also strips punctuation and legal suffixes.
	MatchNormalized MatchMode = "normalized"
)

var personalDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
	"yahoo.com":      true,
	"hotmail.com":    true,
	"outlook.com":    true,
	"live.com":       true,
	"msn.com":        true,
	"icloud.com":     true,
	"me.com":         true,
	"mac.com":        true,
	"aol.com":        true,
	"protonmail.com": true,
	"proton.me":      true,
	"gmx.com":        true,
	"yandex.com":     true,
}

var legalSuffixes = map[string]bool{
	"inc": true, "incorporated": true, "llc": true, "ltd": true, "limited": true,
	"corp": true, "corporation": true, "co": true, "gmbh": true, "ag": true,
	"plc": true, "sa": true, "bv": true, "oy": true, "ab": true, "pty": true,
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// IsPlaceholder reports whether email was synthesized by a connector because
// no real address was available.
func IsPlaceholder(email, suffix string) bool {
	e := NormalizeEmail(email)
	if e == "" || suffix == "" {
		return false
	}
	at := strings.LastIndex(e, "@")
	if at < 0 {
		return false
	}
	domain := e[at+1:]
	s := strings.ToLower(suffix)
	return domain == strings.TrimPrefix(s, ".") || strings.HasSuffix(domain, s)
}

// PlaceholderEmail builds firstname.lastname@domain for contacts exported
// without an address.
func PlaceholderEmail(firstName, lastName, domain string) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{firstName, lastName} {
		p = nonAlnum.ReplaceAllString(strings.ToLower(strings.TrimSpace(p)), "")
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "unknown")
	}
	return strings.Join(parts, ".") + "@" + strings.ToLower(domain)
}

// Domain returns the lower-cased domain part of an address.
func Domain(email string) string {
	e := NormalizeEmail(email)
	at := strings.LastIndex(e, "@")
	if at < 0 || at == len(e)-1 {
		return ""
	}
	return e[at+1:]
}

// CompanyDomain returns the domain usable as a company identity, or "" for
// personal mail providers and malformed addresses.
func CompanyDomain(email string) string {
	d := Domain(email)
	if d == "" || personalDomains[d] || !strings.Contains(d, ".") {
		return ""
	}
	return d
}

// CompanyKey produces the comparison key for a company name under mode.
func CompanyKey(name string, mode MatchMode) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if mode != MatchNormalized || key == "" {
		return key
	}
	words := strings.Fields(nonAlnum.ReplaceAllString(key, " "))
	for len(words) > 1 && legalSuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// SameCompany compares two company names under mode. Empty names never match.
func SameCompany(a, b string, mode MatchMode) bool {
	ka, kb := CompanyKey(a, mode), CompanyKey(b, mode)
	return ka != "" && ka == kb
}
