package domain

import (
	"errors"
	"strings"

	"golang.org/x/net/idna"
)

// ErrInvalidDomain is returned by NormalizeDomain for input that does not
// reduce to a syntactically valid host name.
var ErrInvalidDomain = errors.New("invalid domain")

const maxDomainLen = 253

// NormalizeDomain reduces a URL, origin, or bare host to the canonical form
// stored in Tenant.Domain and Tenant.AllowedDomains: lowercase ASCII (IDNA),
// without scheme, userinfo, port, path, query, fragment, leading "www." or
// trailing dot.
//
// NormalizeDomain is idempotent: NormalizeDomain(NormalizeDomain(x)) equals
// NormalizeDomain(x) for every x it accepts.
func NormalizeDomain(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", ErrInvalidDomain
	}

	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	} else {
		s = strings.TrimPrefix(s, "//")
	}
	if i := strings.IndexAny(s, "/?#\\"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if strings.HasPrefix(s, "[") {
		// IPv6 literals are never valid embed hosts.
		return "", ErrInvalidDomain
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		if !allDigits(s[i+1:]) {
			return "", ErrInvalidDomain
		}
		s = s[:i]
	}

	s = strings.TrimRight(s, ".")
	if s == "" {
		return "", ErrInvalidDomain
	}

	ascii, err := idna.Lookup.ToASCII(s)
	if err != nil {
		return "", ErrInvalidDomain
	}
	s = strings.TrimRight(strings.ToLower(ascii), ".")
	for strings.HasPrefix(s, "www.") {
		s = s[len("www."):]
	}

	if !validHost(s) {
		return "", ErrInvalidDomain
	}
	return s, nil
}

// NormalizeOrigin is the lenient form used on request paths: it returns ""
// for anything NormalizeDomain rejects, including the literal "null" origin
// browsers send from sandboxed frames.
func NormalizeOrigin(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), "null") {
		return ""
	}
	d, err := NormalizeDomain(raw)
	if err != nil {
		return ""
	}
	return d
}

// NormalizeDomains normalizes every entry and removes duplicates, keeping the
// first occurrence order.
func NormalizeDomains(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		d, err := NormalizeDomain(r)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out, nil
}

func validHost(s string) bool {
	if s == "" || len(s) > maxDomainLen {
		return false
	}
	for _, label := range strings.Split(s, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
				return false
			}
		}
	}
	return true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
