package domain

import (
	"errors"
	"testing"
)

func TestNormalizeDomain_Canonical(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://www.Example.com/chat", "example.com"},
		{"example.com", "example.com"},
		{"WWW.EXAMPLE.COM", "example.com"},
		{"  http://user:pw@shop.example.com:8443/a?b=c#d  ", "shop.example.com"},
		{"//cdn.example.com/x.js", "cdn.example.com"},
		{"example.com.", "example.com"},
		{"www.www.example.com", "example.com"},
		{"localhost:3000", "localhost"},
		{"https://bücher.de", "xn--bcher-kva.de"},
		{"xn--bcher-kva.de", "xn--bcher-kva.de"},
		{"example.com?ref=1", "example.com"},
	}
	for _, c := range cases {
		got, err := NormalizeDomain(c.in)
		if err != nil {
			t.Fatalf("NormalizeDomain(%q) error: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("NormalizeDomain(%q) = %q; want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeDomain_Rejects(t *testing.T) {
	for _, in := range []string{
		"",
		"   ",
		"https://",
		"http://[::1]:8080",
		"exa mple.com",
		"-bad.com",
		"bad-.com",
		"a..b",
		"under_score.com",
		"example.com:abc",
	} {
		if _, err := NormalizeDomain(in); !errors.Is(err, ErrInvalidDomain) {
			t.Fatalf("NormalizeDomain(%q) err = %v; want ErrInvalidDomain", in, err)
		}
	}
}

func TestNormalizeDomain_Idempotent(t *testing.T) {
	inputs := []string{
		"https://www.Example.com/chat",
		"WWW.EXAMPLE.COM",
		"Shop.Example.COM:443",
		"https://bücher.de/path",
		"www.www.a.io",
		"ftp://x.y.z.",
	}
	for _, in := range inputs {
		once, err := NormalizeDomain(in)
		if err != nil {
			t.Fatalf("first pass %q: %v", in, err)
		}
		twice, err := NormalizeDomain(once)
		if err != nil {
			t.Fatalf("second pass %q: %v", once, err)
		}
		if once != twice {
			t.Fatalf("not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestNormalizeOrigin_Lenient(t *testing.T) {
	if got := NormalizeOrigin("null"); got != "" {
		t.Fatalf("null origin = %q; want empty", got)
	}
	if got := NormalizeOrigin("not a host"); got != "" {
		t.Fatalf("garbage origin = %q; want empty", got)
	}
	if got := NormalizeOrigin("https://www.acme.com"); got != "acme.com" {
		t.Fatalf("origin = %q; want acme.com", got)
	}
}

func TestNormalizeDomains_Dedupes(t *testing.T) {
	got, err := NormalizeDomains([]string{"acme.com", "https://www.acme.com", "Shop.Acme.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "acme.com" || got[1] != "shop.acme.com" {
		t.Fatalf("NormalizeDomains = %v", got)
	}
	if _, err := NormalizeDomains([]string{"acme.com", "bad domain"}); err == nil {
		t.Fatalf("expected error for invalid entry")
	}
}
