package domain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxWelcomeMessageLen bounds ChatbotConfig.WelcomeMessage, in characters.
	MaxWelcomeMessageLen = 200
	// MaxMessageContentLen bounds Message.Content, in characters.
	MaxMessageContentLen = 5000
	// MaxVisitorIDLen bounds Conversation.VisitorID.
	MaxVisitorIDLen = 64
	// MaxTenantNameLen bounds Tenant.Name.
	MaxTenantNameLen = 200
)

var hexColorRe = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// visitor ids are opaque but restricted to a URL and log safe alphabet.
var visitorIDRe = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

// ValidationError reports malformed input on a named field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NormalizeText trims surrounding whitespace and applies Unicode NFC so that
// stored text and its length checks are stable across input encodings.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// ValidateContent checks a message body that has already been passed
// through NormalizeText.
func ValidateContent(content string) error {
	if content == "" {
		return invalid("message", "must not be empty")
	}
	if utf8.RuneCountInString(content) > MaxMessageContentLen {
		return invalid("message", fmt.Sprintf("must be at most %d characters", MaxMessageContentLen))
	}
	return nil
}

// ValidateVisitorID checks an opaque visitor identifier.
func ValidateVisitorID(id string) error {
	if id == "" {
		return invalid("visitorId", "must not be empty")
	}
	if len(id) > MaxVisitorIDLen || !visitorIDRe.MatchString(id) {
		return invalid("visitorId", "must be at most 64 characters of [A-Za-z0-9_.:-]")
	}
	return nil
}

// Validate checks the chatbot configuration.
func (c ChatbotConfig) Validate() error {
	if utf8.RuneCountInString(c.WelcomeMessage) > MaxWelcomeMessageLen {
		return invalid("welcomeMessage", fmt.Sprintf("must be at most %d characters", MaxWelcomeMessageLen))
	}
	if !c.Tone.Valid() {
		return invalid("tone", "must be one of professional, friendly, casual")
	}
	if !hexColorRe.MatchString(c.PrimaryColor) {
		return invalid("primaryColor", "must be a hex color such as #2563EB")
	}
	if !c.Position.Valid() {
		return invalid("position", "must be one of bottom-right, bottom-left")
	}
	return nil
}

// Validate checks the tenant record. Domain and AllowedDomains must already
// be in normalized form and AllowedDomains must contain Domain.
func (t *Tenant) Validate() error {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return invalid("name", "must not be empty")
	}
	if utf8.RuneCountInString(name) > MaxTenantNameLen {
		return invalid("name", fmt.Sprintf("must be at most %d characters", MaxTenantNameLen))
	}
	d, err := NormalizeDomain(t.Domain)
	if err != nil || d != t.Domain {
		return invalid("domain", "must be a bare normalized domain such as example.com")
	}
	containsOwn := false
	for _, a := range t.AllowedDomains {
		n, err := NormalizeDomain(a)
		if err != nil || n != a {
			return invalid("allowedDomains", fmt.Sprintf("%q is not a normalized domain", a))
		}
		if a == t.Domain {
			containsOwn = true
		}
	}
	if !containsOwn {
		return invalid("allowedDomains", "must contain the tenant domain")
	}
	if !ValidPlan(t.Plan) {
		return invalid("plan", "must be one of starter, business, pro")
	}
	if t.MessageLimit < 0 {
		return invalid("messageLimit", "must not be negative")
	}
	if !t.SubscriptionStatus.Valid() {
		return invalid("subscriptionStatus", "must be one of active, past_due, cancelled")
	}
	return t.ChatbotConfig.Validate()
}
