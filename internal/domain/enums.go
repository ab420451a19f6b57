package domain

// Role is the account role carried by an authenticated identity.
type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleClient || r == RoleAdmin }

// Plan is a subscription tier.
type Plan string

const (
	PlanStarter  Plan = "starter"
	PlanBusiness Plan = "business"
	PlanPro      Plan = "pro"
)

// SubscriptionStatus mirrors the billing state of a tenant.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Valid reports whether s is a known subscription status.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionActive, SubscriptionPastDue, SubscriptionCancelled:
		return true
	}
	return false
}

// Tone selects the voice of canned assistant replies.
type Tone string

const (
	ToneFriendly     Tone = "friendly"
	ToneProfessional Tone = "professional"
	ToneCasual       Tone = "casual"
)

// Valid reports whether t is a known tone.
func (t Tone) Valid() bool {
	return t == ToneFriendly || t == ToneProfessional || t == ToneCasual
}

// Position is the corner of the host page the widget docks to.
type Position string

const (
	PositionBottomRight Position = "bottom-right"
	PositionBottomLeft  Position = "bottom-left"
)

// Valid reports whether p is a known widget position.
func (p Position) Valid() bool {
	return p == PositionBottomRight || p == PositionBottomLeft
}

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive    ConversationStatus = "active"
	ConversationResolved  ConversationStatus = "resolved"
	ConversationAbandoned ConversationStatus = "abandoned"
)

// Valid reports whether s is a known conversation status.
func (s ConversationStatus) Valid() bool {
	return s == ConversationActive || s == ConversationResolved || s == ConversationAbandoned
}

// Source identifies where a conversation was started.
type Source string

const (
	SourceWebsite   Source = "website"
	SourceWhatsApp  Source = "whatsapp"
	SourceFacebook  Source = "facebook"
	SourceInstagram Source = "instagram"
	SourceMobile    Source = "mobile"
)

// Valid reports whether s is a known conversation source.
func (s Source) Valid() bool {
	switch s {
	case SourceWebsite, SourceWhatsApp, SourceFacebook, SourceInstagram, SourceMobile:
		return true
	}
	return false
}

// MessageRole is the author of a message.
type MessageRole string

const (
	MessageUser      MessageRole = "user"
	MessageAssistant MessageRole = "assistant"
	MessageSystem    MessageRole = "system"
)

// Valid reports whether r is a known message role.
func (r MessageRole) Valid() bool {
	return r == MessageUser || r == MessageAssistant || r == MessageSystem
}
