package domain

// PlanLimits describes the quota attached to a plan.
// A MessageLimit of 0 on the pro plan means unlimited.
type PlanLimits struct {
	Plan         Plan  `json:"plan"`
	MessageLimit int64 `json:"message_limit"`
	Unlimited    bool  `json:"unlimited"`
}

// Plans is the catalogue of subscription tiers.
var Plans = map[Plan]PlanLimits{
	PlanStarter:  {Plan: PlanStarter, MessageLimit: 500},
	PlanBusiness: {Plan: PlanBusiness, MessageLimit: 5000},
	PlanPro:      {Plan: PlanPro, MessageLimit: 0, Unlimited: true},
}

// ValidPlan reports whether p is in the catalogue.
func ValidPlan(p Plan) bool {
	_, ok := Plans[p]
	return ok
}

// LimitsFor returns the catalogue entry for p, falling back to starter.
func LimitsFor(p Plan) PlanLimits {
	if l, ok := Plans[p]; ok {
		return l
	}
	return Plans[PlanStarter]
}

// DefaultChatbotConfig is applied to newly provisioned tenants.
func DefaultChatbotConfig() ChatbotConfig {
	return ChatbotConfig{
		WelcomeMessage: "Hi! How can we help you today?",
		Tone:           ToneFriendly,
		Enabled:        true,
		PrimaryColor:   "#2563EB",
		Position:       PositionBottomRight,
	}
}
