package services

import (
	"context"
	"strings"
	"time"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
)

// ReplyRequest is the input to a reply generator.
type ReplyRequest struct {
	TenantName string
	Tone       domain.Tone
	Message    string
}

// Reply is a generated assistant turn.
type Reply struct {
	Content  string
	Metadata *domain.AIMetadata
}

// ReplyGenerator produces the assistant's answer to a visitor message.
type ReplyGenerator interface {
	Reply(ctx context.Context, req ReplyRequest) (Reply, error)
}

// CannedModel is the model name CannedReplies reports.
const CannedModel = "canned-v1"

type cannedTopic struct {
	keywords []string
	replies  map[domain.Tone]string
	unnamed  map[domain.Tone]string // tenant has no display name
}

var cannedTopics = []cannedTopic{
	{
		keywords: []string{"hello", "hi", "hey", "good morning", "good afternoon"},
		replies: map[domain.Tone]string{
			domain.ToneProfessional: "Hello, and thank you for contacting %s. How may I assist you?",
			domain.ToneFriendly:     "Hi there! Thanks for stopping by %s. What can I help you with?",
			domain.ToneCasual:       "Hey! What's up? Ask me anything about %s.",
		},
		unnamed: map[domain.Tone]string{
			domain.ToneProfessional: "Hello, and thank you for contacting us. How may I assist you?",
			domain.ToneFriendly:     "Hi there! Thanks for stopping by. What can I help you with?",
			domain.ToneCasual:       "Hey! What's up? Ask me anything.",
		},
	},
	{
		keywords: []string{"price", "pricing", "cost", "plan", "quote"},
		replies: map[domain.Tone]string{
			domain.ToneProfessional: "Thank you for your interest. A member of the %s team will follow up with pricing details.",
			domain.ToneFriendly:     "Great question! Someone from %s will get back to you with pricing soon.",
			domain.ToneCasual:       "Pricing, got it. The %s folks will ping you with numbers.",
		},
		unnamed: map[domain.Tone]string{
			domain.ToneProfessional: "Thank you for your interest. A member of our team will follow up with pricing details.",
			domain.ToneFriendly:     "Great question! Someone from our team will get back to you with pricing soon.",
			domain.ToneCasual:       "Pricing, got it. We'll ping you with numbers.",
		},
	},
	{
		keywords: []string{"hours", "open", "opening", "schedule", "when"},
		replies: map[domain.Tone]string{
			domain.ToneProfessional: "Our team at %s will confirm availability and opening hours shortly.",
			domain.ToneFriendly:     "Happy to help! The %s team will confirm our hours for you shortly.",
			domain.ToneCasual:       "Good one. Someone at %s will let you know when we're around.",
		},
		unnamed: map[domain.Tone]string{
			domain.ToneProfessional: "Our team will confirm availability and opening hours shortly.",
			domain.ToneFriendly:     "Happy to help! Our team will confirm our hours for you shortly.",
			domain.ToneCasual:       "Good one. Someone will let you know when we're around.",
		},
	},
	{
		keywords: []string{"contact", "email", "phone", "call", "human", "agent"},
		replies: map[domain.Tone]string{
			domain.ToneProfessional: "I have noted your request. A representative of %s will contact you.",
			domain.ToneFriendly:     "Sure thing! I've let the %s team know you'd like to talk to someone.",
			domain.ToneCasual:       "On it. A real person from %s will reach out.",
		},
		unnamed: map[domain.Tone]string{
			domain.ToneProfessional: "I have noted your request. A representative will contact you.",
			domain.ToneFriendly:     "Sure thing! I've let our team know you'd like to talk to someone.",
			domain.ToneCasual:       "On it. A real person will reach out.",
		},
	},
}

var cannedFallback = map[domain.Tone]string{
	domain.ToneProfessional: "Thank you for your message. The %s team has received it and will respond shortly.",
	domain.ToneFriendly:     "Thanks for your message! The %s team will get back to you soon.",
	domain.ToneCasual:       "Got it! The %s crew will get back to you soon.",
}

var cannedUnnamedFallback = map[domain.Tone]string{
	domain.ToneProfessional: "Thank you for your message. Our team has received it and will respond shortly.",
	domain.ToneFriendly:     "Thanks for your message! Our team will get back to you soon.",
	domain.ToneCasual:       "Got it! We'll get back to you soon.",
}

// CannedReplies picks a tone-specific template by keyword. It stands in for
// a real model and never fails.
type CannedReplies struct{}

// Reply implements ReplyGenerator.
func (CannedReplies) Reply(ctx context.Context, req ReplyRequest) (Reply, error) {
	start := time.Now()

	tone := req.Tone
	if !tone.Valid() {
		tone = domain.ToneFriendly
	}
	name := strings.TrimSpace(req.TenantName)

	tmpl, confidence := cannedFallback[tone], 0.3
	if name == "" {
		tmpl = cannedUnnamedFallback[tone]
	}
	if words := tokenize(req.Message); len(words) > 0 {
	topics:
		for _, t := range cannedTopics {
			for _, kw := range t.keywords {
				if containsPhrase(words, kw) {
					tmpl, confidence = t.replies[tone], 0.8
					if name == "" {
						tmpl = t.unnamed[tone]
					}
					break topics
				}
			}
		}
	}

	return Reply{
		Content: strings.Replace(tmpl, "%s", name, 1),
		Metadata: &domain.AIMetadata{
			Model:      CannedModel,
			LatencyMS:  time.Since(start).Milliseconds(),
			Confidence: confidence,
		},
	}, nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '\''
	})
}

// containsPhrase reports whether the space separated phrase occurs as a run
// of whole words.
func containsPhrase(words []string, phrase string) bool {
	parts := strings.Fields(phrase)
	for i := 0; i+len(parts) <= len(words); i++ {
		match := true
		for j, p := range parts {
			if words[i+j] != p {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
