// Package services – WidgetService
//
// WidgetService serves anonymous widget traffic. A visitor message passes,
// in order: input validation, origin validation, idempotent replay, usage
// admission, conversation resolution, and the paired user/assistant write.
// The tenant id comes only from the request's clientId and is trusted only
// after the origin check passed.
package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
	"github.com/tbourn/go-chatwidget-saas/internal/observability"
	"github.com/tbourn/go-chatwidget-saas/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultIdempotencyTTL is how long a widget Idempotency-Key is remembered.
const DefaultIdempotencyTTL = 24 * time.Hour

// MaxIdempotencyKeyLen bounds the Idempotency-Key header.
const MaxIdempotencyKeyLen = 128

// ChatInput is one visitor turn.
type ChatInput struct {
	TenantID       string
	Origin         string
	VisitorID      string
	ConversationID string
	Source         domain.Source
	Message        string
	IdempotencyKey string
}

// ChatResult is the outcome of a visitor turn.
type ChatResult struct {
	VisitorID    string
	Conversation *domain.Conversation
	UserMessage  *domain.Message
	Reply        *domain.Message
	// Replayed is true when the result was served from an earlier request
	// with the same Idempotency-Key.
	Replayed bool
}

// WidgetService implements the widget config and chat flows.
type WidgetService struct {
	DB      *gorm.DB
	Origins *OriginValidator
	Ledger  *Ledger
	Usage   UsageAccounting
	Replies ReplyGenerator

	IdempotencyTTL time.Duration
}

// Config returns the widget configuration for a validated origin.
func (s *WidgetService) Config(ctx context.Context, tenantID, origin string) (*WidgetConfig, error) {
	return s.Origins.Validate(ctx, tenantID, origin)
}

// Chat records a visitor message and the generated reply.
func (s *WidgetService) Chat(ctx context.Context, in ChatInput) (*ChatResult, error) {
	ctx, span := otel.Tracer("services/WidgetService").Start(ctx, "Chat",
		trace.WithAttributes(
			attribute.String("tenant.id", in.TenantID),
			attribute.String("conversation.id", in.ConversationID),
		),
	)
	defer span.End()

	res, err := s.chat(ctx, in)
	observability.WidgetMessages.WithLabelValues(chatOutcome(res, err)).Inc()
	return res, err
}

func (s *WidgetService) chat(ctx context.Context, in ChatInput) (*ChatResult, error) {
	in, err := normalizeChatInput(in)
	if err != nil {
		return nil, err
	}

	wc, err := s.Origins.Validate(ctx, in.TenantID, in.Origin)
	if err != nil {
		return nil, err
	}
	if !wc.Enabled {
		return nil, ErrChatbotDisabled
	}

	if in.IdempotencyKey != "" && in.VisitorID != "" {
		if res, err := s.replay(ctx, in); err == nil {
			return res, nil
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}

	// An explicit conversation must be this tenant's and still active. It
	// is checked before admission so a bad id never consumes quota.
	var conv *domain.Conversation
	if in.ConversationID != "" {
		c, err := repo.GetConversation(ctx, s.DB, in.TenantID, in.ConversationID)
		if err != nil {
			return nil, notFound(err)
		}
		if c.Status != domain.ConversationActive || (in.VisitorID != "" && c.VisitorID != in.VisitorID) {
			return nil, ErrNotFound
		}
		conv = c
		in.VisitorID = c.VisitorID
	}
	if in.VisitorID == "" {
		in.VisitorID = uuid.NewString()
	}

	reply, err := s.Replies.Reply(ctx, ReplyRequest{
		TenantName: wc.Name,
		Tone:       wc.Config.Tone,
		Message:    in.Message,
	})
	if err != nil {
		return nil, err
	}

	if err := s.Usage.Admit(ctx, in.TenantID); err != nil {
		return nil, err
	}

	if conv == nil {
		conv, err = s.Ledger.GetOrCreateActiveConversation(ctx, in.TenantID, in.VisitorID, in.Source)
		if err != nil {
			s.refund(ctx, in.TenantID)
			return nil, err
		}
	}

	out := &ChatResult{VisitorID: in.VisitorID}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		um, err := s.Ledger.appendTx(ctx, tx, in.TenantID, conv.ID, domain.MessageUser, in.Message, nil)
		if err != nil {
			return err
		}
		am, err := s.Ledger.appendTx(ctx, tx, in.TenantID, conv.ID, domain.MessageAssistant, reply.Content, reply.Metadata)
		if err != nil {
			return err
		}
		out.UserMessage, out.Reply = um, am
		return nil
	})
	if err != nil {
		s.refund(ctx, in.TenantID)
		return nil, err
	}

	if c, err := repo.GetConversation(ctx, s.DB, in.TenantID, conv.ID); err == nil {
		conv = c
	}
	out.Conversation = conv

	if in.IdempotencyKey != "" {
		s.remember(ctx, in, out)
	}
	return out, nil
}

func normalizeChatInput(in ChatInput) (ChatInput, error) {
	in.TenantID = strings.TrimSpace(in.TenantID)
	if in.TenantID == "" {
		return in, invalid("clientId", "is required")
	}
	in.Message = domain.NormalizeText(in.Message)
	if err := domain.ValidateContent(in.Message); err != nil {
		return in, err
	}
	in.VisitorID = strings.TrimSpace(in.VisitorID)
	if in.VisitorID != "" {
		if err := domain.ValidateVisitorID(in.VisitorID); err != nil {
			return in, err
		}
	}
	in.ConversationID = strings.TrimSpace(in.ConversationID)
	if in.Source == "" {
		in.Source = domain.SourceWebsite
	}
	if !in.Source.Valid() {
		return in, invalid("source", "must be one of website, whatsapp, facebook, instagram, mobile")
	}
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if len(in.IdempotencyKey) > MaxIdempotencyKeyLen {
		return in, invalid("Idempotency-Key", "must be at most 128 characters")
	}
	return in, nil
}

// replay serves an earlier result stored under the same key, or returns
// repo.ErrNotFound.
func (s *WidgetService) replay(ctx context.Context, in ChatInput) (*ChatResult, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, in.TenantID, in.VisitorID, in.IdempotencyKey, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	conv, err := repo.GetConversation(ctx, s.DB, in.TenantID, rec.ConversationID)
	if err != nil {
		return nil, err
	}
	msgs, err := repo.GetMessagesByID(ctx, s.DB, in.TenantID, rec.UserMessageID, rec.ReplyMessageID)
	if err != nil {
		return nil, err
	}
	um, ok1 := msgs[rec.UserMessageID]
	am, ok2 := msgs[rec.ReplyMessageID]
	if !ok1 || !ok2 {
		return nil, repo.ErrNotFound
	}
	return &ChatResult{
		VisitorID:    in.VisitorID,
		Conversation: conv,
		UserMessage:  &um,
		Reply:        &am,
		Replayed:     true,
	}, nil
}

func (s *WidgetService) remember(ctx context.Context, in ChatInput, out *ChatResult) {
	ttl := s.IdempotencyTTL
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	_, err := repo.CreateIdempotency(ctx, s.DB, in.TenantID, in.VisitorID, in.IdempotencyKey, repo.IdempotencyResult{
		ConversationID: out.Conversation.ID,
		UserMessageID:  out.UserMessage.ID,
		ReplyMessageID: out.Reply.ID,
		Status:         http.StatusCreated,
	}, ttl)
	if err != nil && !errors.Is(err, repo.ErrDuplicate) {
		log.Warn().Err(err).Str("tenant_id", in.TenantID).Msg("idempotency record not stored")
	}
}

func (s *WidgetService) refund(ctx context.Context, tenantID string) {
	_ = s.Usage.Refund(ctx, tenantID)
}

func chatOutcome(res *ChatResult, err error) string {
	switch {
	case err == nil && res != nil && res.Replayed:
		return "replay"
	case err == nil:
		return "ok"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrSubscriptionInactive):
		return "subscription_inactive"
	case errors.Is(err, ErrOriginNotAllowed), errors.Is(err, ErrTenantInactive):
		return "origin_denied"
	case errors.Is(err, ErrChatbotDisabled):
		return "disabled"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "invalid"
	}
	return "error"
}
