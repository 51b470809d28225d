package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"aitools-pro-billing/internal/domain"
	"aitools-pro-billing/internal/domain/model"
	"aitools-pro-billing/internal/domain/ports/repository"
)

var _ EntitlementUseCase = (*entitlementUC)(nil)

// Entitlement is the read model handed to "is this user Pro?" consumers.
type Entitlement struct {
	Email        string                   `json:"email"`
	Status       model.SubscriptionStatus `json:"status"`
	Tier         model.SubscriptionTier   `json:"tier,omitempty"`
	ProEnabled   bool                     `json:"pro_enabled"`
	PremiumBadge bool                     `json:"premium_badge"`
	EndsAt       *time.Time               `json:"ends_at"`
	UpdatedAt    *time.Time               `json:"updated_at,omitempty"`
}

type EntitlementUseCase interface {
	// Get returns the projection for email; unknown emails get status none.
	Get(ctx context.Context, email string) (*Entitlement, error)
}

type entitlementUC struct {
	subs repository.SubscriberRepository
	log  *zerolog.Logger
}

func NewEntitlementUseCase(subs repository.SubscriberRepository, logger *zerolog.Logger) *entitlementUC {
	l := logger.With().Str("component", "EntitlementUseCase").Logger()
	return &entitlementUC{subs: subs, log: &l}
}

func (u *entitlementUC) Get(ctx context.Context, email string) (*Entitlement, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, domain.ErrInvalidArgument
	}
	s, err := u.subs.FindByEmail(ctx, repository.NoTX, email)
	if errors.Is(err, domain.ErrNotFound) {
		return &Entitlement{Email: email, Status: model.SubscriptionStatusNone}, nil
	}
	if err != nil {
		u.log.Error().Err(err).Msg("entitlement lookup failed")
		return nil, err
	}
	updated := s.UpdatedAt
	return &Entitlement{
		Email:        s.Email,
		Status:       s.Status,
		Tier:         s.Tier,
		ProEnabled:   s.ProEnabled,
		PremiumBadge: s.PremiumBadge,
		EndsAt:       s.EndsAt,
		UpdatedAt:    &updated,
	}, nil
}
