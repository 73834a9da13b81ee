// Package profile manages the user's self-description: display name, MBTI
// type and birth date, from which the zodiac sign is derived.
package profile

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/typemate/typemate/internal/apperr"
	"github.com/typemate/typemate/internal/core/astro"
	"github.com/typemate/typemate/internal/core/model"
	"github.com/typemate/typemate/internal/core/persona"
	"github.com/typemate/typemate/internal/store"
)

type Input struct {
	DisplayName string `json:"display_name" binding:"max=80"`
	MBTIType    string `json:"mbti_type" binding:"omitempty,mbti"`
	BirthDate   string `json:"birth_date" binding:"omitempty,datetime=2006-01-02"`
}

type Service struct {
	store  store.ProfileStore
	logger *zap.Logger
	now    func() time.Time
}

func NewService(ps store.ProfileStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  ps,
		logger: logger.Named("profile"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Get(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("profile not found")
		}
		return nil, apperr.Internal("failed to load profile", err)
	}
	return p, nil
}

// Upsert replaces the profile. The zodiac sign is always recomputed from the
// birth date and cleared when the birth date is removed.
func (s *Service) Upsert(ctx context.Context, userID string, in Input) (*model.Profile, error) {
	now := s.now()
	p := &model.Profile{
		UserID:      userID,
		DisplayName: strings.TrimSpace(in.DisplayName),
		BirthDate:   strings.TrimSpace(in.BirthDate),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if in.MBTIType != "" {
		code, ok := persona.Normalize(in.MBTIType)
		if !ok {
			return nil, apperr.Validationf("invalid MBTI type %q", in.MBTIType)
		}
		p.MBTIType = code
	}
	if p.BirthDate != "" {
		sign, err := astro.ZodiacSign(p.BirthDate)
		if err != nil {
			return nil, apperr.Validation("birth_date must be YYYY-MM-DD")
		}
		p.ZodiacSign = string(sign)
	}

	if existing, err := s.store.GetProfile(ctx, userID); err == nil {
		p.CreatedAt = existing.CreatedAt
	}
	if err := s.store.UpsertProfile(ctx, p); err != nil {
		return nil, apperr.Internal("failed to save profile", err)
	}
	return p, nil
}

// Horoscope returns today's fortune for the user's zodiac sign.
func (s *Service) Horoscope(ctx context.Context, userID string, day time.Time) (*astro.Fortune, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	sign, ok := astro.ParseSign(p.ZodiacSign)
	if !ok {
		return nil, apperr.Validation("set a birth date in your profile to get a horoscope")
	}
	f := astro.DailyFortune(sign, day)
	return &f, nil
}
