// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file covers guest completions, referrals and the
// read-only persona lookup used during conversion and reward planning.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/growth-loop-backend/internal/domain"
)

// CreateGuestCompletion stores a pending completion.
func CreateGuestCompletion(ctx context.Context, db *gorm.DB, c *domain.GuestCompletion) error {
	if c.Status == "" {
		c.Status = domain.GuestPending
	}
	return db.WithContext(ctx).Create(c).Error
}

// ListPendingGuestCompletions returns the session's unconverted completions in
// the order they were recorded.
func ListPendingGuestCompletions(ctx context.Context, db *gorm.DB, guestSessionID string) ([]domain.GuestCompletion, error) {
	var out []domain.GuestCompletion
	err := db.WithContext(ctx).
		Where("guest_session_id = ? AND status = ?", guestSessionID, domain.GuestPending).
		Order("created_at asc").
		Order("id asc").
		Find(&out).Error
	return out, err
}

// MarkGuestConverted flips a pending completion to converted. It reports false
// when the row was already converted (or does not exist), which callers treat
// as "skip".
func MarkGuestConverted(ctx context.Context, db *gorm.DB, id, userID string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.GuestCompletion{}).
		Where("id = ? AND status = ?", id, domain.GuestPending).
		Updates(map[string]any{
			"status":            domain.GuestConverted,
			"converted_user_id": userID,
			"converted_at":      at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CreateReferral inserts r; a second referral for the same completion is
// reported as ErrDuplicate.
func CreateReferral(ctx context.Context, db *gorm.DB, r *domain.Referral) error {
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// ListReferralsByInviter returns referrals credited to inviterID, newest first.
func ListReferralsByInviter(ctx context.Context, db *gorm.DB, inviterID string) ([]domain.Referral, error) {
	var out []domain.Referral
	err := db.WithContext(ctx).
		Where("inviter_id = ?", inviterID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// GetUserPersona returns the persona stored for userID, or ErrNotFound.
func GetUserPersona(ctx context.Context, db *gorm.DB, userID string) (domain.PersonaType, error) {
	var p domain.UserProfile
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return "", err
	}
	return p.PersonaType, nil
}

// SaveUserProfile inserts or replaces a profile row. The account system owns
// this table in production; the helper exists for seeding.
func SaveUserProfile(ctx context.Context, db *gorm.DB, userID string, persona domain.PersonaType) error {
	return db.WithContext(ctx).Save(&domain.UserProfile{
		UserID:      userID,
		PersonaType: persona,
		UpdatedAt:   time.Now().UTC(),
	}).Error
}
