// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the append-only
// LedgerEntry model.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/growth-loop-backend/internal/domain"
)

// LedgerFilter narrows ledger queries. Zero values mean "no filter".
type LedgerFilter struct {
	UserID string
	Type   domain.LedgerEntryType
}

func (f LedgerFilter) apply(q *gorm.DB) *gorm.DB {
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	return q
}

// CreateLedgerEntry appends e. A second entry for the same reward_id violates
// ux_ledger_reward and is reported as ErrDuplicate.
func CreateLedgerEntry(ctx context.Context, db *gorm.DB, e *domain.LedgerEntry) error {
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetLedgerByRewardID returns the entry written for a grant, or ErrNotFound.
func GetLedgerByRewardID(ctx context.Context, db *gorm.DB, rewardID string) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	if err := db.WithContext(ctx).Where("reward_id = ?", rewardID).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// CountLedger returns the number of entries matching f.
func CountLedger(ctx context.Context, db *gorm.DB, f LedgerFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.LedgerEntry{})).Count(&total).Error
	return total, err
}

// ListLedgerPage returns entries matching f, newest first.
// The caller is responsible for computing offset and limit.
func ListLedgerPage(ctx context.Context, db *gorm.DB, f LedgerFilter, offset, limit int) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	err := f.apply(db.WithContext(ctx).Model(&domain.LedgerEntry{})).
		Order("created_at desc").
		Order("id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
