// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the RewardGrant upsert that serves as the
// only synchronization primitive for reward idempotency.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/growth-loop-backend/internal/domain"
)

// GetRewardByDedupeKey returns the grant stored under key, or ErrNotFound.
func GetRewardByDedupeKey(ctx context.Context, db *gorm.DB, key string) (*domain.RewardGrant, error) {
	var g domain.RewardGrant
	if err := db.WithContext(ctx).Where("dedupe_key = ?", key).First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

// UpsertTerminalReward writes g (status granted or denied) in a single
// statement:
//
//	INSERT ... ON CONFLICT (dedupe_key) DO UPDATE SET ... WHERE reward_grants.status = 'pending'
//
// A row that is absent or still pending is moved to g's status and settled is
// true. A row already in a terminal state is left untouched and settled is
// false; the caller must then read the stored outcome back. Either way the
// returned grant is the row as stored after the statement.
func UpsertTerminalReward(ctx context.Context, db *gorm.DB, g *domain.RewardGrant) (stored *domain.RewardGrant, settled bool, err error) {
	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now

	res := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "dedupe_key"}},
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "reward_grants.status = ?", Vars: []any{string(domain.RewardPending)}},
		}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "type", "amount", "loop", "denied_reason", "granted_at", "updated_at",
		}),
	}).Create(g)
	if res.Error != nil {
		return nil, false, res.Error
	}

	stored, err = GetRewardByDedupeKey(ctx, db, g.DedupeKey)
	if err != nil {
		return nil, false, err
	}
	return stored, res.RowsAffected == 1, nil
}
