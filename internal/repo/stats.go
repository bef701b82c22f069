// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/growth-loop-backend/internal/domain"
)

// LedgerStats returns aggregate metadata for ledger entries matching f: the
// total number of rows and the newest CreatedAt among them. Since the ledger
// is append-only, the pair changes whenever the visible result set does.
//
// When nothing matches, the returned count is 0 and maxCreatedAt is nil.
func LedgerStats(ctx context.Context, db *gorm.DB, f LedgerFilter) (count int64, maxCreatedAt *time.Time, err error) {
	q := f.apply(db.WithContext(ctx).Model(&domain.LedgerEntry{}))

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = f.apply(db.WithContext(ctx).Model(&domain.LedgerEntry{})).
		Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}

// SumLedgerCost returns the summed total_cost_cents of entries matching f.
func SumLedgerCost(ctx context.Context, db *gorm.DB, f LedgerFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.LedgerEntry{})).
		Select("COALESCE(SUM(total_cost_cents), 0)").
		Scan(&total).Error
	return total, err
}
