// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the SmartLink
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a link is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - A code collision on insert is reported as ErrDuplicate.
//   - Other DB errors are propagated unchanged.
//
// Links are immutable once issued, so there is no update or delete helper.
// Expiry is a read-time concern of the resolver.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/growth-loop-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateSmartLink inserts a fully populated link (code and signature already
// set). It returns ErrDuplicate if the code is taken.
func CreateSmartLink(ctx context.Context, db *gorm.DB, l *domain.SmartLink) error {
	if err := db.WithContext(ctx).Create(l).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetSmartLinkByCode fetches a link by its public code, or ErrNotFound.
func GetSmartLinkByCode(ctx context.Context, db *gorm.DB, code string) (*domain.SmartLink, error) {
	var l domain.SmartLink
	if err := db.WithContext(ctx).Where("code = ?", code).First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}
