package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/growth-loop-backend/internal/domain"
)

// CreateXpEvent appends one XP event.
func CreateXpEvent(ctx context.Context, db *gorm.DB, e *domain.XpEvent) error {
	return db.WithContext(ctx).Create(e).Error
}

// GetXpEvent fetches an event by id, or ErrNotFound.
func GetXpEvent(ctx context.Context, db *gorm.DB, id string) (*domain.XpEvent, error) {
	var e domain.XpEvent
	if err := db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// ListXpEvents returns all events for userID, optionally limited to persona,
// oldest first.
func ListXpEvents(ctx context.Context, db *gorm.DB, userID string, persona *domain.PersonaType) ([]domain.XpEvent, error) {
	q := db.WithContext(ctx).Where("user_id = ?", userID)
	if persona != nil {
		q = q.Where("persona_type = ?", *persona)
	}
	var out []domain.XpEvent
	err := q.Order("created_at asc").Order("id asc").Find(&out).Error
	return out, err
}

// SumXP sums raw_xp for userID, optionally limited to persona.
func SumXP(ctx context.Context, db *gorm.DB, userID string, persona *domain.PersonaType) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.XpEvent{}).Where("user_id = ?", userID)
	if persona != nil {
		q = q.Where("persona_type = ?", *persona)
	}
	var total int64
	err := q.Select("COALESCE(SUM(raw_xp), 0)").Scan(&total).Error
	return total, err
}
