package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/growth-loop-backend/internal/domain"
	"github.com/tbourn/growth-loop-backend/internal/repo"
)

// PersonaResolver returns the persona used for policy selection and XP.
type PersonaResolver interface {
	Persona(ctx context.Context, userID string) (domain.PersonaType, error)
}

// ProfilePersonas reads personas from the user_profiles table. Users without
// a profile (or with an unrecognized persona) get domain.DefaultPersona.
type ProfilePersonas struct {
	DB *gorm.DB
}

// Persona implements PersonaResolver.
func (p ProfilePersonas) Persona(ctx context.Context, userID string) (domain.PersonaType, error) {
	got, err := repo.GetUserPersona(ctx, p.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.DefaultPersona, nil
	}
	if err != nil {
		return "", err
	}
	if _, perr := domain.ParsePersona(string(got)); perr != nil {
		return domain.DefaultPersona, nil
	}
	return got, nil
}
