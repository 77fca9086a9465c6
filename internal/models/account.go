package models

import (
	"time"

	"github.com/google/uuid"
)

// User populations tracked by the engine.
const (
	UserTypeCompany  = "company"
	UserTypeProvider = "provider"
)

// ValidUserType reports whether t is one of the two tracked populations.
func ValidUserType(t string) bool {
	return t == UserTypeCompany || t == UserTypeProvider
}

// Account holds the cached point/level aggregate for one user. It is created
// lazily on first point award and mutated only through the points ledger.
type Account struct {
	UserID       uuid.UUID `json:"user_id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	UserType     string    `json:"user_type"`
	TotalPoints  int       `json:"total_points"`
	CurrentLevel int       `json:"current_level"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
