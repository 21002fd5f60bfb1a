package domain

import (
	"time"

	"github.com/google/uuid"
)

// NetworkRecord is a registered network. Source holds the definition exactly
// as uploaded; it is only loaded by GetByID.
type NetworkRecord struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Format    string    `json:"format"`
	Source    string    `json:"source,omitempty"`
	Variables int       `json:"variables"`
	Edges     int       `json:"edges"`
	CreatedAt time.Time `json:"created_at"`
}
