package domain

import (
	"time"

	"github.com/google/uuid"
)

type MarginalRow struct {
	States      []string `json:"states"`
	Probability float64  `json:"probability"`
}

// QueryRecord is one answered query kept for history.
type QueryRecord struct {
	ID             uuid.UUID         `json:"id"`
	NetworkID      uuid.UUID         `json:"network_id"`
	Variables      []string          `json:"variables"`
	Evidence       map[string]string `json:"evidence,omitempty"`
	Heuristic      string            `json:"heuristic"`
	Rows           []MarginalRow     `json:"rows"`
	DurationMicros int64             `json:"duration_us"`
	CreatedAt      time.Time         `json:"created_at"`
}
