package notification

import (
	"time"

	"github.com/gofrs/uuid"
)

// ReferenceTypeOrder is the reference_type for notifications pointing at an
// order row.
const ReferenceTypeOrder = "order"

type Notification struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	ReferenceID   uuid.UUID `json:"reference_id"`
	ReferenceType string    `json:"reference_type"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"created_at"`
}
