package user

import (
	"time"

	"github.com/google/uuid"
)

// State is a short self-report captured from a state_share utterance,
// e.g. {state_type: "fatigue", value: "sleepy"}.
type State struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	StateType string    `gorm:"type:text;not null;index" json:"state_type"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	EntryID   uuid.UUID `gorm:"type:uuid;index" json:"entry_id"`
	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (State) TableName() string { return "user_state" }
