package insight

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StatusDraft           = "draft"
	StatusPendingApproval = "pending_approval"
	StatusApproved        = "approved"
	StatusRejected        = "rejected"
)

// Card is the shareable, privacy-sanitized distillation of one entry.
// SourceEntryID is the idempotency key: the pipeline never creates two cards
// from the same entry. Approved and rejected are terminal states.
type Card struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	AuthorID      uuid.UUID `gorm:"type:uuid;not null;index" json:"author_id"`
	SourceEntryID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"source_entry_id"`

	Title    string `gorm:"type:text;not null" json:"title"`
	Context  string `gorm:"type:text;not null;default:''" json:"context"`
	Problem  string `gorm:"type:text;not null;default:''" json:"problem"`
	Solution string `gorm:"type:text;not null;default:''" json:"solution"`
	Summary  string `gorm:"type:text;not null;default:''" json:"summary"`

	Topics datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"topics"`
	Tags   datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"tags"`

	// 0-100 estimate of how useful this card is to other users.
	SharingScore int    `gorm:"not null;default:0;index" json:"sharing_score"`
	Status       string `gorm:"type:text;not null;default:'draft';index" json:"status"`

	// Exact-match research cache key: sha256 of the normalized sanitized
	// query that produced this card, when it came from deep research.
	QueryHash string `gorm:"type:text;index" json:"query_hash,omitempty"`

	ViewCount   int `gorm:"not null;default:0" json:"view_count"`
	ThanksCount int `gorm:"not null;default:0" json:"thanks_count"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Card) TableName() string { return "insight_card" }

// Terminal reports whether the card's status can no longer change.
func (c *Card) Terminal() bool {
	return c.Status == StatusApproved || c.Status == StatusRejected
}
