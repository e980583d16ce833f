package entry

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Intent is the classified purpose of one utterance.
type Intent string

const (
	IntentChat       Intent = "chat"
	IntentEmpathy    Intent = "empathy"
	IntentKnowledge  Intent = "knowledge"
	IntentDeepDive   Intent = "deep_dive"
	IntentBrainstorm Intent = "brainstorm"
	IntentStateShare Intent = "state_share"
	IntentProbe      Intent = "probe"
	IntentResearch   Intent = "research"
)

// Valid reports whether v names a known intent.
func (i Intent) Valid() bool {
	switch i {
	case IntentChat, IntentEmpathy, IntentKnowledge, IntentDeepDive,
		IntentBrainstorm, IntentStateShare, IntentProbe, IntentResearch:
		return true
	}
	return false
}

const (
	ContentTypeText  = "text"
	ContentTypeVoice = "voice"
)

// Entry is one persisted user utterance plus its derived analysis state.
// ThreadID nil means this entry roots a new thread; the thread is the set of
// entries sharing the root's id. ThreadID never changes after creation.
type Entry struct {
	ID       uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	ThreadID *uuid.UUID `gorm:"type:uuid;index" json:"thread_id,omitempty"`

	Content     string `gorm:"type:text;not null" json:"content"`
	ContentType string `gorm:"type:text;not null;default:'text'" json:"content_type"`

	Intent   string         `gorm:"type:text;index" json:"intent,omitempty"`
	Emotions datatypes.JSON `gorm:"type:jsonb" json:"emotions,omitempty"`
	Topics   datatypes.JSON `gorm:"type:jsonb" json:"topics,omitempty"`

	StructuralAnalysis datatypes.JSON `gorm:"type:jsonb" json:"structural_analysis,omitempty"`
	AssistantReply     *string        `gorm:"type:text" json:"assistant_reply,omitempty"`

	// Completion flags, each flipped exactly once by its owning background
	// task. Monotonic: true never reverts.
	IsAnalyzed            bool `gorm:"not null;default:false;index" json:"is_analyzed"`
	IsStructureAnalyzed   bool `gorm:"not null;default:false;index" json:"is_structure_analyzed"`
	IsProcessedForInsight bool `gorm:"not null;default:false;index" json:"is_processed_for_insight"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Entry) TableName() string { return "entry" }

// RootThreadID returns the id of the thread this entry belongs to.
func (e *Entry) RootThreadID() uuid.UUID {
	if e.ThreadID != nil {
		return *e.ThreadID
	}
	return e.ID
}
