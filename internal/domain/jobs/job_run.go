package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Lanes separate sub-minute background work from multi-minute work.
// Interactive paths may enqueue into either lane but never await heavy work.
const (
	LaneFast  = "fast"
	LaneHeavy = "heavy"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// Job types registered with the worker runtime.
const (
	TypeContextAnalyze   = "context_analyze"
	TypeStructureAnalyze = "structure_analyze"
	TypeRefineInsight    = "refine_insight"
	TypeDeepResearch     = "deep_research"
	TypePolicyReevaluate = "policy_reevaluate"
)

// JobRun is one unit of background work and doubles as the BackgroundTask
// handle returned to clients (task id, type, status, result entry id).
type JobRun struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	JobType     string         `gorm:"column:job_type;not null;index" json:"job_type"`
	Lane        string         `gorm:"column:lane;not null;default:'fast';index" json:"lane"`
	EntityType  string         `gorm:"column:entity_type;index" json:"entity_type,omitempty"`
	EntityID    *uuid.UUID     `gorm:"type:uuid;column:entity_id;index" json:"entity_id,omitempty"`
	ThreadID    *uuid.UUID     `gorm:"type:uuid;column:thread_id;index" json:"thread_id,omitempty"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	Stage       string         `gorm:"column:stage;not null;default:''" json:"stage"`
	Progress    int            `gorm:"column:progress;not null;default:0" json:"progress"`
	Attempts    int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	LockedAt    *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	LastErrorAt *time.Time     `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	Result      datatypes.JSON `gorm:"column:result;type:jsonb" json:"result"`
	CreatedAt   time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (JobRun) TableName() string { return "job_run" }

// LaneForType maps each job type to its lane. Structural and context
// analysis stay interactive-adjacent; everything else is heavy.
func LaneForType(jobType string) string {
	switch jobType {
	case TypeContextAnalyze, TypeStructureAnalyze:
		return LaneFast
	default:
		return LaneHeavy
	}
}
