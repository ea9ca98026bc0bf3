package syncstaterepo

import (
	"time"

	"github.com/pulsedev/pulse/internal/infra/persistence/commonrepo"
)

type SyncState struct {
	commonrepo.Model
	TaskID        string     `gorm:"column:task_id;size:128;not null;uniqueIndex"`
	LastSuccessAt *time.Time `gorm:"column:last_success_at"`
	LastOutcome   string     `gorm:"column:last_outcome;size:512"`
}

func (SyncState) TableName() string {
	return "sync_states"
}
