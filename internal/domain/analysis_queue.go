package domain

import (
	"time"
)

// SyncStatus is the lifecycle state of an AnalysisQueue entry.
// Values match the integers persisted by earlier releases.
type SyncStatus int

const (
	SyncStatusStarted   SyncStatus = 1
	SyncStatusFailed    SyncStatus = 2
	SyncStatusInQueue   SyncStatus = 3
	SyncStatusCompleted SyncStatus = 4
)

func (s SyncStatus) String() string {
	switch s {
	case SyncStatusStarted:
		return "STARTED"
	case SyncStatusFailed:
		return "FAILED"
	case SyncStatusInQueue:
		return "IN_QUEUE"
	case SyncStatusCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition is allowed.
func (s SyncStatus) Terminal() bool {
	return s == SyncStatusCompleted || s == SyncStatusFailed
}

// MarshalText renders the status by name in API payloads.
func (s SyncStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseSyncStatus maps a status name back to its value.
func ParseSyncStatus(name string) (SyncStatus, bool) {
	for _, s := range []SyncStatus{SyncStatusInQueue, SyncStatusStarted, SyncStatusCompleted, SyncStatusFailed} {
		if s.String() == name {
			return s, true
		}
	}
	return 0, false
}

// AnalysisQueue is one request to (re)compute forest metrics for its farms.
// IDs are sequential so ordering by id is creation order.
type AnalysisQueue struct {
	ID        uint       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Status    SyncStatus `gorm:"column:status;not null;default:3;index" json:"status"`
	Farms     []Farm     `gorm:"many2many:analysis_queue_farms" json:"farms,omitempty"`
	Error     *string    `gorm:"column:error;type:text" json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (AnalysisQueue) TableName() string {
	return "analysis_queues"
}

// FarmIDs returns the ids of the farms the entry references.
func (q *AnalysisQueue) FarmIDs() []string {
	ids := make([]string, 0, len(q.Farms))
	for _, f := range q.Farms {
		ids = append(ids, f.ID.String())
	}
	return ids
}
