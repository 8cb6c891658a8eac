package entities

import "time"

// Session is the locally persisted login: bearer token plus a minimal profile.
// At most one row exists; logout deletes it.
type Session struct {
	SessionID uint      `gorm:"primaryKey" json:"-"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncRecord persists a client/server divergence, e.g. an activity that was
// removed locally but the backend reported as not found.
type SyncRecord struct {
	RecordID   uint      `gorm:"primaryKey" json:"record_id"`
	PlanID     string    `gorm:"index:idx_sync_plan_activity,unique" json:"plan_id"`
	ActivityID string    `gorm:"index:idx_sync_plan_activity,unique" json:"activity_id"`
	Status     string    `json:"status"` // local_only|unverified
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}
