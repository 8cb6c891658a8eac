package repository

import "travo/entities"

// SyncLogRepository is the local ledger of activities whose deletion the
// backend never confirmed.
type SyncLogRepository interface {
	Record(rec *entities.SyncRecord) error
	ListByPlan(planID string) ([]entities.SyncRecord, error)
	List() ([]entities.SyncRecord, error)
	Clear(planID, activityID string) error
}
