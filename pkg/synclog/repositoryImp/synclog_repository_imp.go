package repositoryImp

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"travo/entities"
	"travo/pkg/synclog/repository"
)

type syncLogRepo struct{ db *gorm.DB }

func New(db *gorm.DB) repository.SyncLogRepository { return &syncLogRepo{db} }

// Record upserts on (plan_id, activity_id).
func (r *syncLogRepo) Record(rec *entities.SyncRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "plan_id"}, {Name: "activity_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "reason", "created_at"}),
	}).Create(rec).Error
}

func (r *syncLogRepo) ListByPlan(planID string) ([]entities.SyncRecord, error) {
	var out []entities.SyncRecord
	if err := r.db.Where("plan_id = ?", planID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *syncLogRepo) List() ([]entities.SyncRecord, error) {
	var out []entities.SyncRecord
	if err := r.db.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *syncLogRepo) Clear(planID, activityID string) error {
	return r.db.Where("plan_id = ? AND activity_id = ?", planID, activityID).Delete(&entities.SyncRecord{}).Error
}
