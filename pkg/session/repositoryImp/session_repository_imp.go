package repositoryImp

import (
	"errors"

	"gorm.io/gorm"

	"travo/entities"
	"travo/pkg/session/repository"
)

type sessionRepo struct{ db *gorm.DB }

func New(db *gorm.DB) repository.SessionRepository { return &sessionRepo{db} }

func (r *sessionRepo) Current() (*entities.Session, error) {
	var s entities.Session
	err := r.db.Order("updated_at DESC").First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) Save(s *entities.Session) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&entities.Session{}).Error; err != nil {
			return err
		}
		s.SessionID = 0
		return tx.Create(s).Error
	})
}

func (r *sessionRepo) Clear() error {
	return r.db.Where("1 = 1").Delete(&entities.Session{}).Error
}
