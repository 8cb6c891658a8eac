package repository

import "travo/entities"

type SessionRepository interface {
	// Current returns the stored session, or nil if nobody is logged in.
	Current() (*entities.Session, error)
	// Save replaces whatever session is stored.
	Save(s *entities.Session) error
	Clear() error
}
