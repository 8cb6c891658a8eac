package service

import (
	"context"
	"errors"

	"travo/entities"
)

// ErrUnauthenticated means there is no usable session; the page layer sends
// the user to login.
var ErrUnauthenticated = errors.New("session: login required")

var ErrInvalidCredentials = errors.New("email and password are required")

type SessionService interface {
	Login(ctx context.Context, email, password string) (*entities.Session, error)
	Register(ctx context.Context, name, email, password string) (*entities.Session, error)
	Logout() error
	// Current returns the live session or ErrUnauthenticated. An expired
	// token clears the session.
	Current() (*entities.Session, error)
	// Invalidate drops the session after the backend rejected its token.
	Invalidate(reason string)
	// Token is the bearer token for backend calls, "" when logged out.
	Token() string
}
