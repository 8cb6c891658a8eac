package serviceImp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/gommon/log"

	"travo/entities"
	"travo/pkg/backend"
	"travo/pkg/session/repository"
	"travo/pkg/session/service"
)

var logger = log.New("session")

func SetLogLevel(l log.Lvl) { logger.SetLevel(l) }

// Authenticator is the slice of the backend that issues and describes
// tokens.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (backend.Account, error)
	Register(ctx context.Context, req backend.RegisterRequest) (backend.Account, error)
	Profile(ctx context.Context) (backend.Account, error)
}

type SessionSvc struct {
	repo repository.SessionRepository
	auth Authenticator
	now  func() time.Time
}

func New(repo repository.SessionRepository, auth Authenticator) *SessionSvc {
	return &SessionSvc{repo: repo, auth: auth, now: time.Now}
}

var _ service.SessionService = (*SessionSvc)(nil)

func (s *SessionSvc) Login(ctx context.Context, email, password string) (*entities.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, service.ErrInvalidCredentials
	}
	acc, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.store(ctx, acc)
}

func (s *SessionSvc) Register(ctx context.Context, name, email, password string) (*entities.Session, error) {
	acc, err := s.auth.Register(ctx, backend.RegisterRequest{Name: strings.TrimSpace(name), Email: strings.TrimSpace(email), Password: password})
	if err != nil {
		return nil, err
	}
	if acc.Token == "" {
		// some backends only create the account; log in right away
		return s.Login(ctx, email, password)
	}
	return s.store(ctx, acc)
}

// store saves the token first so the profile call can authenticate.
func (s *SessionSvc) store(ctx context.Context, acc backend.Account) (*entities.Session, error) {
	sess := &entities.Session{UserID: acc.UserID, Name: acc.Name, Email: acc.Email, Token: acc.Token}
	if err := s.repo.Save(sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	prof, err := s.auth.Profile(ctx)
	if err != nil {
		logger.Warnf("[session] profile fetch after login failed: %v", err)
		return sess, nil
	}
	if prof.Name != "" {
		sess.Name = prof.Name
	}
	if prof.Email != "" {
		sess.Email = prof.Email
	}
	if sess.UserID == "" {
		sess.UserID = prof.UserID
	}
	if err := s.repo.Save(sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	logger.Infof("[session] logged in as %s", sess.Email)
	return sess, nil
}

func (s *SessionSvc) Logout() error {
	return s.repo.Clear()
}

func (s *SessionSvc) Current() (*entities.Session, error) {
	sess, err := s.repo.Current()
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.Token == "" {
		return nil, service.ErrUnauthenticated
	}
	if Expired(sess.Token, s.now()) {
		s.Invalidate("token expired")
		return nil, service.ErrUnauthenticated
	}
	return sess, nil
}

func (s *SessionSvc) Invalidate(reason string) {
	logger.Infof("[session] clearing session: %s", reason)
	if err := s.repo.Clear(); err != nil {
		logger.Errorf("[session] clear: %v", err)
	}
}

func (s *SessionSvc) Token() string {
	sess, err := s.Current()
	if err != nil {
		return ""
	}
	return sess.Token
}

// Expired reports whether token is a JWT whose exp claim has passed.
// Opaque tokens never expire locally; the backend decides.
func Expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}

// TokenSource reads the bearer token straight from the store, for the
// backend client that the session service itself depends on.
func TokenSource(repo repository.SessionRepository) backend.TokenSource {
	return &repoTokens{repo: repo}
}

type repoTokens struct{ repo repository.SessionRepository }

func (t *repoTokens) Token() string {
	sess, err := t.repo.Current()
	if err != nil || sess == nil || Expired(sess.Token, time.Now()) {
		return ""
	}
	return sess.Token
}
