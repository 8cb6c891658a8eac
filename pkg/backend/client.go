// Package backend talks to the travel-plan REST API. Responses are returned
// as raw decoded JSON; turning them into canonical plans is the job of the
// itinerary package.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"travo/entities"
)

type Client interface {
	ListPlans(ctx context.Context) ([]any, error)
	PublicPlans(ctx context.Context, q PublicQuery) ([]any, error)
	FetchPlan(ctx context.Context, id string) (map[string]any, error)
	GeneratePlan(ctx context.Context, req GenerateRequest) (map[string]any, error)
	UpdatePlan(ctx context.Context, id string, fields map[string]any) (map[string]any, error)
	SetPrivacy(ctx context.Context, id string, public bool) error
	DeletePlan(ctx context.Context, id string) error

	AddActivity(ctx context.Context, planID string, day int, a entities.Activity) (map[string]any, error)
	UpdateActivity(ctx context.Context, planID string, day int, a entities.Activity) (map[string]any, error)
	DeleteActivity(ctx context.Context, planID string, ref ActivityRef) DeleteResult

	Login(ctx context.Context, email, password string) (Account, error)
	Register(ctx context.Context, req RegisterRequest) (Account, error)
	Profile(ctx context.Context) (Account, error)

	Diagnose(ctx context.Context) []Check
}

// TokenSource supplies the bearer token for authenticated calls. An empty
// token sends no Authorization header.
type TokenSource interface {
	Token() string
}

type StaticToken string

func (t StaticToken) Token() string { return string(t) }

type GenerateRequest struct {
	Destination string   `json:"destination"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	Budget      string   `json:"budget,omitempty"`
	Interests   []string `json:"interests,omitempty"`
	Preference  string   `json:"preference,omitempty"`
	Companions  string   `json:"companions,omitempty"`
	Travelers   int      `json:"travelers,omitempty"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type PublicQuery struct {
	Page              int
	Limit             int
	SortBy            string
	SortOrder         string
	IncludeActivities bool
}

type Account struct {
	Token  string
	UserID string
	Name   string
	Email  string
}

var (
	ErrTimeout      = errors.New("backend: request timed out")
	ErrUnauthorized = errors.New("backend: unauthorized")
	ErrNotFound     = errors.New("backend: not found")
	ErrBadResponse  = errors.New("backend: unreadable response")
)

// StatusError is a non-2xx answer. It unwraps to ErrUnauthorized or
// ErrNotFound where that applies, so callers can use errors.Is.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

func (e *StatusError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// Retryable reports whether repeating an idempotent read might succeed.
func (e *StatusError) Retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests || e.Status == http.StatusRequestTimeout
}

type DeleteOutcome int

const (
	// DeleteConfirmed: the backend removed the activity.
	DeleteConfirmed DeleteOutcome = iota
	// DeleteNotFound: the backend has no such activity.
	DeleteNotFound
	// DeleteUnverified: the backend answered success but could not verify
	// the row is gone.
	DeleteUnverified
	// DeleteTransportFailure: no usable answer (network error, timeout or an
	// unparseable body).
	DeleteTransportFailure
	// DeleteRejected: the backend answered and refused.
	DeleteRejected
	// DeleteUnauthorized: the session is missing or expired.
	DeleteUnauthorized
)

func (o DeleteOutcome) String() string {
	switch o {
	case DeleteConfirmed:
		return "confirmed"
	case DeleteNotFound:
		return "not_found"
	case DeleteUnverified:
		return "unverified"
	case DeleteTransportFailure:
		return "transport_failure"
	case DeleteRejected:
		return "rejected"
	case DeleteUnauthorized:
		return "unauthorized"
	}
	return "unknown"
}

// ActivityRef names the activity a delete targets. Day and Slot are its
// position when the delete started; positional ids are sent to that slot
// rather than the one baked into the id. -1 means unknown.
type ActivityRef struct {
	ID   string
	Day  int
	Slot int
}

// Ref is an ActivityRef with no known position.
func Ref(id string) ActivityRef { return ActivityRef{ID: id, Day: -1, Slot: -1} }

// DeleteResult is the explicit answer to an activity delete; failures are
// values here, not errors to unwind.
type DeleteResult struct {
	Outcome DeleteOutcome
	Status  int
	Message string
	Err     error
}

type Check struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Status    int    `json:"status,omitempty"`
	Err       string `json:"err,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}
