package service

import (
	"context"
	"errors"
	"io"

	"travo/entities"
	"travo/pkg/backend"
	"travo/pkg/deletion"
	"travo/pkg/planview"
)

var (
	ErrDayOutOfRange   = errors.New("day index out of range")
	ErrInvalidActivity = errors.New("activity payload is not usable")
)

type PlanService interface {
	List(ctx context.Context) ([]*entities.TravelPlan, error)
	Public(ctx context.Context, q backend.PublicQuery) ([]*entities.TravelPlan, error)
	Generate(ctx context.Context, req backend.GenerateRequest) (*planview.View, error)

	// Open fetches the plan and mounts a fresh view for it.
	Open(ctx context.Context, id string) (*planview.View, error)
	// Current returns the mounted view, opening one if needed.
	Current(ctx context.Context, id string) (*planview.View, error)
	Close(id string) bool
	Refetch(ctx context.Context, id string) (*entities.TravelPlan, error)

	Update(ctx context.Context, id string, fields map[string]any) (*entities.TravelPlan, error)
	SetPrivacy(ctx context.Context, id string, public bool) error
	DeletePlan(ctx context.Context, id string) error

	AddActivity(ctx context.Context, id string, day int, raw map[string]any) (entities.Activity, error)
	UpdateActivity(ctx context.Context, id, activityID string, raw map[string]any) (entities.Activity, error)
	DeleteActivity(ctx context.Context, id string, req deletion.Request) (deletion.Result, error)
	Import(ctx context.Context, id string, r io.Reader) (int, error)

	Divergences(id string) ([]entities.SyncRecord, error)
	SweepLedger(ctx context.Context) (int, error)
}
