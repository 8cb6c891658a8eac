// Package deletion runs optimistic activity deletes: the activity leaves the
// mounted plan before the backend is asked, and the backend's answer decides
// whether that stands, stands with a recorded divergence, or is undone.
package deletion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"

	"travo/entities"
	"travo/pkg/backend"
	"travo/pkg/notify"
	"travo/pkg/planview"
)

var logger = log.New("deletion")

func SetLogLevel(l log.Lvl) { logger.SetLevel(l) }

type State string

const (
	StateIdle                State = "idle"
	StatePendingConfirmation State = "pending_confirmation"
	StateApplied             State = "applied"
	StateConfirmed           State = "confirmed"
	StateDegradedLocalOnly   State = "degraded_local_only"
	StateRolledBack          State = "rolled_back"
)

// Deleter is the part of the backend client the coordinator needs.
type Deleter interface {
	DeleteActivity(ctx context.Context, planID string, ref backend.ActivityRef) backend.DeleteResult
}

type Prompt struct {
	PlanID       string
	ActivityID   string
	ActivityName string
}

type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) bool
}

type ConfirmFunc func(ctx context.Context, p Prompt) bool

func (f ConfirmFunc) Confirm(ctx context.Context, p Prompt) bool { return f(ctx, p) }

// Confirmed is a Confirmer whose answer was already collected, e.g. from a
// confirm=true request parameter.
type Confirmed bool

func (c Confirmed) Confirm(context.Context, Prompt) bool { return bool(c) }

// Fetcher reloads the canonical plan from the backend.
type Fetcher interface {
	Refetch(ctx context.Context, planID string) (*entities.TravelPlan, error)
}

type FetchFunc func(ctx context.Context, planID string) (*entities.TravelPlan, error)

func (f FetchFunc) Refetch(ctx context.Context, planID string) (*entities.TravelPlan, error) {
	return f(ctx, planID)
}

// Ledger persists client/server divergences.
type Ledger interface {
	Record(rec *entities.SyncRecord) error
}

type Request struct {
	ActivityID string
	// DayIndex is where the caller saw the activity; -1 if unknown.
	DayIndex int
	// Confirmer overrides the coordinator's default for this request.
	Confirmer Confirmer
}

type Result struct {
	State      State               `json:"state"`
	PlanID     string              `json:"plan_id"`
	ActivityID string              `json:"activity_id"`
	Outcome    string              `json:"backend_outcome,omitempty"`
	SyncStatus planview.SyncStatus `json:"sync_status,omitempty"`
	// Duplicate: a delete for this activity was already in flight; nothing
	// was done.
	Duplicate bool `json:"duplicate,omitempty"`
	Declined  bool `json:"declined,omitempty"`
	Missing   bool `json:"missing,omitempty"`
	// Busy: a positional activity's day has another unresolved delete, so
	// its backend slot is not known yet. Nothing was done.
	Busy bool `json:"busy,omitempty"`
	// Stale: the view was unmounted or replaced before the answer arrived.
	// The answer went to the plan's newer view, if one is mounted.
	Stale bool  `json:"stale,omitempty"`
	Err   error `json:"-"`
}

type Coordinator struct {
	backend  Deleter
	confirm  Confirmer
	fetch    Fetcher
	notifier notify.Notifier
	ledger   Ledger
	now      func() time.Time
}

type Option func(*Coordinator)

func WithConfirmer(c Confirmer) Option { return func(co *Coordinator) { co.confirm = c } }
func WithFetcher(f Fetcher) Option { return func(co *Coordinator) { co.fetch = f } }
func WithNotifier(n notify.Notifier) Option { return func(co *Coordinator) { co.notifier = n } }
func WithLedger(l Ledger) Option { return func(co *Coordinator) { co.ledger = l } }
func WithClock(now func() time.Time) Option { return func(co *Coordinator) { co.now = now } }

func New(d Deleter, opts ...Option) *Coordinator {
	c := &Coordinator{backend: d, notifier: notify.Multi{}, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Delete runs one delete to completion. A second call for an activity whose
// delete is still unresolved returns immediately with Duplicate set and
// sends nothing.
func (c *Coordinator) Delete(ctx context.Context, v *planview.View, req Request) Result {
	planID := v.PlanID()
	res := Result{State: StateIdle, PlanID: planID, ActivityID: req.ActivityID}

	if v.InFlight(req.ActivityID) {
		logger.Infof("[delete] %s/%s already in flight; ignoring repeat", planID, req.ActivityID)
		res.Duplicate = true
		return res
	}
	act, ok := v.Activity(req.ActivityID)
	if !ok {
		res.Missing = true
		return res
	}

	res.State = StatePendingConfirmation
	confirmer := req.Confirmer
	if confirmer == nil {
		confirmer = c.confirm
	}
	if confirmer == nil || !confirmer.Confirm(ctx, Prompt{PlanID: planID, ActivityID: act.ID, ActivityName: act.Name}) {
		res.Declined = true
		return res
	}

	pending, err := v.BeginDelete(req.ActivityID, req.DayIndex)
	switch {
	case errors.Is(err, planview.ErrInFlight):
		res.State, res.Duplicate = StateIdle, true
		return res
	case errors.Is(err, planview.ErrActivityNotFound):
		res.State, res.Missing = StateIdle, true
		return res
	case errors.Is(err, planview.ErrDayBusy):
		res.State, res.Busy = StateIdle, true
		return res
	case err != nil:
		res.State, res.Stale = StateIdle, true
		return res
	}
	res.State = StateApplied
	logger.Debugf("[delete] %s/%s removed locally (day %d slot %d)", planID, req.ActivityID, pending.DayIndex, pending.Slot)

	out := c.backend.DeleteActivity(ctx, planID, backend.ActivityRef{ID: req.ActivityID, Day: pending.DayIndex, Slot: pending.Slot})
	res.Outcome = out.Outcome.String()

	switch out.Outcome {
	case backend.DeleteConfirmed:
		res.State = StateConfirmed
		res.Stale = errors.Is(v.ResolveDelete(pending, planview.SyncOK), planview.ErrNotMounted)
	case backend.DeleteNotFound, backend.DeleteUnverified:
		c.degrade(ctx, v, pending, out, &res)
	default:
		c.rollback(ctx, v, pending, out, &res)
	}
	if res.Stale {
		logger.Infof("[delete] %s/%s resolved as %s after its view closed", planID, req.ActivityID, res.State)
	}
	return res
}

// degrade keeps the activity removed but records that the backend did not
// confirm it.
func (c *Coordinator) degrade(ctx context.Context, v *planview.View, p planview.Pending, out backend.DeleteResult, res *Result) {
	status := planview.SyncLocalOnly
	if out.Outcome == backend.DeleteUnverified {
		status = planview.SyncUnverified
	}
	res.State = StateDegradedLocalOnly
	res.SyncStatus = status
	if err := v.ResolveDelete(p, status); errors.Is(err, planview.ErrNotMounted) {
		res.Stale = true
	}
	logger.Warnf("[delete] %s/%s: backend answered %s (%d %s); kept local removal, marked %s",
		res.PlanID, p.ActivityID, out.Outcome, out.Status, out.Message, status)
	if c.ledger != nil {
		rec := &entities.SyncRecord{
			PlanID:     res.PlanID,
			ActivityID: p.ActivityID,
			Status:     string(status),
			Reason:     out.Outcome.String(),
			CreatedAt:  c.now(),
		}
		if err := c.ledger.Record(rec); err != nil {
			logger.Errorf("[delete] ledger write for %s/%s: %v", res.PlanID, p.ActivityID, err)
		}
	}
}

// rollback restores the activity, tells the user, and reloads the plan so
// the view converges on what the backend really holds.
func (c *Coordinator) rollback(ctx context.Context, v *planview.View, p planview.Pending, out backend.DeleteResult, res *Result) {
	res.State = StateRolledBack
	res.Err = out.Err
	if res.Err == nil {
		res.Err = fmt.Errorf("delete %s: %s %s", p.ActivityID, out.Outcome, out.Message)
	}
	if out.Outcome == backend.DeleteUnauthorized && !errors.Is(res.Err, backend.ErrUnauthorized) {
		res.Err = fmt.Errorf("%w: %v", backend.ErrUnauthorized, res.Err)
	}
	res.Stale = errors.Is(v.RollbackDelete(p), planview.ErrNotMounted)
	logger.Errorf("[delete] %s/%s rolled back: %v", res.PlanID, p.ActivityID, res.Err)

	text := "The activity was restored. Please try again."
	if out.Outcome == backend.DeleteUnauthorized {
		text = "Your session has expired. Please log in again."
	}
	c.notifier.Notify(ctx, notify.Error("Could not delete "+p.Activity.Name, text))

	// a newer view was loaded after the removal; it needs no reload
	if res.Stale || out.Outcome == backend.DeleteUnauthorized || c.fetch == nil {
		return
	}
	fresh, err := c.fetch.Refetch(ctx, res.PlanID)
	if err != nil {
		logger.Warnf("[delete] reload of %s after rollback failed: %v", res.PlanID, err)
		return
	}
	if err := v.Replace(fresh); errors.Is(err, planview.ErrNotMounted) {
		res.Stale = true
	}
}
