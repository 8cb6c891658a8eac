// Package planview owns the canonical in-memory plan of a mounted itinerary
// view. All mutations go through a View so that optimistic deletes, their
// rollbacks and full reloads see a consistent plan.
package planview

import (
	"errors"
	"sync"

	"travo/entities"
	"travo/pkg/identity"
)

var (
	ErrNotMounted       = errors.New("planview: view is no longer mounted")
	ErrInFlight         = errors.New("planview: delete already in flight")
	ErrActivityNotFound = errors.New("planview: activity not found")
	// ErrDayBusy: a positional activity is addressed by its slot, which is
	// only known while no other delete on the same day is unresolved.
	ErrDayBusy = errors.New("planview: another delete on this day is unresolved")
)

// SyncStatus records how far an activity's local state is known to agree
// with the backend. The zero value means in sync.
type SyncStatus string

const (
	SyncOK         SyncStatus = ""
	SyncPending    SyncStatus = "pending"
	SyncLocalOnly  SyncStatus = "local_only"
	SyncUnverified SyncStatus = "unverified"
)

type flight struct {
	day int
	act entities.Activity
}

// flights is the unresolved-delete set of one plan. Every view mounted for
// the plan shares it. Lock order: View.mu, then flights.mu.
type flights struct {
	mu  sync.Mutex
	ids map[string]flight
}

func newFlights() *flights { return &flights{ids: map[string]flight{}} }

func (f *flights) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.ids[id]
	return ok
}

func (f *flights) release(id string) {
	f.mu.Lock()
	delete(f.ids, id)
	f.mu.Unlock()
}

// hide removes every in-flight activity from p. Positional ids are reused
// once the backend drops a slot, so those must also match by content.
func (f *flights) hide(p *entities.TravelPlan) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, fl := range f.ids {
		d, a := p.FindActivity(id)
		if d < 0 {
			continue
		}
		if identity.Classify(id) == identity.KindPositional {
			got := p.Days[d].Activities[a]
			if got.Name != fl.act.Name || got.Time != fl.act.Time {
				continue
			}
		}
		removeAt(p, d, a)
	}
}

type View struct {
	mu     sync.Mutex
	gen    uint64
	plan   *entities.TravelPlan
	rev    uint64
	closed bool
	sync   map[string]SyncStatus

	flights *flights
	reg     *Registry
}

func newView(plan *entities.TravelPlan, gen uint64, f *flights, reg *Registry) *View {
	v := &View{
		gen:     gen,
		plan:    plan.Clone(),
		sync:    map[string]SyncStatus{},
		flights: f,
		reg:     reg,
	}
	f.hide(v.plan)
	return v
}

// New builds a standalone view, outside any registry.
func New(plan *entities.TravelPlan) *View { return newView(plan, 0, newFlights(), nil) }

func (v *View) PlanID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.plan.ID
}

func (v *View) Generation() uint64 { return v.gen }

func (v *View) Revision() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rev
}

// Plan returns a deep copy of the current canonical plan.
func (v *View) Plan() *entities.TravelPlan {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.plan.Clone()
}

func (v *View) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func (v *View) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
}

// InFlight reports an unresolved delete for the activity, started from this
// view or from an earlier view of the same plan.
func (v *View) InFlight(activityID string) bool { return v.flights.has(activityID) }

func (v *View) Activity(activityID string) (entities.Activity, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	d, a := v.plan.FindActivity(activityID)
	if d < 0 {
		return entities.Activity{}, false
	}
	return v.plan.Days[d].Activities[a].Clone(), true
}

func (v *View) SyncStatus(activityID string) SyncStatus {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sync[activityID]
}

// Divergences lists activities whose state is not known to match the
// backend.
func (v *View) Divergences() map[string]SyncStatus {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]SyncStatus, len(v.sync))
	for id, s := range v.sync {
		if s != SyncOK {
			out[id] = s
		}
	}
	return out
}

// Update applies fn to the canonical plan. fn works on a copy; the copy is
// kept only if fn succeeds.
func (v *View) Update(fn func(p *entities.TravelPlan) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrNotMounted
	}
	next := v.plan.Clone()
	if err := fn(next); err != nil {
		return err
	}
	v.plan = next
	v.rev++
	return nil
}

// Replace swaps in a freshly loaded plan. Activities whose delete is still
// in flight stay hidden.
func (v *View) Replace(plan *entities.TravelPlan) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrNotMounted
	}
	next := plan.Clone()
	v.flights.hide(next)
	v.plan = next
	v.rev++
	return nil
}

// Pending is an applied optimistic delete awaiting the backend's answer.
type Pending struct {
	ActivityID string
	DayIndex   int
	Slot       int
	Activity   entities.Activity
	// Snapshot is a deep copy of the plan before the removal.
	Snapshot *entities.TravelPlan
	// Revision is the view revision right after the removal.
	Revision uint64
}

// BeginDelete removes the activity optimistically. dayHint is where the
// caller believes the activity is; when it is unknown (-1) or stale, every
// day is searched. The returned DayIndex and Slot are the activity's
// position at the moment of removal.
func (v *View) BeginDelete(activityID string, dayHint int) (Pending, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return Pending{}, ErrNotMounted
	}
	v.flights.mu.Lock()
	defer v.flights.mu.Unlock()
	if _, ok := v.flights.ids[activityID]; ok {
		return Pending{}, ErrInFlight
	}
	d, a := -1, -1
	if dayHint >= 0 && dayHint < len(v.plan.Days) {
		for i, act := range v.plan.Days[dayHint].Activities {
			if act.ID == activityID {
				d, a = dayHint, i
				break
			}
		}
	}
	if d < 0 {
		d, a = v.plan.FindActivity(activityID)
	}
	if d < 0 {
		return Pending{}, ErrActivityNotFound
	}
	if identity.Classify(activityID) == identity.KindPositional {
		for _, fl := range v.flights.ids {
			if fl.day == d {
				return Pending{}, ErrDayBusy
			}
		}
	}
	p := Pending{
		ActivityID: activityID,
		DayIndex:   d,
		Slot:       a,
		Activity:   v.plan.Days[d].Activities[a].Clone(),
		Snapshot:   v.plan.Clone(),
	}
	removeAt(v.plan, d, a)
	v.rev++
	p.Revision = v.rev
	v.flights.ids[activityID] = flight{day: d, act: p.Activity.Clone()}
	v.sync[activityID] = SyncPending
	return p, nil
}

// ResolveDelete settles a delete that stays applied, recording how the
// backend answered. A confirmed delete renumbers the positional ids left in
// its day so they name the backend's slots again. On a closed view the
// result is passed on to the plan's current view, if any, and ErrNotMounted
// is returned.
func (v *View) ResolveDelete(p Pending, status SyncStatus) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		if cur := v.successor(); cur != nil {
			cur.settle(p, status)
		}
		v.flights.release(p.ActivityID)
		return ErrNotMounted
	}
	v.settleLocked(p, status)
	v.flights.release(p.ActivityID)
	v.mu.Unlock()
	return nil
}

func (v *View) settle(p Pending, status SyncStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.closed {
		v.settleLocked(p, status)
	}
}

func (v *View) settleLocked(p Pending, status SyncStatus) {
	if status == SyncOK {
		delete(v.sync, p.ActivityID)
		if identity.Classify(p.ActivityID) == identity.KindPositional {
			v.renumber(p.DayIndex)
		}
		return
	}
	v.sync[p.ActivityID] = status
}

// renumber rewrites positional ids in day d to the activities' current slots.
func (v *View) renumber(d int) {
	if d < 0 || d >= len(v.plan.Days) {
		return
	}
	acts := v.plan.Days[d].Activities
	changed := false
	for i := range acts {
		if identity.Classify(acts[i].ID) != identity.KindPositional {
			continue
		}
		if id := identity.Positional(d, i); acts[i].ID != id {
			if s, ok := v.sync[acts[i].ID]; ok {
				delete(v.sync, acts[i].ID)
				v.sync[id] = s
			}
			acts[i].ID = id
			changed = true
		}
	}
	if changed {
		v.rev++
	}
}

// RollbackDelete puts the activity back. If nothing else touched the plan
// since the removal, the snapshot is restored as a whole; otherwise the
// activity is re-inserted at its old position. On a closed view the
// activity is re-inserted into the plan's current view instead.
func (v *View) RollbackDelete(p Pending) error {
	v.flights.release(p.ActivityID)
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		if cur := v.successor(); cur != nil {
			cur.restore(p)
		}
		return ErrNotMounted
	}
	defer v.mu.Unlock()
	delete(v.sync, p.ActivityID)
	if v.rev == p.Revision {
		v.plan = p.Snapshot.Clone()
		v.rev++
		return nil
	}
	v.reinsertLocked(p)
	return nil
}

func (v *View) restore(p Pending) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	delete(v.sync, p.ActivityID)
	v.reinsertLocked(p)
}

func (v *View) reinsertLocked(p Pending) {
	if d, _ := v.plan.FindActivity(p.ActivityID); d >= 0 {
		return
	}
	d := p.DayIndex
	if d >= len(v.plan.Days) {
		if len(v.plan.Days) == 0 {
			v.plan.Days = append(v.plan.Days, entities.Day{Date: v.plan.StartDate})
		}
		d = len(v.plan.Days) - 1
	}
	acts := v.plan.Days[d].Activities
	slot := p.Slot
	if slot > len(acts) {
		slot = len(acts)
	}
	acts = append(acts, entities.Activity{})
	copy(acts[slot+1:], acts[slot:])
	acts[slot] = p.Activity.Clone()
	v.plan.Days[d].Activities = acts
	v.rev++
}

// successor is the view now mounted for this plan, other than v.
func (v *View) successor() *View {
	if v.reg == nil {
		return nil
	}
	cur, ok := v.reg.Get(v.PlanID())
	if !ok || cur == v {
		return nil
	}
	return cur
}

func removeAt(p *entities.TravelPlan, d, a int) {
	acts := p.Days[d].Activities
	out := make([]entities.Activity, 0, len(acts)-1)
	out = append(out, acts[:a]...)
	out = append(out, acts[a+1:]...)
	p.Days[d].Activities = out
}
