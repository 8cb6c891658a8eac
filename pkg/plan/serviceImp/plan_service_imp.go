package serviceImp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/labstack/gommon/log"

	"travo/entities"
	"travo/pkg/backend"
	"travo/pkg/deletion"
	"travo/pkg/export"
	"travo/pkg/identity"
	"travo/pkg/itinerary"
	"travo/pkg/normalize"
	"travo/pkg/notify"
	"travo/pkg/places"
	"travo/pkg/plan/service"
	"travo/pkg/planview"
	synclog "travo/pkg/synclog/repository"
)

var logger = log.New("plan")

func SetLogLevel(l log.Lvl) { logger.SetLevel(l) }

type PlanSvc struct {
	api      backend.Client
	views    *planview.Registry
	ledger   synclog.SyncLogRepository
	places   places.Provider
	notifier notify.Notifier
	opts     itinerary.Options
	deletes  *deletion.Coordinator
}

var _ service.PlanService = (*PlanSvc)(nil)

// NewPlanService wires the delete coordinator to this service's reload path
// and to the divergence ledger. ledger, pl and n may be nil.
func NewPlanService(api backend.Client, views *planview.Registry, ledger synclog.SyncLogRepository, pl places.Provider, n notify.Notifier, opts itinerary.Options) *PlanSvc {
	if n == nil {
		n = notify.Multi{}
	}
	s := &PlanSvc{api: api, views: views, ledger: ledger, places: pl, notifier: n, opts: opts}
	dopts := []deletion.Option{deletion.WithFetcher(s), deletion.WithNotifier(n)}
	if ledger != nil {
		dopts = append(dopts, deletion.WithLedger(ledger))
	}
	s.deletes = deletion.New(api, dopts...)
	return s
}

func (s *PlanSvc) List(ctx context.Context) ([]*entities.TravelPlan, error) {
	items, err := s.api.ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	plans, rep := itinerary.BuildAll(items, s.opts)
	if rep.Degraded() {
		s.notifier.Notify(ctx, notify.Warning("Plans may not open correctly",
			"None of your plans carried a server identifier; opening or editing them may fail."))
	}
	return plans, nil
}

func (s *PlanSvc) Public(ctx context.Context, q backend.PublicQuery) ([]*entities.TravelPlan, error) {
	items, err := s.api.PublicPlans(ctx, q)
	if err != nil {
		return nil, err
	}
	plans, _ := itinerary.BuildAll(items, s.opts)
	return plans, nil
}

func (s *PlanSvc) Generate(ctx context.Context, req backend.GenerateRequest) (*planview.View, error) {
	raw, err := s.api.GeneratePlan(ctx, req)
	if err != nil {
		return nil, err
	}
	p, rep := itinerary.Build(raw, s.opts)
	if !p.Authoritative {
		logger.Warnf("[plan] generated plan came back without an id; using %s", p.ID)
	}
	if rep.Shape == itinerary.ShapeSynthesized {
		s.notifier.Notify(ctx, notify.Warning("Itinerary is empty",
			"The generated plan had no activities; example entries are shown instead."))
	}
	s.enrich(ctx, p)
	return s.views.Mount(p), nil
}

func (s *PlanSvc) Open(ctx context.Context, id string) (*planview.View, error) {
	p, err := s.Refetch(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.views.Mount(p), nil
}

func (s *PlanSvc) Current(ctx context.Context, id string) (*planview.View, error) {
	if v, ok := s.views.Get(id); ok {
		return v, nil
	}
	return s.Open(ctx, id)
}

func (s *PlanSvc) Close(id string) bool { return s.views.Unmount(id) }

// Refetch loads and rebuilds the plan. Activities the ledger records as
// deleted locally stay hidden until the backend stops returning them.
func (s *PlanSvc) Refetch(ctx context.Context, id string) (*entities.TravelPlan, error) {
	raw, err := s.api.FetchPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	p, rep := itinerary.Build(raw, s.opts)
	if p.ID != id {
		if p.Authoritative {
			logger.Warnf("[plan] asked for %s, backend returned %s", id, p.ID)
		}
		p.ID = id
	}
	logger.Debugf("[plan] %s rebuilt from %s (%d activities, %d positional ids)", id, rep.Shape, p.ActivityCount(), rep.PositionalIDs)
	s.applyLedger(p)
	return p, nil
}

func (s *PlanSvc) applyLedger(p *entities.TravelPlan) {
	if s.ledger == nil {
		return
	}
	recs, err := s.ledger.ListByPlan(p.ID)
	if err != nil {
		logger.Errorf("[plan] ledger read for %s: %v", p.ID, err)
		return
	}
	for _, r := range recs {
		// positional ids move when the backend's list changes
		if identity.Synthetic(r.ActivityID) {
			continue
		}
		d, a := p.FindActivity(r.ActivityID)
		if d < 0 {
			if err := s.ledger.Clear(r.PlanID, r.ActivityID); err != nil {
				logger.Errorf("[plan] ledger clear %s/%s: %v", r.PlanID, r.ActivityID, err)
			}
			continue
		}
		acts := p.Days[d].Activities
		p.Days[d].Activities = append(acts[:a:a], acts[a+1:]...)
		logger.Debugf("[plan] hiding %s/%s (%s)", p.ID, r.ActivityID, r.Status)
	}
}

func (s *PlanSvc) Update(ctx context.Context, id string, fields map[string]any) (*entities.TravelPlan, error) {
	if _, err := s.api.UpdatePlan(ctx, id, fields); err != nil {
		return nil, err
	}
	return s.reload(ctx, id)
}

func (s *PlanSvc) SetPrivacy(ctx context.Context, id string, public bool) error {
	if err := s.api.SetPrivacy(ctx, id, public); err != nil {
		return err
	}
	if v, ok := s.views.Get(id); ok {
		_ = v.Update(func(p *entities.TravelPlan) error {
			p.IsPublic = public
			return nil
		})
	}
	return nil
}

func (s *PlanSvc) DeletePlan(ctx context.Context, id string) error {
	if err := s.api.DeletePlan(ctx, id); err != nil {
		return err
	}
	s.views.Unmount(id)
	if s.ledger != nil {
		s.clearLedger(id)
	}
	return nil
}

func (s *PlanSvc) AddActivity(ctx context.Context, id string, day int, raw map[string]any) (entities.Activity, error) {
	v, err := s.Current(ctx, id)
	if err != nil {
		return entities.Activity{}, err
	}
	p := v.Plan()
	if day < 0 || day >= len(p.Days) {
		return entities.Activity{}, fmt.Errorf("%w: %d of %d", service.ErrDayOutOfRange, day, len(p.Days))
	}
	a, ok := itinerary.Activity(raw, day, len(p.Days[day].Activities))
	if !ok {
		return entities.Activity{}, service.ErrInvalidActivity
	}
	places.Enrich(ctx, s.places, &a, p.Destination)

	resp, err := s.api.AddActivity(ctx, id, day, a)
	if err != nil {
		return entities.Activity{}, err
	}
	if stored, ok := itinerary.Activity(resp, day, len(p.Days[day].Activities)); ok && stored.Authoritative {
		a.ID, a.Authoritative = stored.ID, true
	}
	if _, err := s.reload(ctx, id); err != nil {
		logger.Warnf("[plan] reload after add to %s failed: %v; appending locally", id, err)
		_ = v.Update(func(p *entities.TravelPlan) error {
			p.Days[day].Activities = append(p.Days[day].Activities, a)
			return nil
		})
	}
	return a, nil
}

// UpdateActivity overlays the given fields on the current activity and
// sends the result. A "day_index" field moves the activity.
func (s *PlanSvc) UpdateActivity(ctx context.Context, id, activityID string, raw map[string]any) (entities.Activity, error) {
	v, err := s.Current(ctx, id)
	if err != nil {
		return entities.Activity{}, err
	}
	p := v.Plan()
	d, slot := p.FindActivity(activityID)
	if d < 0 {
		return entities.Activity{}, planview.ErrActivityNotFound
	}
	cur := p.Days[d].Activities[slot]

	merged := activityMap(cur)
	for k, val := range raw {
		merged[k] = val
	}
	merged["id"] = cur.ID
	day := d
	if n, ok := normalize.Int(raw, dayIndex); ok {
		if n < 0 || n >= len(p.Days) {
			return entities.Activity{}, fmt.Errorf("%w: %d of %d", service.ErrDayOutOfRange, n, len(p.Days))
		}
		day = n
	}
	a, ok := itinerary.Activity(merged, d, slot)
	if !ok {
		return entities.Activity{}, service.ErrInvalidActivity
	}
	a.ID, a.Authoritative = cur.ID, cur.Authoritative
	if a.Lat != cur.Lat || a.Lng != cur.Lng || a.Location != cur.Location {
		if !a.HasCoordinates() {
			places.Enrich(ctx, s.places, &a, p.Destination)
		}
	}

	dayArg := -1
	if day != d {
		dayArg = day
	}
	if _, err := s.api.UpdateActivity(ctx, id, dayArg, a); err != nil {
		return entities.Activity{}, err
	}
	err = v.Update(func(p *entities.TravelPlan) error {
		di, ai := p.FindActivity(a.ID)
		if di < 0 {
			return planview.ErrActivityNotFound
		}
		if di == day {
			p.Days[di].Activities[ai] = a
			return nil
		}
		acts := p.Days[di].Activities
		p.Days[di].Activities = append(acts[:ai:ai], acts[ai+1:]...)
		p.Days[day].Activities = append(p.Days[day].Activities, a)
		return nil
	})
	if err != nil {
		logger.Warnf("[plan] local update of %s/%s: %v", id, a.ID, err)
	}
	return a, nil
}

var dayIndex = normalize.Field{Name: "day_index", Keys: []string{"day_index", "dayIndex", "day"}, Kind: normalize.KindNumber}

func activityMap(a entities.Activity) map[string]any {
	m := map[string]any{
		"name":             a.Name,
		"location":         a.Location,
		"type":             string(a.Category),
		"time":             a.Time,
		"duration_minutes": a.DurationMinutes,
		"place_id":         a.PlaceID,
		"address":          a.Address,
		"description":      a.Description,
	}
	if a.HasCoordinates() {
		m["lat"], m["lng"] = a.Lat, a.Lng
	}
	if a.Rating != nil {
		m["rating"] = *a.Rating
	}
	if len(a.Photos) > 0 {
		ps := make([]any, len(a.Photos))
		for i, u := range a.Photos {
			ps[i] = u
		}
		m["photos"] = ps
	}
	return m
}

// DeleteActivity requires the plan to be mounted; the user deletes from
// what they are looking at.
func (s *PlanSvc) DeleteActivity(ctx context.Context, id string, req deletion.Request) (deletion.Result, error) {
	v, ok := s.views.Get(id)
	if !ok {
		return deletion.Result{PlanID: id, ActivityID: req.ActivityID, State: deletion.StateIdle, Stale: true}, planview.ErrNotMounted
	}
	res := s.deletes.Delete(ctx, v, req)
	return res, res.Err
}

// Import adds every row of an XLSX sheet as an activity. Rows are placed by
// their date; rows without a usable date go to the first day.
func (s *PlanSvc) Import(ctx context.Context, id string, r io.Reader) (int, error) {
	rows, err := export.ReadActivities(r)
	if err != nil {
		return 0, err
	}
	v, err := s.Current(ctx, id)
	if err != nil {
		return 0, err
	}
	p := v.Plan()
	if len(p.Days) == 0 {
		return 0, service.ErrDayOutOfRange
	}
	added := 0
	for i, row := range rows {
		day := 0
		if dt, ok := normalize.Date(row, normalize.ActivityDate); ok {
			day = dayOf(p, dt)
		}
		a, ok := itinerary.Activity(row, day, len(p.Days[day].Activities)+i)
		if !ok {
			continue
		}
		places.Enrich(ctx, s.places, &a, p.Destination)
		if _, err := s.api.AddActivity(ctx, id, day, a); err != nil {
			if errors.Is(err, backend.ErrUnauthorized) {
				return added, err
			}
			logger.Warnf("[plan] import row %d into %s: %v", i+1, id, err)
			continue
		}
		added++
	}
	if added > 0 {
		if _, err := s.reload(ctx, id); err != nil {
			logger.Warnf("[plan] reload after import into %s: %v", id, err)
		}
	}
	return added, nil
}

func dayOf(p *entities.TravelPlan, dt time.Time) int {
	for i, d := range p.Days {
		if d.Date.Equal(dt) {
			return i
		}
	}
	if dt.Before(p.StartDate) {
		return 0
	}
	n := int(dt.Sub(p.StartDate).Hours() / 24)
	return min(n, len(p.Days)-1)
}

func (s *PlanSvc) Divergences(id string) ([]entities.SyncRecord, error) {
	if s.ledger == nil {
		return nil, nil
	}
	return s.ledger.ListByPlan(id)
}

// SweepLedger refetches every plan that still has ledger entries so records
// for activities the backend has since dropped get cleared. It returns how
// many records remain.
func (s *PlanSvc) SweepLedger(ctx context.Context) (int, error) {
	if s.ledger == nil {
		return 0, nil
	}
	recs, err := s.ledger.List()
	if err != nil {
		return 0, err
	}
	seen := map[string]bool{}
	for _, r := range recs {
		if seen[r.PlanID] {
			continue
		}
		seen[r.PlanID] = true
		_, err := s.reload(ctx, r.PlanID)
		switch {
		case err == nil:
		case errors.Is(err, backend.ErrUnauthorized):
			return 0, err
		case errors.Is(err, backend.ErrNotFound):
			// the whole plan is gone
			s.clearLedger(r.PlanID)
		default:
			logger.Warnf("[plan] sweep %s: %v", r.PlanID, err)
		}
	}
	left, err := s.ledger.List()
	if err != nil {
		return 0, err
	}
	return len(left), nil
}

func (s *PlanSvc) clearLedger(id string) {
	recs, _ := s.ledger.ListByPlan(id)
	for _, r := range recs {
		if err := s.ledger.Clear(r.PlanID, r.ActivityID); err != nil {
			logger.Errorf("[plan] ledger clear %s/%s: %v", r.PlanID, r.ActivityID, err)
		}
	}
}

// reload refetches and swaps the result into the mounted view, if any.
func (s *PlanSvc) reload(ctx context.Context, id string) (*entities.TravelPlan, error) {
	p, err := s.Refetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if v, ok := s.views.Get(id); ok {
		if err := v.Replace(p); err != nil {
			logger.Debugf("[plan] replace %s: %v", id, err)
		}
	}
	return p, nil
}

func (s *PlanSvc) enrich(ctx context.Context, p *entities.TravelPlan) {
	if s.places == nil {
		return
	}
	for di := range p.Days {
		for ai := range p.Days[di].Activities {
			places.Enrich(ctx, s.places, &p.Days[di].Activities[ai], p.Destination)
		}
	}
}
