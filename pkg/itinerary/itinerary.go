// Package itinerary rebuilds the canonical plan (ordered days, each an
// ordered list of activities) from whichever shape the backend sent.
package itinerary

import (
	"sort"
	"strings"
	"time"

	"github.com/labstack/gommon/log"

	"travo/entities"
	"travo/pkg/identity"
	"travo/pkg/normalize"
)

var logger = log.New("itinerary")

func SetLogLevel(l log.Lvl) { logger.SetLevel(l) }

type Shape string

const (
	ShapeDays          Shape = "days"
	ShapeItinerary     Shape = "itinerary"
	ShapeActivities    Shape = "activities"
	ShapeItineraryDays Shape = "itinerary_days"
	ShapeSynthesized   Shape = "synthesized"
)

const DefaultMaxSynthesizedDays = 366

const (
	untitledPlan     = "Untitled plan"
	untitledActivity = "Untitled activity"
	exampleName      = "Example activity"
	exampleNote      = "No itinerary data was returned for this day. This is an example entry."
)

type Options struct {
	// Now supplies "today" when the plan has no start date.
	Now func() time.Time
	// MaxSynthesizedDays caps how many calendar days a date range may expand to.
	MaxSynthesizedDays int
}

func (o Options) today() time.Time {
	if o.Now != nil {
		return normalize.Midnight(o.Now())
	}
	return normalize.Midnight(time.Now())
}

func (o Options) maxDays() int {
	if o.MaxSynthesizedDays > 0 {
		return o.MaxSynthesizedDays
	}
	return DefaultMaxSynthesizedDays
}

// Report describes what Build had to infer.
type Report struct {
	Shape          Shape
	PositionalIDs  int
	Placeholders   int
	DefaultedDates int
	Dropped        int
	Truncated      bool
}

var activityIDs = &identity.Reconciler{Keys: identity.ActivityKeys, Fallback: func() string { return "" }}

// Build normalizes one raw plan object. It never fails: anything missing
// or malformed falls back to a default.
func Build(raw map[string]any, opts Options) (*entities.TravelPlan, Report) {
	return build(raw, identity.NewPlanReconciler().Reconcile(raw), opts)
}

// BuildAll normalizes a batch of plans. Generated plan IDs are unique
// within the batch; the report tells whether any plan had a server ID.
func BuildAll(items []any, opts Options) ([]*entities.TravelPlan, identity.BatchReport) {
	objs := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if o, ok := normalize.AsObject(it); ok {
			objs = append(objs, o)
		}
	}
	ids, rep := identity.NewPlanReconciler().Batch(objs)
	out := make([]*entities.TravelPlan, len(objs))
	for i, o := range objs {
		out[i], _ = build(o, ids[i], opts)
	}
	if rep.Degraded() {
		logger.Warnf("[itinerary] none of %d plans carries a server id", rep.Total)
	}
	return out, rep
}

func build(raw map[string]any, id identity.Result, opts Options) (*entities.TravelPlan, Report) {
	p := &entities.TravelPlan{
		ID:            id.ID,
		Authoritative: id.Authoritative,
		Destination:   normalize.String(raw, normalize.PlanDestination, ""),
		Description:   normalize.String(raw, normalize.PlanDescription, ""),
		IsPublic:      normalize.Bool(raw, normalize.PlanPublic, false),
		CoverImage:    normalize.String(raw, normalize.PlanCover, ""),
		CreatedBy:     normalize.String(raw, normalize.PlanCreator, ""),
		Travelers:     1,
	}
	p.Title = normalize.String(raw, normalize.PlanTitle, "")
	if p.Title == "" {
		p.Title = untitledPlan
		if p.Destination != "" {
			p.Title = "Trip to " + p.Destination
		}
	}
	if b, ok := normalize.Number(raw, normalize.PlanBudget); ok && b >= 0 {
		p.Budget = b
	} else {
		p.BudgetLabel = normalize.String(raw, normalize.PlanBudgetLabel, "")
	}
	if n, ok := normalize.Int(raw, normalize.PlanTravelers); ok && n > 0 {
		p.Travelers = n
	}

	p.StartDate = normalize.DateOr(raw, normalize.PlanStart, opts.today())
	p.EndDate = normalize.DateOr(raw, normalize.PlanEnd, p.StartDate)
	if p.EndDate.Before(p.StartDate) {
		logger.Debugf("[itinerary] plan %s ends before it starts; using start date", p.ID)
		p.EndDate = p.StartDate
	}

	rep := Report{}
	var buckets []bucket
	buckets, rep.Shape = locate(raw, p.StartDate, p.EndDate, opts, &rep)
	if rep.Shape == ShapeSynthesized {
		p.Days = synthesize(p.StartDate, p.EndDate, opts.maxDays(), &rep)
		return p, rep
	}
	p.Days = make([]entities.Day, len(buckets))
	for di, b := range buckets {
		day := entities.Day{Date: b.date, Activities: make([]entities.Activity, 0, len(b.items))}
		for _, item := range b.items {
			a, ok := Activity(item, di, len(day.Activities))
			if !ok {
				rep.Dropped++
				continue
			}
			if !a.Authoritative {
				rep.PositionalIDs++
			}
			day.Activities = append(day.Activities, a)
		}
		p.Days[di] = day
	}
	if rep.Dropped > 0 {
		logger.Debugf("[itinerary] plan %s: dropped %d unreadable activities", p.ID, rep.Dropped)
	}
	return p, rep
}

type bucket struct {
	date  time.Time
	items []any
}

// locate applies the shape rules in order; the first one with data wins.
func locate(raw map[string]any, start, end time.Time, opts Options, rep *Report) ([]bucket, Shape) {
	if days, ok := nonEmpty(raw, normalize.PlanDays); ok {
		return grouped(days, start), ShapeDays
	}
	if details, ok := normalize.Object(raw, normalize.PlanDetails); ok {
		if days, ok := nonEmpty(details, normalize.PlanDays); ok {
			return grouped(days, start), ShapeDays
		}
	}
	if groups, ok := nonEmpty(raw, normalize.PlanItinerary); ok {
		return grouped(groups, start), ShapeItinerary
	}
	if acts, ok := nonEmpty(raw, normalize.PlanActivities); ok {
		return byDate(acts, start, end, opts.maxDays(), rep), ShapeActivities
	}
	if groups, ok := nonEmpty(raw, normalize.PlanItineraryDays); ok {
		return grouped(groups, start), ShapeItineraryDays
	}
	return nil, ShapeSynthesized
}

func nonEmpty(obj map[string]any, f normalize.Field) ([]any, bool) {
	l, ok := normalize.List(obj, f)
	return l, ok && len(l) > 0
}

// grouped maps per-day groups to buckets. A group without its own date sits
// at start plus its position.
func grouped(groups []any, start time.Time) []bucket {
	out := make([]bucket, len(groups))
	for i, g := range groups {
		b := bucket{date: start.AddDate(0, 0, i)}
		if obj, ok := normalize.AsObject(g); ok {
			b.date = normalize.DateOr(obj, normalize.DayDate, b.date)
			b.items, _ = normalize.List(obj, normalize.DayActivities)
		} else if l, ok := normalize.AsList(g); ok {
			b.items = l
		}
		out[i] = b
	}
	return out
}

// byDate buckets a flat activity list by each entry's date. Entries without
// a usable date go to the start date. Every day of the plan's range gets a
// bucket, even if empty.
func byDate(acts []any, start, end time.Time, maxDays int, rep *Report) []bucket {
	idx := map[time.Time]int{}
	var out []bucket
	add := func(d time.Time) int {
		if i, ok := idx[d]; ok {
			return i
		}
		idx[d] = len(out)
		out = append(out, bucket{date: d})
		return idx[d]
	}
	for _, d := range dateRange(start, end, maxDays) {
		add(d)
	}
	for _, a := range acts {
		d := start
		if obj, ok := normalize.AsObject(a); ok {
			if t, ok := normalize.Date(obj, normalize.ActivityDate); ok {
				d = t
			} else {
				rep.DefaultedDates++
			}
		} else {
			rep.DefaultedDates++
		}
		i := add(d)
		out[i].items = append(out[i].items, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].date.Before(out[j].date) })
	return out
}

func dateRange(start, end time.Time, maxDays int) []time.Time {
	var out []time.Time
	for d := start; !d.After(end) && len(out) < maxDays; d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func synthesize(start, end time.Time, maxDays int, rep *Report) []entities.Day {
	dates := dateRange(start, end, maxDays)
	if len(dates) > 0 && dates[len(dates)-1].Before(end) {
		rep.Truncated = true
		logger.Warnf("[itinerary] date range %s..%s capped at %d days",
			start.Format(entities.DateLayout), end.Format(entities.DateLayout), maxDays)
	}
	days := make([]entities.Day, len(dates))
	for i, d := range dates {
		days[i] = entities.Day{Date: d, Activities: []entities.Activity{Example(i + 1)}}
		rep.Placeholders++
	}
	return days
}

// Example is the n-th placeholder activity shown when a plan has no
// itinerary data.
func Example(n int) entities.Activity {
	return entities.Activity{
		ID:              identity.ExampleActivity(n),
		Name:            exampleName,
		Category:        entities.CategoryOther,
		Time:            entities.DefaultActivityTime,
		DurationMinutes: entities.DefaultDurationMinutes,
		Description:     exampleNote,
		Placeholder:     true,
	}
}

// Activity normalizes one raw activity. day and slot give the positional
// identifier used when the entry carries no ID of its own. A bare string is
// taken as the activity name; anything else that is not an object is
// rejected.
func Activity(raw any, day, slot int) (entities.Activity, bool) {
	obj, ok := normalize.AsObject(raw)
	if !ok {
		s, isStr := raw.(string)
		if !isStr || strings.TrimSpace(s) == "" {
			return entities.Activity{}, false
		}
		obj = map[string]any{"name": s}
	}
	a := entities.Activity{
		Name:        normalize.String(obj, normalize.ActivityName, untitledActivity),
		Location:    normalize.String(obj, normalize.ActivityLocation, ""),
		Category:    entities.ParseCategory(normalize.String(obj, normalize.ActivityType, "")),
		Time:        clock(normalize.String(obj, normalize.ActivityTime, "")),
		PlaceID:     normalize.String(obj, normalize.ActivityPlaceID, ""),
		Address:     normalize.String(obj, normalize.ActivityAddress, ""),
		Photos:      normalize.Strings(obj, normalize.ActivityPhotos),
		Description: normalize.String(obj, normalize.ActivityDescription, ""),
	}
	id := activityIDs.Reconcile(obj)
	a.ID, a.Authoritative = id.ID, id.Authoritative
	if !a.Authoritative {
		a.ID = identity.Positional(day, slot)
	}

	a.DurationMinutes = entities.DefaultDurationMinutes
	if n, ok := normalize.Int(obj, normalize.ActivityDuration); ok && n > 0 {
		a.DurationMinutes = n
	}
	a.Lat, a.Lng = coordinates(obj)
	if r, ok := normalize.Number(obj, normalize.ActivityRating); ok && r >= 0 && r <= 5 {
		a.Rating = &r
	}
	return a, true
}

// coordinates reads lat/lng from the activity or from a nested location
// object. Anything partial or out of range is (0,0), i.e. no marker.
func coordinates(obj map[string]any) (float64, float64) {
	lat, okLat := normalize.Number(obj, normalize.ActivityLat)
	lng, okLng := normalize.Number(obj, normalize.ActivityLng)
	if !okLat || !okLng {
		if loc, ok := normalize.Object(obj, normalize.ActivityCoordinates); ok {
			lat, okLat = normalize.Number(loc, normalize.ActivityLat)
			lng, okLng = normalize.Number(loc, normalize.ActivityLng)
		}
	}
	if !okLat || !okLng || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0
	}
	return lat, lng
}

var clockLayouts = []string{"15:04", "15:04:05", "3:04 PM", "3:04PM"}

func clock(s string) string {
	for _, l := range clockLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.Format("15:04")
		}
	}
	return entities.DefaultActivityTime
}
