package planview

import (
	"sync"

	"travo/entities"
)

// Registry holds the mounted view of each plan. Mounting a plan again, or
// unmounting it, closes the previous view so late results cannot land on
// it. Unresolved deletes are tracked per plan and outlive the view that
// started them.
type Registry struct {
	mu      sync.Mutex
	views   map[string]*View
	flights map[string]*flights
	gen     uint64
}

func NewRegistry() *Registry {
	return &Registry{views: map[string]*View{}, flights: map[string]*flights{}}
}

// Mount replaces the plan's view. Activities whose delete is still
// unresolved stay hidden in the new view.
func (r *Registry) Mount(plan *entities.TravelPlan) *View {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.views[plan.ID]; ok {
		old.Close()
	}
	f, ok := r.flights[plan.ID]
	if !ok {
		f = newFlights()
		r.flights[plan.ID] = f
	}
	r.gen++
	v := newView(plan, r.gen, f, r)
	r.views[plan.ID] = v
	return v
}

func (r *Registry) Get(planID string) (*View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[planID]
	return v, ok
}

func (r *Registry) Unmount(planID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[planID]
	if ok {
		v.Close()
		delete(r.views, planID)
	}
	return ok
}

// UnmountAll closes every view, e.g. on logout.
func (r *Registry) UnmountAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, v := range r.views {
		v.Close()
		delete(r.views, id)
	}
}
