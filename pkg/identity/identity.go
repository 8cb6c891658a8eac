// Package identity guarantees that every plan and activity record carries a
// usable identifier, and tells authoritative (server-issued) identifiers
// apart from ones generated on this side.
package identity

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"travo/pkg/normalize"
)

// Candidate keys, highest authority first. A {"$oid": ...} under _id is
// unwrapped by the normalizer.
var (
	PlanKeys     = normalize.Field{Name: "plan_id", Keys: []string{"id", "_id", "planId", "plan_id"}, Kind: normalize.KindString}
	ActivityKeys = normalize.Field{Name: "activity_id", Keys: []string{"id", "activity_id", "activityId", "_id"}, Kind: normalize.KindString}
)

type Result struct {
	ID            string
	Authoritative bool
	// Source is the key the identifier came from, or "" when generated.
	Source string
}

type Reconciler struct {
	Keys     normalize.Field
	Fallback func() string
}

func NewPlanReconciler() *Reconciler {
	return &Reconciler{Keys: PlanKeys, Fallback: Placeholder}
}

func (r *Reconciler) Reconcile(obj map[string]any) Result {
	for _, k := range r.Keys.Keys {
		one := normalize.Field{Name: r.Keys.Name, Keys: []string{k}, Kind: normalize.KindString}
		if id := normalize.String(obj, one, ""); id != "" {
			return Result{ID: id, Authoritative: true, Source: k}
		}
	}
	gen := r.Fallback
	if gen == nil {
		gen = Placeholder
	}
	return Result{ID: gen()}
}

type BatchReport struct {
	Total         int
	Authoritative int
}

// Degraded is true for a non-empty batch in which nothing carries a
// server-issued identifier. Edit operations keyed on identity will not work.
func (b BatchReport) Degraded() bool { return b.Total > 0 && b.Authoritative == 0 }

func (r *Reconciler) Batch(objs []map[string]any) ([]Result, BatchReport) {
	out := make([]Result, len(objs))
	rep := BatchReport{Total: len(objs)}
	seen := make(map[string]bool, len(objs))
	for i, o := range objs {
		res := r.Reconcile(o)
		// generated IDs must not collide even if the clock did not move
		for !res.Authoritative && seen[res.ID] {
			res.ID = r.Reconcile(nil).ID
		}
		seen[res.ID] = true
		if res.Authoritative {
			rep.Authoritative++
		}
		out[i] = res
	}
	return out, rep
}

const (
	placeholderPrefix = "temp-"
	positionalPrefix  = "idx-"
)

// Placeholder returns temp-<unix millis>-<random>.
func Placeholder() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s%d-%s", placeholderPrefix, time.Now().UnixMilli(), suffix)
}

// Positional is the synthetic identifier of the activity at day d, slot a.
func Positional(day, act int) string {
	return fmt.Sprintf("%s%d-%d", positionalPrefix, day, act)
}

var positionalRE = regexp.MustCompile(`^idx-(\d+)-(\d+)$`)

func ParsePositional(id string) (day, act int, ok bool) {
	m := positionalRE.FindStringSubmatch(id)
	if m == nil {
		return 0, 0, false
	}
	d, err1 := strconv.Atoi(m[1])
	a, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return d, a, true
}

// ExampleActivity names the n-th synthesized example activity.
func ExampleActivity(n int) string {
	return fmt.Sprintf("%sact-example-%d", placeholderPrefix, n)
}

type Kind int

const (
	KindOther Kind = iota
	KindUUID
	KindObjectID
	KindPositional
	KindPlaceholder
)

func (k Kind) String() string {
	switch k {
	case KindUUID:
		return "uuid"
	case KindObjectID:
		return "objectid"
	case KindPositional:
		return "positional"
	case KindPlaceholder:
		return "placeholder"
	}
	return "other"
}

func Classify(id string) Kind {
	switch {
	case id == "":
		return KindOther
	case strings.HasPrefix(id, placeholderPrefix):
		return KindPlaceholder
	case positionalRE.MatchString(id):
		return KindPositional
	case primitive.IsValidObjectID(id):
		return KindObjectID
	}
	if _, err := uuid.Parse(id); err == nil {
		return KindUUID
	}
	return KindOther
}

// Synthetic reports whether id was generated on this side and so cannot be
// known to the backend.
func Synthetic(id string) bool {
	k := Classify(id)
	return k == KindPositional || k == KindPlaceholder
}
