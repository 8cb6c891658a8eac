package normalize

import (
	"encoding/json"
	"testing"
	"time"
)

func TestString_FirstMatchWins(t *testing.T) {
	obj := map[string]any{"name": "  ", "title": "Kyoto trip", "plan_name": "other"}
	if got := String(obj, PlanTitle, "x"); got != "Kyoto trip" {
		t.Fatalf("expected title, got=%q", got)
	}
	obj = map[string]any{"title": 12.0, "name": "by name"}
	if got := String(obj, PlanTitle, "x"); got != "by name" {
		t.Fatalf("expected name fallback for non-string title, got=%q", got)
	}
	if got := String(nil, PlanTitle, "def"); got != "def" {
		t.Fatalf("expected default on nil, got=%q", got)
	}
}

func TestNumber_AcceptsStringsAndWrappers(t *testing.T) {
	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{45.0, 45, true},
		{json.Number("30"), 30, true},
		{" 90 ", 90, true},
		{map[string]any{"$numberInt": "120"}, 120, true},
		{map[string]any{"$numberDouble": 1.5}, 1.5, true},
		{"abc", 0, false},
		{"NaN", 0, false},
		{true, 0, false},
	}
	for _, tc := range cases {
		got, ok := Number(map[string]any{"duration": tc.in}, ActivityDuration)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("%v: expected %v/%v, got=%v/%v", tc.in, tc.want, tc.ok, got, ok)
		}
	}
}

func TestDate_Unwrapping(t *testing.T) {
	want := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	ms := float64(want.Add(10*time.Hour).UnixMilli())
	inputs := []any{
		"2025-05-01",
		"2025-05-01T10:00:00Z",
		"2025-05-01T23:30:00+09:00",
		map[string]any{"$date": "2025-05-01T10:00:00.000Z"},
		map[string]any{"$date": ms},
		map[string]any{"$date": map[string]any{"$numberLong": "1746093600000"}},
	}
	for _, in := range inputs {
		got, ok := Date(map[string]any{"start_date": in}, PlanStart)
		if !ok || !got.Equal(want) {
			t.Fatalf("%v: expected %v, got=%v ok=%v", in, want, got, ok)
		}
	}
	if _, ok := Date(map[string]any{"start_date": "soon"}, PlanStart); ok {
		t.Fatalf("expected malformed date to be rejected")
	}
	if got, ok := Date(map[string]any{"startDate": "2025-05-01"}, PlanStart); !ok || !got.Equal(want) {
		t.Fatalf("expected camelCase alternate, got=%v", got)
	}
}

func TestList_DecodesJSONStrings(t *testing.T) {
	obj := map[string]any{"days": `[{"date":"2025-05-01"}]`}
	l, ok := List(obj, PlanDays)
	if !ok || len(l) != 1 {
		t.Fatalf("expected decoded list, got=%v ok=%v", l, ok)
	}
	if _, ok := List(map[string]any{"days": "not json"}, PlanDays); ok {
		t.Fatalf("expected plain string to be rejected")
	}
	if l, ok := List(map[string]any{"days": []any{}}, PlanDays); !ok || len(l) != 0 {
		t.Fatalf("empty list is still present")
	}
}

func TestObject_AndEnvelope(t *testing.T) {
	obj := map[string]any{"plan_details": `{"days":[]}`}
	if m, ok := Object(obj, PlanDetails); !ok || m["days"] == nil {
		t.Fatalf("expected decoded object, got=%v", m)
	}
	inner := map[string]any{"id": "x"}
	if got := Envelope(map[string]any{"success": true, "plan": inner}); got["id"] != "x" {
		t.Fatalf("expected plan envelope peeled, got=%v", got)
	}
	if got := Envelope(map[string]any{"data": inner}); got["id"] != "x" {
		t.Fatalf("expected data envelope peeled, got=%v", got)
	}
	if got := Envelope(inner); got["id"] != "x" {
		t.Fatalf("expected bare object unchanged, got=%v", got)
	}
	if got := Envelope([]any{1}); got != nil {
		t.Fatalf("expected nil for non-object, got=%v", got)
	}
}

func TestStrings_SingleAndListForms(t *testing.T) {
	if got := Strings(map[string]any{"photo": "a.jpg"}, ActivityPhotos); len(got) != 1 || got[0] != "a.jpg" {
		t.Fatalf("single photo: got=%v", got)
	}
	obj := map[string]any{"photos": []any{"a.jpg", "", map[string]any{"url": "b.jpg"}, 3.0}}
	if got := Strings(obj, ActivityPhotos); len(got) != 2 || got[1] != "b.jpg" {
		t.Fatalf("list photos: got=%v", got)
	}
	obj = map[string]any{"photos": []any{}, "image": "c.jpg"}
	if got := Strings(obj, ActivityPhotos); len(got) != 1 || got[0] != "c.jpg" {
		t.Fatalf("empty list falls through: got=%v", got)
	}
}

func TestBool(t *testing.T) {
	if !Bool(map[string]any{"isPublic": "true"}, PlanPublic, false) {
		t.Fatalf("expected string bool")
	}
	if Bool(map[string]any{"is_public": "maybe"}, PlanPublic, false) {
		t.Fatalf("expected default")
	}
}

func TestUnwrap_InvalidWrappersDoNotPanic(t *testing.T) {
	for _, in := range []any{
		map[string]any{"$date": []any{}},
		map[string]any{"$oid": 5},
		map[string]any{"$numberLong": "x"},
		map[string]any{"$date": nil},
	} {
		_ = Unwrap(in)
		if _, ok := AsDate(in); ok {
			t.Fatalf("%v: expected no date", in)
		}
	}
}
