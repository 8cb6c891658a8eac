// Package places looks up coordinates, photos and ratings for activities,
// and turns a plan into map markers.
package places

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/gommon/log"

	"travo/entities"
)

var logger = log.New("places")

func SetLogLevel(l log.Lvl) { logger.SetLevel(l) }

var ErrNoMatch = errors.New("places: no match")

type Place struct {
	Name    string   `json:"name"`
	Address string   `json:"address,omitempty"`
	PlaceID string   `json:"place_id,omitempty"`
	Lat     float64  `json:"lat"`
	Lng     float64  `json:"lng"`
	Rating  *float64 `json:"rating,omitempty"`
	Photos  []string `json:"photos,omitempty"`
}

type Provider interface {
	Lookup(ctx context.Context, query string) (*Place, error)
}

// Enrich fills what the activity lacks from a place lookup. Activities that
// already have coordinates are left alone. A failed lookup leaves a (0,0)
// activity, which simply gets no marker.
func Enrich(ctx context.Context, p Provider, a *entities.Activity, near string) {
	if p == nil || a.HasCoordinates() || a.Placeholder {
		return
	}
	q := strings.TrimSpace(strings.Join(nonEmpty(a.Name, a.Location, near), " "))
	if q == "" {
		return
	}
	pl, err := p.Lookup(ctx, q)
	if err != nil {
		logger.Debugf("[places] lookup %q: %v", q, err)
		return
	}
	if pl.Lat == 0 && pl.Lng == 0 {
		return
	}
	a.Lat, a.Lng = pl.Lat, pl.Lng
	if a.Address == "" {
		a.Address = pl.Address
	}
	if a.PlaceID == "" {
		a.PlaceID = pl.PlaceID
	}
	if a.Rating == nil && pl.Rating != nil && *pl.Rating >= 0 && *pl.Rating <= 5 {
		r := *pl.Rating
		a.Rating = &r
	}
	if len(a.Photos) == 0 && len(pl.Photos) > 0 {
		a.Photos = append([]string(nil), pl.Photos...)
	}
	if a.Location == "" {
		a.Location = pl.Name
	}
}

func nonEmpty(ss ...string) []string {
	out := ss[:0:0]
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

type Marker struct {
	ActivityID string  `json:"activity_id"`
	Name       string  `json:"name"`
	Day        int     `json:"day"`
	Order      int     `json:"order"`
	Time       string  `json:"time"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
}

// Markers lists every activity that can be drawn on a map, in itinerary
// order. Order counts from 1 within each day.
func Markers(p *entities.TravelPlan) []Marker {
	var out []Marker
	for di, d := range p.Days {
		n := 0
		for _, a := range d.Activities {
			if !a.HasCoordinates() {
				continue
			}
			n++
			out = append(out, Marker{ActivityID: a.ID, Name: a.Name, Day: di, Order: n, Time: a.Time, Lat: a.Lat, Lng: a.Lng})
		}
	}
	return out
}

// Bounds is the box around all markers, for fitting the map viewport.
func Bounds(ms []Marker) (south, west, north, east float64, ok bool) {
	for i, m := range ms {
		if i == 0 {
			south, north, west, east = m.Lat, m.Lat, m.Lng, m.Lng
			continue
		}
		south, north = min(south, m.Lat), max(north, m.Lat)
		west, east = min(west, m.Lng), max(east, m.Lng)
	}
	return south, west, north, east, len(ms) > 0
}
