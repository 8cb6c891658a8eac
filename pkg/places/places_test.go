package places

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"travo/entities"
)

func TestHTMLProvider_DataAttributes(t *testing.T) {
	e := echo.New()
	e.GET("/search", func(c echo.Context) error {
		if c.QueryParam("q") != "Temple Kyoto" {
			return c.NoContent(http.StatusNotFound)
		}
		return c.HTML(http.StatusOK, `<html><body>
			<div data-place data-lat="34.9949" data-lng="135.7850" data-place-id="pl-1" data-rating="4.7">
				<h2 class="name">Kiyomizu-dera</h2><address>1-294 Kiyomizu, Kyoto</address>
				<img src="https://img.example/k1.jpg"><img src="">
			</div></body></html>`)
	})
	srv := httptest.NewServer(e)
	defer srv.Close()

	p := NewHTML(srv.URL+"/search", time.Second)
	pl, err := p.Lookup(context.Background(), "Temple Kyoto")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if pl.Name != "Kiyomizu-dera" || pl.Lat != 34.9949 || pl.PlaceID != "pl-1" || pl.Rating == nil || len(pl.Photos) != 1 {
		t.Fatalf("unexpected place %+v", pl)
	}
	if _, err := p.Lookup(context.Background(), "nowhere"); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got=%v", err)
	}
}

func TestHTMLProvider_OpenGraph(t *testing.T) {
	e := echo.New()
	e.GET("/", func(c echo.Context) error {
		return c.HTML(http.StatusOK, `<html><head>
			<meta property="og:title" content="Nishiki Market">
			<meta property="place:location:latitude" content="35.005">
			<meta property="place:location:longitude" content="135.7649">
			<meta property="og:image" content="https://img.example/n.jpg">
			</head><body></body></html>`)
	})
	srv := httptest.NewServer(e)
	defer srv.Close()

	pl, err := NewHTML(srv.URL+"/", time.Second).Lookup(context.Background(), "market")
	if err != nil || pl.Name != "Nishiki Market" || pl.Lng != 135.7649 || len(pl.Photos) != 1 {
		t.Fatalf("unexpected %+v err=%v", pl, err)
	}
}

func TestEnrich(t *testing.T) {
	a := entities.Activity{Name: "Fushimi Inari"}
	Enrich(context.Background(), NewMock(), &a, "Kyoto")
	if !a.HasCoordinates() || a.Address == "" || a.Rating == nil || a.Location != "Fushimi Inari Taisha" {
		t.Fatalf("expected enrichment, got=%+v", a)
	}

	b := entities.Activity{Name: "Fushimi Inari", Lat: 1, Lng: 1}
	Enrich(context.Background(), NewMock(), &b, "")
	if b.Lat != 1 || b.Address != "" {
		t.Fatalf("activities with coordinates must not change")
	}

	c := entities.Activity{Name: "Unknown cafe"}
	Enrich(context.Background(), NewMock(), &c, "")
	if c.HasCoordinates() {
		t.Fatalf("failed lookup must leave no coordinates")
	}
}

func TestMarkersSkipMissingCoordinates(t *testing.T) {
	p := &entities.TravelPlan{Days: []entities.Day{
		{Activities: []entities.Activity{{ID: "a", Lat: 35, Lng: 135}, {ID: "b"}, {ID: "c", Lat: 35.1, Lng: 135.2}}},
		{Activities: []entities.Activity{{ID: "d", Lat: 91, Lng: 10}}},
	}}
	ms := Markers(p)
	if len(ms) != 2 || ms[1].ActivityID != "c" || ms[1].Order != 2 {
		t.Fatalf("unexpected markers %+v", ms)
	}
	s, w, n, e, ok := Bounds(ms)
	if !ok || s != 35 || n != 35.1 || w != 135 || e != 135.2 {
		t.Fatalf("bounds %v %v %v %v", s, w, n, e)
	}
	if _, _, _, _, ok := Bounds(nil); ok {
		t.Fatalf("no markers, no bounds")
	}
}
