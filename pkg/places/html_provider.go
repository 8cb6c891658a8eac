package places

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// htmlProvider scrapes a place search page. It understands pages that mark
// results up with data-* attributes and pages carrying OpenGraph place
// metadata.
type htmlProvider struct {
	endpoint string
	httpc    *http.Client
	maxBytes int64
}

func NewHTML(endpoint string, timeout time.Duration) Provider {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &htmlProvider{endpoint: endpoint, httpc: &http.Client{Timeout: timeout}, maxBytes: 1 << 20}
}

func (p *htmlProvider) Lookup(ctx context.Context, query string) (*Place, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")
	resp, err := p.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoMatch
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("places: status %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, p.maxBytes))
	if err != nil {
		return nil, err
	}
	if pl, ok := fromDataAttrs(doc); ok {
		return pl, nil
	}
	if pl, ok := fromOpenGraph(doc); ok {
		return pl, nil
	}
	return nil, ErrNoMatch
}

func fromDataAttrs(doc *goquery.Document) (*Place, bool) {
	sel := doc.Find("[data-place]").First()
	if sel.Length() == 0 {
		return nil, false
	}
	lat, okLat := attrFloat(sel, "data-lat")
	lng, okLng := attrFloat(sel, "data-lng")
	if !okLat || !okLng {
		return nil, false
	}
	pl := &Place{Lat: lat, Lng: lng}
	pl.PlaceID, _ = sel.Attr("data-place-id")
	pl.Name = strings.TrimSpace(sel.Find(".name, h1, h2").First().Text())
	pl.Address = strings.TrimSpace(sel.Find(".address, address").First().Text())
	if r, ok := attrFloat(sel, "data-rating"); ok {
		pl.Rating = &r
	}
	sel.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		if src, _ := s.Attr("src"); strings.TrimSpace(src) != "" {
			pl.Photos = append(pl.Photos, strings.TrimSpace(src))
		}
	})
	return pl, true
}

func fromOpenGraph(doc *goquery.Document) (*Place, bool) {
	meta := func(prop string) string {
		v, _ := doc.Find(`meta[property="` + prop + `"]`).First().Attr("content")
		return strings.TrimSpace(v)
	}
	lat, err1 := strconv.ParseFloat(meta("place:location:latitude"), 64)
	lng, err2 := strconv.ParseFloat(meta("place:location:longitude"), 64)
	if err1 != nil || err2 != nil {
		return nil, false
	}
	pl := &Place{Lat: lat, Lng: lng, Name: meta("og:title"), Address: meta("og:street-address")}
	if img := meta("og:image"); img != "" {
		pl.Photos = []string{img}
	}
	return pl, true
}

func attrFloat(sel *goquery.Selection, name string) (float64, bool) {
	v, ok := sel.Attr(name)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f, err == nil
}
