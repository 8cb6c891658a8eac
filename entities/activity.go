package entities

type Category string

const (
	CategorySightseeing Category = "sightseeing"
	CategoryDining      Category = "dining"
	CategoryLodging     Category = "lodging"
	CategoryTransport   Category = "transport"
	CategoryShopping    Category = "shopping"
	CategoryEvent       Category = "event"
	CategoryOther       Category = "other"
)

const (
	DefaultDurationMinutes = 60
	DefaultActivityTime    = "09:00"
)

type Activity struct {
	ID              string   `json:"id"`
	Authoritative   bool     `json:"authoritative_id"`
	Name            string   `json:"name"`
	Location        string   `json:"location"`
	Category        Category `json:"type"`
	Time            string   `json:"time"`
	DurationMinutes int      `json:"duration_minutes"`
	Lat             float64  `json:"lat"`
	Lng             float64  `json:"lng"`
	PlaceID         string   `json:"place_id,omitempty"`
	Address         string   `json:"address"`
	Rating          *float64 `json:"rating,omitempty"` // 0..5
	Photos          []string `json:"photos"`
	Description     string   `json:"description"`
	Placeholder     bool     `json:"placeholder,omitempty"`
}

// HasCoordinates reports whether the activity can be drawn as a map marker.
// (0,0) means "no location".
func (a Activity) HasCoordinates() bool {
	if a.Lat == 0 && a.Lng == 0 {
		return false
	}
	return a.Lat >= -90 && a.Lat <= 90 && a.Lng >= -180 && a.Lng <= 180
}

func (a Activity) Clone() Activity {
	out := a
	if a.Rating != nil {
		r := *a.Rating
		out.Rating = &r
	}
	if a.Photos != nil {
		out.Photos = append([]string(nil), a.Photos...)
	}
	return out
}

// ParseCategory maps the backend's free-form type labels onto the fixed set.
func ParseCategory(raw string) Category {
	if c, ok := categoryAliases[normalizeLabel(raw)]; ok {
		return c
	}
	return CategoryOther
}

var categoryAliases = map[string]Category{
	"sightseeing": CategorySightseeing, "attraction": CategorySightseeing, "landmark": CategorySightseeing,
	"museum": CategorySightseeing, "park": CategorySightseeing, "tourist_attraction": CategorySightseeing,
	"景點": CategorySightseeing, "景点": CategorySightseeing, "觀光": CategorySightseeing,

	"dining": CategoryDining, "restaurant": CategoryDining, "food": CategoryDining, "cafe": CategoryDining,
	"meal": CategoryDining, "餐廳": CategoryDining, "餐厅": CategoryDining, "美食": CategoryDining, "咖啡廳": CategoryDining,

	"lodging": CategoryLodging, "hotel": CategoryLodging, "accommodation": CategoryLodging, "hostel": CategoryLodging,
	"住宿": CategoryLodging, "酒店": CategoryLodging, "飯店": CategoryLodging,

	"transport": CategoryTransport, "transportation": CategoryTransport, "transit": CategoryTransport,
	"train": CategoryTransport, "flight": CategoryTransport, "交通": CategoryTransport,

	"shopping": CategoryShopping, "shop": CategoryShopping, "store": CategoryShopping, "market": CategoryShopping,
	"shopping_mall": CategoryShopping, "購物": CategoryShopping, "购物": CategoryShopping, "購物中心": CategoryShopping,

	"event": CategoryEvent, "activity": CategoryEvent, "experience": CategoryEvent, "show": CategoryEvent,
	"活動": CategoryEvent, "文化體驗": CategoryEvent, "體驗": CategoryEvent,

	"other": CategoryOther,
}

func normalizeLabel(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t' || r == '\n':
			continue
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == '-':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
