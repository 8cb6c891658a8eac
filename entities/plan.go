package entities

import "time"

// DateLayout is the calendar-date format used on the wire and in day keys.
const DateLayout = "2006-01-02"

type TravelPlan struct {
	ID            string    `json:"id"`
	Authoritative bool      `json:"authoritative_id"`
	Title         string    `json:"title"`
	Destination   string    `json:"destination"`
	Description   string    `json:"description,omitempty"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	Budget        float64   `json:"budget"`
	BudgetLabel   string    `json:"budget_label,omitempty"` // raw tier text, e.g. "中"
	Travelers     int       `json:"travelers"`
	IsPublic      bool      `json:"is_public"`
	CoverImage    string    `json:"cover_image,omitempty"`
	CreatedBy     string    `json:"created_by,omitempty"`
	Days          []Day     `json:"days"`
}

type Day struct {
	Date       time.Time  `json:"date"`
	Activities []Activity `json:"activities"`
}

// DayCount is the inclusive number of calendar days the plan spans.
func (p *TravelPlan) DayCount() int {
	if p.EndDate.Before(p.StartDate) {
		return 1
	}
	return int(p.EndDate.Sub(p.StartDate).Hours()/24) + 1
}

func (p *TravelPlan) ActivityCount() int {
	n := 0
	for _, d := range p.Days {
		n += len(d.Activities)
	}
	return n
}

// FindActivity returns the day and activity index of id, or -1, -1.
func (p *TravelPlan) FindActivity(id string) (int, int) {
	for di, d := range p.Days {
		for ai, a := range d.Activities {
			if a.ID == id {
				return di, ai
			}
		}
	}
	return -1, -1
}

// Clone returns a deep copy; nothing in the copy aliases p.
func (p *TravelPlan) Clone() *TravelPlan {
	if p == nil {
		return nil
	}
	out := *p
	if p.Days != nil {
		out.Days = make([]Day, len(p.Days))
		for i, d := range p.Days {
			out.Days[i] = d.Clone()
		}
	}
	return &out
}

func (d Day) Clone() Day {
	out := Day{Date: d.Date}
	if d.Activities != nil {
		out.Activities = make([]Activity, len(d.Activities))
		for i, a := range d.Activities {
			out.Activities[i] = a.Clone()
		}
	}
	return out
}
