// Package export writes a plan's itinerary as a spreadsheet and reads
// activity rows back from one.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"travo/entities"
	"travo/pkg/normalize"
)

const (
	SheetItinerary = "Itinerary"
	SheetSummary   = "Summary"
)

var columns = []string{"Day", "Date", "Time", "Name", "Type", "Duration (min)", "Location", "Address", "Lat", "Lng", "Rating", "ID"}

// Workbook lays out the plan as one row per activity, in itinerary order,
// plus a summary sheet. Placeholder activities are skipped.
func Workbook(p *entities.TravelPlan) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetItinerary); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(SheetSummary); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetSheetRow(SheetItinerary, "A1", &columns); err != nil {
		f.Close()
		return nil, err
	}
	row := 2
	for di, d := range p.Days {
		for _, a := range d.Activities {
			if a.Placeholder {
				continue
			}
			vals := []any{di + 1, d.Date.Format(entities.DateLayout), a.Time, a.Name, string(a.Category),
				a.DurationMinutes, a.Location, a.Address, nil, nil, nil, a.ID}
			if a.HasCoordinates() {
				vals[8], vals[9] = a.Lat, a.Lng
			}
			if a.Rating != nil {
				vals[10] = *a.Rating
			}
			cell, _ := excelize.CoordinatesToCellName(1, row)
			if err := f.SetSheetRow(SheetItinerary, cell, &vals); err != nil {
				f.Close()
				return nil, err
			}
			row++
		}
	}

	summary := [][]any{
		{"Title", p.Title},
		{"Destination", p.Destination},
		{"Start", p.StartDate.Format(entities.DateLayout)},
		{"End", p.EndDate.Format(entities.DateLayout)},
		{"Days", len(p.Days)},
		{"Travelers", p.Travelers},
		{"Budget", budget(p)},
	}
	for i, r := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SheetSummary, cell, &r); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func budget(p *entities.TravelPlan) any {
	if p.BudgetLabel != "" {
		return p.BudgetLabel
	}
	return p.Budget
}

func Write(w io.Writer, p *entities.TravelPlan) error {
	f, err := Workbook(p)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// Filename is a download name derived from the plan title.
func Filename(p *entities.TravelPlan) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(p.Title))
	if name == "" {
		name = "itinerary"
	}
	return fmt.Sprintf("%s-%s.xlsx", name, p.StartDate.Format(entities.DateLayout))
}

// headerAliases maps accepted column titles onto activity keys understood
// by the itinerary reconstructor.
var headerAliases = map[string][]string{
	"name":             {"name", "title", "activity", "活動", "名稱"},
	"date":             {"date", "日期"},
	"time":             {"time", "start", "starttime", "時間"},
	"type":             {"type", "category", "類型"},
	"duration_minutes": {"durationmin", "duration", "durationminutes", "minutes", "時長"},
	"location":         {"location", "place", "地點"},
	"address":          {"address", "地址"},
	"lat":              {"lat", "latitude"},
	"lng":              {"lng", "lon", "longitude"},
	"rating":           {"rating", "評分"},
	"description":      {"description", "notes", "note", "備註"},
}

func normHeader(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(s, "\uFEFF"))
	s = strings.ToLower(s)
	return strings.NewReplacer(" ", "", "-", "", "_", "", "(", "", ")", "").Replace(s)
}

// ReadActivities reads the first sheet of an XLSX workbook as activity
// rows. Column titles are matched loosely; a name column is required.
// Empty cells are omitted so the usual defaults apply downstream.
func ReadActivities(r io.Reader) ([]map[string]any, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	hmap := map[string]int{}
	for i, h := range rows[0] {
		hmap[normHeader(h)] = i
	}
	cols := map[string]int{}
	for key, aliases := range headerAliases {
		for _, a := range aliases {
			if idx, ok := hmap[normHeader(a)]; ok {
				cols[key] = idx
				break
			}
		}
	}
	if _, ok := cols["name"]; !ok {
		return nil, fmt.Errorf("sheet %q has no name column; found headers: %v", sheet, rows[0])
	}

	var out []map[string]any
	for _, rec := range rows[1:] {
		obj := map[string]any{}
		for key, idx := range cols {
			if idx >= len(rec) {
				continue
			}
			if v := strings.TrimSpace(rec[idx]); v != "" {
				obj[key] = v
			}
		}
		if normalize.String(obj, normalize.ActivityName, "") == "" {
			continue
		}
		out = append(out, obj)
	}
	return out, nil
}
