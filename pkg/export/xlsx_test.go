package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"travo/entities"
	"travo/pkg/itinerary"
)

func kyoto() *entities.TravelPlan {
	d1 := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	r := 4.5
	return &entities.TravelPlan{
		ID: "p1", Title: "Trip to Kyoto", Destination: "Kyoto", StartDate: d1, EndDate: d1.AddDate(0, 0, 1),
		BudgetLabel: "中", Travelers: 2,
		Days: []entities.Day{
			{Date: d1, Activities: []entities.Activity{
				{ID: "a1", Name: "Temple", Time: "09:00", Category: entities.CategorySightseeing, DurationMinutes: 90, Lat: 34.99, Lng: 135.78, Rating: &r},
				{ID: "a2", Name: "Lunch", Time: "12:30", Category: entities.CategoryDining, DurationMinutes: 60},
			}},
			{Date: d1.AddDate(0, 0, 1), Activities: []entities.Activity{itinerary.Example(1)}},
		},
	}
}

func TestWrite_RoundTripThroughReader(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, kyoto()); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(SheetItinerary)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows (placeholder skipped), got=%d", len(rows))
	}
	if rows[1][3] != "Temple" || rows[1][1] != "2025-05-01" || rows[2][4] != "dining" {
		t.Fatalf("unexpected rows %v", rows)
	}
	if v, _ := f.GetCellValue(SheetSummary, "B7"); v != "中" {
		t.Fatalf("expected budget label in summary, got=%q", v)
	}

	acts, err := ReadActivities(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(acts) != 2 {
		t.Fatalf("expected 2 activities, got=%d", len(acts))
	}
	a, ok := itinerary.Activity(acts[0], 0, 0)
	if !ok || a.Name != "Temple" || a.DurationMinutes != 90 || a.Lat != 34.99 || a.Category != entities.CategorySightseeing {
		t.Fatalf("unexpected activity %+v", a)
	}
	// exported IDs are not read back
	if a.ID != "idx-0-0" {
		t.Fatalf("expected positional id, got=%s", a.ID)
	}
}

func TestReadActivities_LooseHeaders(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]any{
		{"\uFEFFActivity", "日期", "Start Time", "Notes"},
		{"Night market", "2025-05-02", "19:00", "bring cash"},
		{"", "2025-05-02", "20:00", ""},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("row: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	acts, err := ReadActivities(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(acts) != 1 || acts[0]["date"] != "2025-05-02" || acts[0]["time"] != "19:00" || acts[0]["description"] != "bring cash" {
		t.Fatalf("unexpected %v", acts)
	}
}

func TestReadActivities_NoNameColumn(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	_ = f.SetCellValue("Sheet1", "A1", "Date")
	var buf bytes.Buffer
	_ = f.Write(&buf)
	if _, err := ReadActivities(&buf); err == nil {
		t.Fatalf("expected error for sheet without name column")
	}
}

func TestFilename(t *testing.T) {
	p := kyoto()
	p.Title = "Kyoto / Osaka"
	if got := Filename(p); got != "Kyoto _ Osaka-2025-05-01.xlsx" {
		t.Fatalf("got=%s", got)
	}
}
