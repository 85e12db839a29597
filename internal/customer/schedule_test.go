package customer

import "testing"

func TestRangeResolveAppliesSharedOffsetToBothBounds(t *testing.T) {
	r := Range{Lo: 50, Hi: 150, MinOffset: func(float64) float64 { return 10 }}
	lo, hi := r.resolve(0)
	if lo != 60 || hi != 160 {
		t.Errorf("resolve = (%v, %v), want (60, 160)", lo, hi)
	}
}

func TestRangeResolveAppliesSeparateMinMaxOffsets(t *testing.T) {
	r := Range{
		Lo:        50,
		Hi:        150,
		MinOffset: func(float64) float64 { return 5 },
		MaxOffset: func(float64) float64 { return 20 },
	}
	lo, hi := r.resolve(0)
	if lo != 55 || hi != 170 {
		t.Errorf("resolve = (%v, %v), want (55, 170)", lo, hi)
	}
}

func TestRangeResolveSwapsInvertedBounds(t *testing.T) {
	r := Range{Lo: 150, Hi: 50}
	lo, hi := r.resolve(0)
	if lo != 50 || hi != 150 {
		t.Errorf("resolve = (%v, %v), want (50, 150) after swap", lo, hi)
	}
}

func TestScheduleZoneAtPicksMatchingZone(t *testing.T) {
	s := Schedule{Zones: []Zone{
		{From: 0, To: 100, StepMode: Fixed},
		{From: 100, To: 200, StepMode: Jittered},
	}}

	z, err := s.zoneAt(50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if z.StepMode != Fixed {
		t.Errorf("zone at t=50 has StepMode %v, want Fixed", z.StepMode)
	}

	z, err = s.zoneAt(150)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if z.StepMode != Jittered {
		t.Errorf("zone at t=150 has StepMode %v, want Jittered", z.StepMode)
	}
}

func TestScheduleZoneAtErrorsOutsideEveryZone(t *testing.T) {
	s := Schedule{Zones: []Zone{{From: 0, To: 100}}}
	if _, err := s.zoneAt(150); err == nil {
		t.Error("expected an error when t falls outside every zone")
	}
}

func TestScheduleZoneAtBoundaryIsHalfOpen(t *testing.T) {
	s := Schedule{Zones: []Zone{{From: 0, To: 100}, {From: 100, To: 200}}}
	z, err := s.zoneAt(100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if z.From != 100 {
		t.Errorf("zone at exact boundary t=100 should belong to the [100,200) zone, got From=%v", z.From)
	}
}
