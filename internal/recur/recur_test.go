package recur

import (
	"testing"
	"time"
)

func tehran(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tehran")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func TestParse(t *testing.T) {
	cases := map[string]Rule{
		"daily":   Daily,
		"weekly":  Weekly,
		"monthly": Monthly,
		"none":    None,
		"":        None,
		"hourly":  None,
	}
	for in, want := range cases {
		if got := Parse(in); got != want {
			t.Errorf("Parse(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNextFireAfter_Daily(t *testing.T) {
	loc := tehran(t)
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, loc)
	next := NextFireAfter(base.UTC(), Daily, loc)

	want := time.Date(2025, 3, 11, 8, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("daily next = %v, want %v", next.In(loc), want)
	}
}

func TestNextFireAfter_Weekly(t *testing.T) {
	loc := tehran(t)
	base := time.Date(2025, 6, 1, 18, 30, 0, 0, loc)
	next := NextFireAfter(base.UTC(), Weekly, loc)
	want := time.Date(2025, 6, 8, 18, 30, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("weekly next = %v, want %v", next.In(loc), want)
	}
}

func TestNextFireAfter_MonthlyClamp(t *testing.T) {
	loc := tehran(t)

	// anchored on the 31st, rolling into 30-day and 28-day months
	base := time.Date(2025, 1, 31, 9, 0, 0, 0, loc)
	next := NextFireAfter(base.UTC(), Monthly, loc)
	want := time.Date(2025, 2, 28, 9, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("jan31 monthly = %v, want %v", next.In(loc), want)
	}

	base = time.Date(2025, 3, 31, 9, 0, 0, 0, loc)
	next = NextFireAfter(base.UTC(), Monthly, loc)
	want = time.Date(2025, 4, 30, 9, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("mar31 monthly = %v, want %v", next.In(loc), want)
	}
}

func TestNextFireAfter_MonthlyDecemberWrap(t *testing.T) {
	loc := tehran(t)
	base := time.Date(2024, 12, 15, 7, 0, 0, 0, loc)
	next := NextFireAfter(base.UTC(), Monthly, loc)
	want := time.Date(2025, 1, 15, 7, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("dec monthly = %v, want %v", next.In(loc), want)
	}
}

func TestRollToFuture_NoneKeepsPast(t *testing.T) {
	loc := tehran(t)
	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := RollToFuture(past, None, now, loc); !got.Equal(past) {
		t.Errorf("none rule changed the candidate: %v", got)
	}
}

func TestRollToFuture_FutureIsFixedPoint(t *testing.T) {
	loc := tehran(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(48 * time.Hour)
	for _, rule := range []Rule{Daily, Weekly, Monthly} {
		got := RollToFuture(future, rule, now, loc)
		if !got.Equal(future) {
			t.Errorf("%v: already-future candidate moved to %v", rule, got)
		}
		// applying again must not move it either
		if again := RollToFuture(got, rule, now, loc); !again.Equal(got) {
			t.Errorf("%v: not a fixed point, %v -> %v", rule, got, again)
		}
	}
}

func TestRollToFuture_AdvancesStalePast(t *testing.T) {
	loc := tehran(t)
	candidate := time.Date(2025, 1, 1, 8, 0, 0, 0, loc).UTC()
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, loc).UTC()

	got := RollToFuture(candidate, Daily, now, loc)
	if !got.After(now) {
		t.Fatalf("rolled instant %v not after now %v", got, now)
	}
	want := time.Date(2025, 1, 11, 8, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("daily roll = %v, want %v", got.In(loc), want)
	}

	// never fires on the exact instant of creation
	atNow := RollToFuture(now, Weekly, now, loc)
	if !atNow.After(now) {
		t.Errorf("candidate equal to now must roll forward, got %v", atNow)
	}
}
