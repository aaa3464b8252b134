package recurrence

import (
	"errors"
	"testing"
	"time"
)

func d(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
}

func starts(occs []Occurrence) []time.Time {
	out := make([]time.Time, len(occs))
	for i, o := range occs {
		out[i] = o.Start
	}
	return out
}

func assertTimes(t *testing.T, got, want []time.Time) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d times %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"FREQ=DAILY", "FREQ=DAILY"},
		{"freq=weekly;interval=2", "FREQ=WEEKLY;INTERVAL=2"},
		{"RRULE:FREQ=WEEKLY;BYDAY=MO,WE,FR", "FREQ=WEEKLY;BYDAY=MO,WE,FR"},
		{"FREQ=WEEKLY;BYDAY=MO,MO", "FREQ=WEEKLY;BYDAY=MO"},
		{"FREQ=MONTHLY;BYMONTHDAY=15;COUNT=6", "FREQ=MONTHLY;BYMONTHDAY=15;COUNT=6"},
		{"FREQ=YEARLY;UNTIL=20301231T000000Z", "FREQ=YEARLY;UNTIL=20301231T000000Z"},
		{"FREQ=DAILY;UNTIL=20260310", "FREQ=DAILY;UNTIL=20260310T235959Z"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			r, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got := r.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			again, err := Parse(r.String())
			if err != nil {
				t.Fatalf("reparse: %v", err)
			}
			if again.String() != r.String() {
				t.Errorf("reparse = %q, want %q", again.String(), r.String())
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	inputs := []string{
		"FREQ=HOURLY",
		"INTERVAL=2",
		"FREQ=DAILY;INTERVAL=0",
		"FREQ=WEEKLY;BYDAY=XX",
		"FREQ=MONTHLY;BYMONTHDAY=32",
		"FREQ=DAILY;COUNT=-1",
		"FREQ=DAILY;UNTIL=tomorrow",
		"FREQ=DAILY;WKST=MO",
		"FREQ=DAILY;BYDAY=MO",
		"FREQ=DAILY;FREQ=WEEKLY",
		"FREQ=DAILY;COUNT=2;UNTIL=20300101",
		"FREQ",
	}
	for _, in := range inputs {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", in)
		}
	}
	if _, err := Parse("  "); !errors.Is(err, ErrEmptyRule) {
		t.Errorf("Parse(blank) err = %v, want ErrEmptyRule", err)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		rule string
		want string
	}{
		{"FREQ=DAILY", "Every day"},
		{"FREQ=DAILY;INTERVAL=3", "Every 3 days"},
		{"FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,TH", "Every 2 weeks on Mon, Thu"},
		{"FREQ=MONTHLY;BYMONTHDAY=1;COUNT=3", "Every month on day 1, 3 times"},
		{"FREQ=YEARLY", "Every year"},
	}
	for _, tt := range tests {
		r, err := Parse(tt.rule)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.rule, err)
		}
		if got := r.Describe(); got != tt.want {
			t.Errorf("Describe(%q) = %q, want %q", tt.rule, got, tt.want)
		}
	}
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name       string
		rule       string
		start      time.Time
		rangeStart time.Time
		rangeEnd   time.Time
		want       []time.Time
	}{
		{
			name:       "daily",
			rule:       "FREQ=DAILY",
			start:      d(2026, 3, 1, 9),
			rangeStart: d(2026, 3, 1, 0),
			rangeEnd:   d(2026, 3, 4, 0),
			want:       []time.Time{d(2026, 3, 1, 9), d(2026, 3, 2, 9), d(2026, 3, 3, 9)},
		},
		{
			name:       "biweekly",
			rule:       "FREQ=WEEKLY;INTERVAL=2",
			start:      d(2026, 3, 3, 18),
			rangeStart: d(2026, 3, 1, 0),
			rangeEnd:   d(2026, 4, 15, 0),
			want:       []time.Time{d(2026, 3, 3, 18), d(2026, 3, 17, 18), d(2026, 3, 31, 18), d(2026, 4, 14, 18)},
		},
		{
			// starts on a Wednesday, so that week's Monday is skipped
			name:       "weekly by day",
			rule:       "FREQ=WEEKLY;BYDAY=FR,MO",
			start:      d(2026, 3, 4, 7),
			rangeStart: d(2026, 3, 1, 0),
			rangeEnd:   d(2026, 3, 17, 0),
			want:       []time.Time{d(2026, 3, 6, 7), d(2026, 3, 9, 7), d(2026, 3, 13, 7), d(2026, 3, 16, 7)},
		},
		{
			name:       "monthly skips short months",
			rule:       "FREQ=MONTHLY",
			start:      d(2026, 1, 31, 10),
			rangeStart: d(2026, 1, 1, 0),
			rangeEnd:   d(2026, 6, 1, 0),
			want:       []time.Time{d(2026, 1, 31, 10), d(2026, 3, 31, 10), d(2026, 5, 31, 10)},
		},
		{
			name:       "monthly by month day",
			rule:       "FREQ=MONTHLY;BYMONTHDAY=15",
			start:      d(2026, 1, 20, 8),
			rangeStart: d(2026, 1, 1, 0),
			rangeEnd:   d(2026, 4, 1, 0),
			want:       []time.Time{d(2026, 2, 15, 8), d(2026, 3, 15, 8)},
		},
		{
			name:       "yearly leap day",
			rule:       "FREQ=YEARLY",
			start:      d(2024, 2, 29, 12),
			rangeStart: d(2024, 1, 1, 0),
			rangeEnd:   d(2029, 1, 1, 0),
			want:       []time.Time{d(2024, 2, 29, 12), d(2028, 2, 29, 12)},
		},
		{
			name:       "count",
			rule:       "FREQ=DAILY;COUNT=3",
			start:      d(2026, 3, 1, 9),
			rangeStart: d(2026, 3, 2, 0),
			rangeEnd:   d(2026, 3, 31, 0),
			want:       []time.Time{d(2026, 3, 2, 9), d(2026, 3, 3, 9)},
		},
		{
			name:       "until",
			rule:       "FREQ=WEEKLY;UNTIL=20260315",
			start:      d(2026, 3, 1, 9),
			rangeStart: d(2026, 3, 1, 0),
			rangeEnd:   d(2026, 12, 31, 0),
			want:       []time.Time{d(2026, 3, 1, 9), d(2026, 3, 8, 9), d(2026, 3, 15, 9)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Parse(tt.rule)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			got := Expand(r, tt.start, tt.start.Add(time.Hour), tt.rangeStart, tt.rangeEnd)
			assertTimes(t, starts(got), tt.want)
		})
	}
}

func TestExpandOverlapAndDuration(t *testing.T) {
	r, _ := Parse("FREQ=DAILY")
	start := d(2026, 3, 1, 22)
	end := start.Add(3 * time.Hour)

	// the 2nd occurrence (22:00 to 01:00) overlaps a range starting at midnight
	got := Expand(r, start, end, d(2026, 3, 3, 0), d(2026, 3, 3, 12))
	if len(got) != 1 {
		t.Fatalf("got %d occurrences, want 1", len(got))
	}
	if !got[0].Start.Equal(d(2026, 3, 2, 22)) {
		t.Errorf("start = %v", got[0].Start)
	}
	if got[0].End.Sub(got[0].Start) != 3*time.Hour {
		t.Errorf("duration = %v, want 3h", got[0].End.Sub(got[0].Start))
	}
}

func TestSteps(t *testing.T) {
	anchor := d(2026, 1, 1, 9)
	end := d(2026, 1, 22, 9)

	got := Steps(anchor, 7, &end, d(2026, 12, 31, 0))
	assertTimes(t, got, []time.Time{d(2026, 1, 8, 9), d(2026, 1, 15, 9), d(2026, 1, 22, 9)})

	offStep := anchor.AddDate(0, 0, 20)
	got = Steps(anchor, 7, &offStep, d(2026, 12, 31, 0))
	assertTimes(t, got, []time.Time{d(2026, 1, 8, 9), d(2026, 1, 15, 9)})

	got = Steps(anchor, 30, nil, d(2026, 3, 2, 9))
	assertTimes(t, got, []time.Time{d(2026, 1, 31, 9)})

	if got := Steps(anchor, 0, nil, d(2027, 1, 1, 0)); got != nil {
		t.Errorf("zero interval = %v, want nil", got)
	}
}
