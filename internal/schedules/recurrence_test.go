package schedules

import (
	"math/rand"
	"testing"
	"time"

	"github.com/repcal/backend/internal/civil"
)

func intPtr(v int) *int {
	return &v
}

func weeklySchedule(start civil.Date) Schedule {
	return Schedule{WorkoutID: 1, StartDate: start, Recurrence: RecurrenceWeekly}
}

func offsetSchedule(start civil.Date, days *int) Schedule {
	return Schedule{WorkoutID: 1, StartDate: start, Recurrence: RecurrenceOffset, OffsetDays: days}
}

// naiveOccurrences is the day-by-day reference the stepping implementation
// must agree with.
func naiveOccurrences(schedule Schedule, from, to civil.Date) []civil.Date {
	var occurrences []civil.Date
	for cursor := from; !cursor.After(to); cursor = cursor.AddDays(1) {
		if OccursOn(schedule, cursor) {
			occurrences = append(occurrences, cursor)
		}
	}
	return occurrences
}

func TestOneOffOccursOnlyOnStartDate(t *testing.T) {
	start := civil.New(2025, time.January, 15)
	schedule := Schedule{WorkoutID: 1, StartDate: start, Recurrence: RecurrenceOneOff}
	if !OccursOn(schedule, start) {
		t.Fatalf("expected occurrence on start date")
	}
	if OccursOn(schedule, start.AddDays(1)) || OccursOn(schedule, start.AddDays(-1)) {
		t.Fatalf("one-off must not occur off its start date")
	}
}

func TestWeeklyOccursOnMatchingWeekdayFromStart(t *testing.T) {
	start := civil.New(2025, time.January, 15) // Wednesday
	schedule := weeklySchedule(start)

	if !OccursOn(schedule, civil.New(2025, time.January, 22)) {
		t.Fatalf("expected occurrence one week after start")
	}
	if OccursOn(schedule, civil.New(2025, time.January, 16)) {
		t.Fatalf("Thursday must not occur")
	}
	if OccursOn(schedule, civil.New(2025, time.January, 8)) {
		t.Fatalf("matching weekday before start must not occur")
	}
	if !OccursOn(schedule, start) {
		t.Fatalf("start date itself must occur")
	}
}

func TestOffsetOccursOnEveryMultiple(t *testing.T) {
	start := civil.New(2025, time.January, 10)
	schedule := offsetSchedule(start, intPtr(3))

	for k := 0; k < 40; k++ {
		if !OccursOn(schedule, start.AddDays(3*k)) {
			t.Fatalf("expected occurrence at start+%d days", 3*k)
		}
	}
	if OccursOn(schedule, start.AddDays(4)) || OccursOn(schedule, start.AddDays(-3)) {
		t.Fatalf("non-congruent or pre-start dates must not occur")
	}
}

func TestOffsetOfOneIsDaily(t *testing.T) {
	start := civil.New(2025, time.June, 1)
	schedule := offsetSchedule(start, intPtr(1))
	for k := 0; k < 10; k++ {
		if !OccursOn(schedule, start.AddDays(k)) {
			t.Fatalf("daily schedule missing day %d", k)
		}
	}
}

func TestMalformedOffsetNeverOccurs(t *testing.T) {
	start := civil.New(2025, time.January, 10)
	for _, offset := range []*int{nil, intPtr(0), intPtr(-2)} {
		schedule := offsetSchedule(start, offset)
		if OccursOn(schedule, start) {
			t.Fatalf("malformed offset %v must not occur, even on start date", offset)
		}
		if got := OccurrencesInRange(schedule, start, start.AddDays(30)); len(got) != 0 {
			t.Fatalf("malformed offset %v produced occurrences: %v", offset, got)
		}
	}
}

func TestOccurrencesInRangeOffsetScenario(t *testing.T) {
	schedule := offsetSchedule(civil.New(2025, time.January, 10), intPtr(3))
	got := OccurrencesInRange(schedule, civil.New(2025, time.January, 10), civil.New(2025, time.January, 20))
	want := []civil.Date{
		civil.New(2025, time.January, 10),
		civil.New(2025, time.January, 13),
		civil.New(2025, time.January, 16),
		civil.New(2025, time.January, 19),
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d occurrences, got %v", len(want), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("occurrence %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestOccurrencesInRangeIsRestartable(t *testing.T) {
	schedule := weeklySchedule(civil.New(2025, time.January, 15))
	from := civil.New(2025, time.January, 1)
	to := civil.New(2025, time.March, 31)
	first := OccurrencesInRange(schedule, from, to)
	second := OccurrencesInRange(schedule, from, to)
	if len(first) != len(second) {
		t.Fatalf("repeat call changed results: %v vs %v", first, second)
	}
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Fatalf("repeat call changed occurrence %d", i)
		}
	}
}

func TestOccurrencesInRangeEmptyWhenRangeInverted(t *testing.T) {
	schedule := weeklySchedule(civil.New(2025, time.January, 15))
	if got := OccurrencesInRange(schedule, civil.New(2025, time.February, 1), civil.New(2025, time.January, 1)); got != nil {
		t.Fatalf("inverted range must yield nothing, got %v", got)
	}
}

func TestSteppingMatchesNaiveIterationForRandomPairs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := civil.New(2024, time.January, 1)
	recurrences := []Recurrence{RecurrenceOneOff, RecurrenceWeekly, RecurrenceOffset}

	for trial := 0; trial < 1000; trial++ {
		schedule := Schedule{
			WorkoutID:  1,
			StartDate:  base.AddDays(rng.Intn(400)),
			Recurrence: recurrences[rng.Intn(len(recurrences))],
		}
		if schedule.Recurrence == RecurrenceOffset {
			// Mostly valid offsets, occasionally malformed ones.
			switch rng.Intn(5) {
			case 0:
				schedule.OffsetDays = nil
			case 1:
				schedule.OffsetDays = intPtr(-rng.Intn(4))
			default:
				schedule.OffsetDays = intPtr(1 + rng.Intn(14))
			}
		}
		from := base.AddDays(rng.Intn(500))
		to := from.AddDays(rng.Intn(90))

		want := naiveOccurrences(schedule, from, to)
		got := OccurrencesInRange(schedule, from, to)
		if len(got) != len(want) {
			t.Fatalf("trial %d: schedule %+v range [%v, %v]: stepping %v, naive %v",
				trial, schedule, from, to, got, want)
		}
		for i := range want {
			if !got[i].Equal(want[i]) {
				t.Fatalf("trial %d: occurrence %d differs: stepping %v, naive %v", trial, i, got[i], want[i])
			}
		}
	}
}
