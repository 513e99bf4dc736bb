package schedules

import "github.com/repcal/backend/internal/civil"

// OccursOn reports whether the schedule's rule fires on the given date.
// A malformed offset (nil, zero, negative) yields false for every date;
// historical rows may carry incomplete rules and that is policy, not a fault.
func OccursOn(schedule Schedule, date civil.Date) bool {
	switch schedule.Recurrence {
	case RecurrenceOneOff:
		return date.Equal(schedule.StartDate)
	case RecurrenceWeekly:
		if date.Before(schedule.StartDate) {
			return false
		}
		return date.Weekday() == schedule.StartDate.Weekday()
	case RecurrenceOffset:
		if schedule.OffsetDays == nil || *schedule.OffsetDays < 1 {
			return false
		}
		if date.Before(schedule.StartDate) {
			return false
		}
		return civil.DaysBetween(schedule.StartDate, date)%*schedule.OffsetDays == 0
	default:
		return false
	}
}

// OccurrencesInRange lists every date in [from, to] the schedule fires on,
// ascending. Weekly and offset rules jump by their period after aligning to
// the first occurrence; results match day-by-day iteration exactly.
func OccurrencesInRange(schedule Schedule, from, to civil.Date) []civil.Date {
	if to.Before(from) {
		return nil
	}
	switch schedule.Recurrence {
	case RecurrenceOneOff:
		if schedule.StartDate.Before(from) || schedule.StartDate.After(to) {
			return nil
		}
		return []civil.Date{schedule.StartDate}
	case RecurrenceWeekly:
		return stepOccurrences(schedule, from, to, 7)
	case RecurrenceOffset:
		if schedule.OffsetDays == nil || *schedule.OffsetDays < 1 {
			return nil
		}
		return stepOccurrences(schedule, from, to, *schedule.OffsetDays)
	default:
		return nil
	}
}

func stepOccurrences(schedule Schedule, from, to civil.Date, period int) []civil.Date {
	cursor := from
	if cursor.Before(schedule.StartDate) {
		cursor = schedule.StartDate
	}
	if remainder := civil.DaysBetween(schedule.StartDate, cursor) % period; remainder != 0 {
		cursor = cursor.AddDays(period - remainder)
	}
	var occurrences []civil.Date
	for !cursor.After(to) {
		occurrences = append(occurrences, cursor)
		cursor = cursor.AddDays(period)
	}
	return occurrences
}
