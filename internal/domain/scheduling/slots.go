package scheduling

import (
	"fmt"
	"sort"

	"github.com/zyncure/zyncure/internal/platform/apperr"
)

// Partition splits t into consecutive slots of t.SlotDuration minutes on
// date. A trailing window shorter than the duration is dropped.
func Partition(t *Template, date Date) []TimeSlot {
	if t.SlotDuration <= 0 || t.StartTime >= t.EndTime {
		return nil
	}
	n := int(t.EndTime-t.StartTime) / t.SlotDuration
	slots := make([]TimeSlot, 0, n)
	for i := 0; i < n; i++ {
		start := t.StartTime.Add(i * t.SlotDuration)
		slots = append(slots, TimeSlot{Date: date, Start: start, End: start.Add(t.SlotDuration)})
	}
	return slots
}

// DeriveSlots computes the bookable slots on date from the doctor's
// templates, exceptions and existing appointments. Inputs belonging to other
// dates or weekdays are ignored, so callers may pass broader sets.
func DeriveSlots(date Date, templates []*Template, exceptions []*Exception, booked []*Appointment) []TimeSlot {
	var blocked []*Exception
	for _, e := range exceptions {
		if e.UnavailableDate != date {
			continue
		}
		if e.WholeDay() {
			return []TimeSlot{}
		}
		blocked = append(blocked, e)
	}

	var taken []ClockTime
	for _, a := range booked {
		if a.Date == date && a.Status.Occupies() {
			taken = append(taken, a.Time)
		}
	}

	slots := []TimeSlot{}
	weekday := date.Weekday()
	for _, t := range templates {
		if !t.IsActive || t.DayOfWeek != weekday {
			continue
		}
	next:
		for _, s := range Partition(t, date) {
			for _, e := range blocked {
				if s.Overlaps(*e.StartTime, *e.EndTime) {
					continue next
				}
			}
			for _, at := range taken {
				if s.Contains(at) {
					continue next
				}
			}
			slots = append(slots, s)
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Start < slots[j].Start })
	return slots
}

// FindSlot returns the slot starting exactly at t.
func FindSlot(slots []TimeSlot, t ClockTime) (TimeSlot, bool) {
	for _, s := range slots {
		if s.Start == t {
			return s, true
		}
	}
	return TimeSlot{}, false
}

func validDuration(d int) bool {
	for _, allowed := range SlotDurations {
		if d == allowed {
			return true
		}
	}
	return false
}

// ValidateTemplate checks candidate on its own and against the doctor's other
// templates. existing may include candidate itself (matched by id) and
// templates of other doctors; both are skipped.
func ValidateTemplate(candidate *Template, existing []*Template) error {
	if candidate.DayOfWeek < 0 || candidate.DayOfWeek > 6 {
		return apperr.Validation("invalid_day_of_week", "day_of_week must be between 0 and 6")
	}
	if candidate.StartTime < 0 || candidate.EndTime > minutesPerDay {
		return apperr.Validation("invalid_time", "times must fall within the day")
	}
	if candidate.StartTime >= candidate.EndTime {
		return apperr.Validation("invalid_window", "start_time must be before end_time")
	}
	if !validDuration(candidate.SlotDuration) {
		return apperr.Validation("invalid_slot_duration",
			fmt.Sprintf("slot_duration_minutes must be one of %v", SlotDurations))
	}
	if !candidate.IsActive {
		return nil
	}
	for _, t := range existing {
		if t.ID == candidate.ID || t.DoctorID != candidate.DoctorID {
			continue
		}
		if !t.IsActive || t.DayOfWeek != candidate.DayOfWeek {
			continue
		}
		if candidate.StartTime < t.EndTime && t.StartTime < candidate.EndTime {
			return fmt.Errorf("%s-%s overlaps %s-%s: %w",
				candidate.StartTime, candidate.EndTime, t.StartTime, t.EndTime, ErrTemplateOverlap)
		}
	}
	return nil
}

// ValidateException checks that bounds are either both absent or a proper
// window.
func ValidateException(e *Exception) error {
	if e.UnavailableDate.IsZero() {
		return apperr.Validation("invalid_date", "unavailable_date is required")
	}
	if (e.StartTime == nil) != (e.EndTime == nil) {
		return apperr.Validation("invalid_window", "start_time and end_time must be given together")
	}
	if e.StartTime != nil && *e.StartTime >= *e.EndTime {
		return apperr.Validation("invalid_window", "start_time must be before end_time")
	}
	return nil
}
