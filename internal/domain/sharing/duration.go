package sharing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zyncure/zyncure/internal/platform/apperr"
)

type DurationUnit string

const (
	DurationNone   DurationUnit = "none"
	DurationHours  DurationUnit = "hours"
	DurationDays   DurationUnit = "days"
	DurationWeeks  DurationUnit = "weeks"
	DurationMonths DurationUnit = "months"
	DurationCustom DurationUnit = "custom"
)

// DurationSpec says how long a grant lasts. Value counts Unit for the
// relative units; Date holds the expiry for custom.
type DurationSpec struct {
	Unit  DurationUnit `json:"unit"`
	Value int          `json:"value,omitempty"`
	Date  string       `json:"date,omitempty"`
}

// ParseDurationSpec reads the compact form: "none", "hours:6", "months:1",
// "custom:2030-06-03" or "custom:2030-06-03T17:00".
func ParseDurationSpec(s string) (DurationSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == string(DurationNone) {
		return DurationSpec{Unit: DurationNone}, nil
	}
	unit, arg, ok := strings.Cut(s, ":")
	if !ok {
		return DurationSpec{}, invalidDuration(fmt.Sprintf("duration %q must look like unit:value", s))
	}
	spec := DurationSpec{Unit: DurationUnit(unit)}
	if spec.Unit == DurationCustom {
		spec.Date = arg
	} else {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return DurationSpec{}, invalidDuration(fmt.Sprintf("duration value %q is not a number", arg))
		}
		spec.Value = n
	}
	return spec, spec.Validate()
}

// UnmarshalJSON accepts either the object form or the compact string form.
func (d *DurationSpec) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		spec, err := ParseDurationSpec(s)
		if err != nil {
			return err
		}
		*d = spec
		return nil
	}
	type plain DurationSpec
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	*d = DurationSpec(p)
	return nil
}

func (d DurationSpec) String() string {
	switch d.Unit {
	case DurationNone, "":
		return string(DurationNone)
	case DurationCustom:
		return "custom:" + d.Date
	}
	return fmt.Sprintf("%s:%d", d.Unit, d.Value)
}

func invalidDuration(msg string) error { return apperr.Validation("invalid_duration", msg) }

// MaxGrantYears bounds how far in the future a grant may expire.
const MaxGrantYears = 10

// maxValues caps each relative unit so the expiry stays within MaxGrantYears.
var maxValues = map[DurationUnit]int{
	DurationHours:  MaxGrantYears * 365 * 24,
	DurationDays:   MaxGrantYears * 365,
	DurationWeeks:  MaxGrantYears * 52,
	DurationMonths: MaxGrantYears * 12,
}

// Validate checks the unit and that relative units have a count between 1
// and the unit's cap.
func (d DurationSpec) Validate() error {
	switch d.Unit {
	case DurationNone, "":
		return nil
	case DurationHours, DurationDays, DurationWeeks, DurationMonths:
		if d.Value < 1 {
			return invalidDuration(fmt.Sprintf("%s must be at least 1", d.Unit))
		}
		if limit := maxValues[d.Unit]; d.Value > limit {
			return invalidDuration(fmt.Sprintf("%s must be at most %d", d.Unit, limit))
		}
		return nil
	case DurationCustom:
		if strings.TrimSpace(d.Date) == "" {
			return invalidDuration("custom duration needs a date")
		}
		return nil
	}
	return invalidDuration(fmt.Sprintf("unknown duration unit %q", d.Unit))
}

var customLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}

// ExpiresAt computes the expiry for a grant created at now by an owner in
// loc. It returns nil for grants without expiry. Calendar units follow the
// owner's wall clock, so a day is not always 24 hours.
func (d DurationSpec) ExpiresAt(now time.Time, loc *time.Location) (*time.Time, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)

	var exp time.Time
	switch d.Unit {
	case DurationNone, "":
		return nil, nil
	case DurationHours:
		exp = local.Add(time.Duration(d.Value) * time.Hour)
	case DurationDays:
		exp = local.AddDate(0, 0, d.Value)
	case DurationWeeks:
		exp = local.AddDate(0, 0, 7*d.Value)
	case DurationMonths:
		exp = local.AddDate(0, d.Value, 0)
	case DurationCustom:
		t, err := parseCustom(strings.TrimSpace(d.Date), loc)
		if err != nil {
			return nil, err
		}
		if !t.After(now) {
			return nil, invalidDuration("custom expiry must be in the future")
		}
		if t.After(local.AddDate(MaxGrantYears, 0, 0)) {
			return nil, invalidDuration(fmt.Sprintf("custom expiry must be within %d years", MaxGrantYears))
		}
		exp = t
	}
	return &exp, nil
}

// parseCustom reads a timestamp or a bare date. A bare date means the end of
// that day in loc.
func parseCustom(s string, loc *time.Location) (time.Time, error) {
	if day, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, loc), nil
	}
	for _, layout := range customLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, invalidDuration(fmt.Sprintf("custom date %q is not a date or timestamp", s))
}
