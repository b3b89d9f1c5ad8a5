package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Month is a calendar month key. Ordering is numeric on (Year, Month), never
// on the string form.
type Month struct {
	Year  int
	Month time.Month
}

// NewMonth builds a Month and validates it.
func NewMonth(year int, month time.Month) (Month, error) {
	m := Month{Year: year, Month: month}
	if err := m.Validate(); err != nil {
		return Month{}, err
	}
	return m, nil
}

// MonthOf returns the month containing t, in UTC.
func MonthOf(t time.Time) Month {
	t = t.UTC()
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth accepts exactly "YYYY-MM".
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	if len(s) != 7 || s[4] != '-' {
		return Month{}, NewValidationError("month", fmt.Sprintf("malformed month key %q, want YYYY-MM", s))
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return Month{}, NewValidationError("month", fmt.Sprintf("malformed year in %q", s))
	}
	mm, err := strconv.Atoi(s[5:])
	if err != nil {
		return Month{}, NewValidationError("month", fmt.Sprintf("malformed month in %q", s))
	}
	return NewMonth(y, time.Month(mm))
}

func (m Month) Validate() error {
	if m.Year < 1 || m.Year > 9999 {
		return NewValidationError("month", fmt.Sprintf("year %d out of range", m.Year))
	}
	if m.Month < time.January || m.Month > time.December {
		return NewValidationError("month", fmt.Sprintf("month %d out of range", int(m.Month)))
	}
	return nil
}

func (m Month) IsZero() bool { return m.Year == 0 && m.Month == 0 }

// Index is a strictly increasing ordinal for chronological comparison.
func (m Month) Index() int { return m.Year*12 + int(m.Month) - 1 }

// Compare returns -1, 0 or +1.
func (m Month) Compare(o Month) int {
	switch a, b := m.Index(), o.Index(); {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (m Month) Before(o Month) bool { return m.Compare(o) < 0 }
func (m Month) After(o Month) bool  { return m.Compare(o) > 0 }

// Next returns the following month.
func (m Month) Next() Month {
	if m.Month == time.December {
		return Month{Year: m.Year + 1, Month: time.January}
	}
	return Month{Year: m.Year, Month: m.Month + 1}
}

// Range returns [first instant of m, first instant of next month) in UTC.
func (m Month) Range() DateRange {
	from := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
	return DateRange{From: from, To: from.AddDate(0, 1, 0)}
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m Month) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Month) UnmarshalText(b []byte) error {
	v, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// DateRange is [From, To). A zero bound is open.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r DateRange) Validate() error {
	if !r.From.IsZero() && !r.To.IsZero() && !r.From.Before(r.To) {
		return NewValidationError("date_range", "from must be before to")
	}
	return nil
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}
