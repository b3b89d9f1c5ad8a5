package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseMonth(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2024-01", true},
		{"1999-12", true},
		{"2024-1", false},
		{"2024/01", false},
		{"2024-13", false},
		{"2024-00", false},
		{"24-01", false},
		{"", false},
	}
	for _, tc := range cases {
		m, err := ParseMonth(tc.in)
		if tc.ok {
			if err != nil || m.String() != tc.in {
				t.Fatalf("%q: got %v err=%v", tc.in, m, err)
			}
		} else if !errors.Is(err, ErrValidation) {
			t.Fatalf("%q: expected validation error, got %v", tc.in, err)
		}
	}
}

func TestMonthOrdering(t *testing.T) {
	dec := Month{Year: 2023, Month: time.December}
	jan := Month{Year: 2024, Month: time.January}
	if !dec.Before(jan) || !jan.After(dec) {
		t.Fatal("december 2023 must precede january 2024")
	}
	if dec.Next() != jan {
		t.Fatalf("Next() = %v", dec.Next())
	}
	if jan.Compare(jan) != 0 {
		t.Fatal("month must equal itself")
	}
}

func TestMonthRange(t *testing.T) {
	r := Month{Year: 2024, Month: time.February}.Range()
	if !r.Contains(time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC)) {
		t.Fatal("leap day should be inside february")
	}
	if r.Contains(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("range end is exclusive")
	}
	if err := (DateRange{From: r.To, To: r.From}).Validate(); err == nil {
		t.Fatal("inverted range should not validate")
	}
}
