// Package services orchestrates the ledger on behalf of the external
// workflows: recurring bill generation and county-payment intake.
//
// Dueness follows the Strategy pattern: each bill frequency has its own
// checker deciding whether a bill is due and naming the billing period it
// would be charged for.
package services

import (
	"fmt"
	"time"

	"housingledger/internal/core"
)

// DuenessChecker decides when a recurring bill is due.
type DuenessChecker interface {
	// IsDue reports whether the bill should be charged at now given its
	// last execution and start date.
	IsDue(lastExecution, now, startDate time.Time) bool

	// Period names the billing period containing now. Two charges in the
	// same period share an idempotency key.
	Period(now time.Time) string
}

type DailyChecker struct{}

// IsDue returns true if last execution was before today.
func (DailyChecker) IsDue(lastExecution, now, _ time.Time) bool {
	if lastExecution.IsZero() {
		return true
	}
	return lastExecution.Format(time.DateOnly) != now.Format(time.DateOnly)
}

func (DailyChecker) Period(now time.Time) string { return now.Format(time.DateOnly) }

type WeeklyChecker struct{}

// IsDue returns true if 7 or more days have passed since last execution.
func (WeeklyChecker) IsDue(lastExecution, now, _ time.Time) bool {
	if lastExecution.IsZero() {
		return true
	}
	return now.Sub(lastExecution) >= 7*24*time.Hour
}

func (WeeklyChecker) Period(now time.Time) string {
	year, week := now.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

type MonthlyChecker struct{}

// IsDue returns true once per month, from the start date's day onward.
// Days past the end of a short month clamp to its last day.
func (MonthlyChecker) IsDue(lastExecution, now, startDate time.Time) bool {
	if lastExecution.IsZero() {
		return true
	}
	if lastExecution.Year() == now.Year() && lastExecution.Month() == now.Month() {
		return false
	}
	return now.Day() >= clampDay(now.Year(), now.Month(), startDate.Day())
}

func (MonthlyChecker) Period(now time.Time) string { return core.MonthOf(now).String() }

type YearlyChecker struct{}

// IsDue returns true once per year, from the start date's month and day.
func (YearlyChecker) IsDue(lastExecution, now, startDate time.Time) bool {
	if lastExecution.IsZero() {
		return true
	}
	if lastExecution.Year() == now.Year() {
		return false
	}
	switch {
	case now.Month() < startDate.Month():
		return false
	case now.Month() == startDate.Month():
		return now.Day() >= clampDay(now.Year(), now.Month(), startDate.Day())
	}
	return true
}

func (YearlyChecker) Period(now time.Time) string { return fmt.Sprintf("%04d", now.Year()) }

func clampDay(year int, month time.Month, day int) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}

var duenessStrategies = map[core.RepetitionTypes]DuenessChecker{
	core.Daily:   DailyChecker{},
	core.Weekly:  WeeklyChecker{},
	core.Monthly: MonthlyChecker{},
	core.Yearly:  YearlyChecker{},
}

// GetDuenessChecker returns the checker for frequency.
func GetDuenessChecker(frequency core.RepetitionTypes) (DuenessChecker, error) {
	checker, ok := duenessStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown repetition type: %s", frequency)
	}
	return checker, nil
}
