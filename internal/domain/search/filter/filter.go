// Package filter holds the validated filter set attached to a search request.
package filter

import (
	"fmt"
	"time"
)

// MaxSetSize is the maximum number of categories or merchants per filter.
const MaxSetSize = 64

// DateRange is an inclusive [Start, End] date window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange validates and creates a date range. An inverted range is
// swapped rather than rejected: the caller's intent is clear enough.
func NewDateRange(start, end time.Time) DateRange {
	if start.After(end) {
		start, end = end, start
	}
	return DateRange{Start: start, End: end}
}

// Days returns the span length in whole days, inclusive of both ends.
func (d DateRange) Days() int {
	return int(d.End.Sub(d.Start).Hours()/24) + 1
}

// IsZero reports whether the range is unset.
func (d DateRange) IsZero() bool {
	return d.Start.IsZero() && d.End.IsZero()
}

// AmountRange bounds monetary amounts. Nil Min or Max means unbounded on
// that side. Bound holds the comparison semantics: explicit ranges are
// inclusive, over/under phrases are strict.
type AmountRange struct {
	Min      *float64
	Max      *float64
	Currency string
	// StrictMin/StrictMax select > / < over >= / <= at each bound.
	StrictMin bool
	StrictMax bool
}

// NewAmountRange validates and creates an amount range.
func NewAmountRange(min, max *float64, currency string) (AmountRange, error) {
	if min != nil && *min < 0 {
		return AmountRange{}, fmt.Errorf("amount min must be non-negative, got %v", *min)
	}
	if max != nil && *max < 0 {
		return AmountRange{}, fmt.Errorf("amount max must be non-negative, got %v", *max)
	}
	if min != nil && max != nil && *min > *max {
		return AmountRange{}, fmt.Errorf("amount min %v exceeds max %v", *min, *max)
	}
	return AmountRange{Min: min, Max: max, Currency: currency}, nil
}

// IsZero reports whether no bound is set.
func (a AmountRange) IsZero() bool {
	return a.Min == nil && a.Max == nil
}

// Matches reports whether amount satisfies the bounds.
func (a AmountRange) Matches(amount float64) bool {
	if a.Min != nil {
		if a.StrictMin && amount <= *a.Min {
			return false
		}
		if !a.StrictMin && amount < *a.Min {
			return false
		}
	}
	if a.Max != nil {
		if a.StrictMax && amount >= *a.Max {
			return false
		}
		if !a.StrictMax && amount > *a.Max {
			return false
		}
	}
	return true
}

// Filters is the validated filter set of a search request.
type Filters struct {
	dateRange   *DateRange
	amountRange *AmountRange
	categories  []string
	merchants   []string
	teamID      string
}

// New validates and creates a filter set.
func New(
	dateRange *DateRange,
	amountRange *AmountRange,
	categories, merchants []string,
	teamID string,
) (Filters, error) {
	if len(categories) > MaxSetSize {
		return Filters{}, fmt.Errorf("too many categories (max %d)", MaxSetSize)
	}
	if len(merchants) > MaxSetSize {
		return Filters{}, fmt.Errorf("too many merchants (max %d)", MaxSetSize)
	}
	return Filters{
		dateRange:   dateRange,
		amountRange: amountRange,
		categories:  categories,
		merchants:   merchants,
		teamID:      teamID,
	}, nil
}

// DateRange returns the date window, nil when unset.
func (f Filters) DateRange() *DateRange { return f.dateRange }

// AmountRange returns the amount bounds, nil when unset.
func (f Filters) AmountRange() *AmountRange { return f.amountRange }

// Categories returns the category filter set.
func (f Filters) Categories() []string { return f.categories }

// Merchants returns the merchant filter set.
func (f Filters) Merchants() []string { return f.merchants }

// TeamID returns the team scope, empty for personal scope.
func (f Filters) TeamID() string { return f.teamID }

// WithDateRange returns a copy with the date window replaced.
func (f Filters) WithDateRange(d *DateRange) Filters {
	f.dateRange = d
	return f
}

// WithAmountRange returns a copy with the amount bounds replaced.
func (f Filters) WithAmountRange(a *AmountRange) Filters {
	f.amountRange = a
	return f
}

// HasAmount reports whether any amount bound is active.
func (f Filters) HasAmount() bool {
	return f.amountRange != nil && !f.amountRange.IsZero()
}
