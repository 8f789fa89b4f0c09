package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fhdautomacao/fhdautomacaosite-sub001/models"
)

// DefaultMonthsAhead is how many monthly installments FixedRecurring
// generates when no end month is given.
const DefaultMonthsAhead = 12

// Scheduler produces installment sequences for an obligation. Both
// generation policies are pure: they only compute and return installments,
// persistence is the caller's responsibility.
type Scheduler struct {
	now Clock
}

func NewScheduler(now Clock) *Scheduler {
	return &Scheduler{now: orSystemClock(now)}
}

// EqualSplitParams describes the equal-split generation policy: a total
// amount divided evenly across a fixed count of installments spaced by a
// fixed day interval.
type EqualSplitParams struct {
	TotalAmount  decimal.Decimal
	Count        int
	IntervalDays int
	FirstDueDate time.Time
}

// EqualSplit divides the total uniformly across Count installments. The
// per-installment amount is a single division rounded to two decimal places
// with no remainder redistribution, so for totals that do not divide evenly
// the installments may sum to a few cents off the total.
func (s *Scheduler) EqualSplit(p EqualSplitParams) ([]models.Installment, error) {
	if p.Count <= 0 {
		return nil, validationErrorf("installment count must be positive, got %d", p.Count)
	}
	if p.TotalAmount.IsNegative() {
		return nil, validationErrorf("total amount must not be negative, got %s", p.TotalAmount)
	}
	if p.IntervalDays < 0 {
		return nil, validationErrorf("interval days must not be negative, got %d", p.IntervalDays)
	}
	if p.FirstDueDate.IsZero() {
		return nil, validationErrorf("first due date is required")
	}

	amount := p.TotalAmount.DivRound(decimal.NewFromInt(int64(p.Count)), 2)
	first := startOfDay(p.FirstDueDate)

	installments := make([]models.Installment, 0, p.Count)
	for i := 0; i < p.Count; i++ {
		installments = append(installments, models.Installment{
			Number:  i + 1,
			DueDate: first.AddDate(0, 0, i*p.IntervalDays),
			Amount:  amount,
			Status:  models.InstallmentPending,
		})
	}
	return installments, nil
}

// FixedRecurringParams describes the fixed-recurring generation policy: one
// installment per calendar month at a fixed day-of-month.
type FixedRecurringParams struct {
	MonthlyAmount decimal.Decimal
	StartMonth    time.Time  // any instant within the starting month; zero means the current month
	DueDay        int        // 1..31, clamped to each month's last valid day
	EndMonth      *time.Time // inclusive; nil means MonthsAhead months
	MonthsAhead   int        // used when EndMonth is nil; 0 means DefaultMonthsAhead
}

// FixedRecurring generates one installment per month from StartMonth through
// EndMonth inclusive, or MonthsAhead months when open-ended. A DueDay past a
// month's last day resolves to that month's last day (31 in February lands on
// the 28th or 29th); this is deliberate policy, not an error.
func (s *Scheduler) FixedRecurring(p FixedRecurringParams) ([]models.Installment, error) {
	if p.DueDay < 1 || p.DueDay > 31 {
		return nil, validationErrorf("due day must be between 1 and 31, got %d", p.DueDay)
	}
	if p.MonthlyAmount.IsNegative() {
		return nil, validationErrorf("monthly amount must not be negative, got %s", p.MonthlyAmount)
	}

	start := p.StartMonth
	if start.IsZero() {
		start = s.now()
	}
	startYear, startMonth, _ := start.UTC().Date()

	count := p.MonthsAhead
	if count <= 0 {
		count = DefaultMonthsAhead
	}
	if p.EndMonth != nil {
		endYear, endMonth, _ := p.EndMonth.UTC().Date()
		count = (endYear-startYear)*12 + int(endMonth-startMonth) + 1
		if count < 1 {
			return nil, validationErrorf("end month %04d-%02d is before start month %04d-%02d",
				endYear, endMonth, startYear, startMonth)
		}
	}

	installments := make([]models.Installment, 0, count)
	for i := 0; i < count; i++ {
		// Normalizing to the first of the month keeps AddDate from
		// spilling into the wrong month (Jan 31 + 1 month is Mar 3).
		monthStart := time.Date(startYear, startMonth, 1, 0, 0, 0, 0, time.UTC).AddDate(0, i, 0)
		day := p.DueDay
		if last := daysIn(monthStart.Year(), monthStart.Month()); day > last {
			day = last
		}
		installments = append(installments, models.Installment{
			Number:  i + 1,
			DueDate: time.Date(monthStart.Year(), monthStart.Month(), day, 0, 0, 0, 0, time.UTC),
			Amount:  p.MonthlyAmount,
			Status:  models.InstallmentPending,
		})
	}
	return installments, nil
}
