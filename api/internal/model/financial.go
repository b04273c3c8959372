package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Financial is a budget ledger owned by exactly one user or one group,
// whichever of UserOid/GroupOid is set.
type Financial struct {
	FinancialOid string     `json:"financial_oid"`
	Categories   []Category `json:"categories"`
	ResetDay     int        `json:"reset_day"`
	GroupOid     string     `json:"group_oid,omitempty"`
	UserOid      string     `json:"user_oid,omitempty"`
}

type Category struct {
	CategoryId  string          `json:"category_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	BudgetLimit decimal.Decimal `json:"budget_limit"`
	Expenses    []Expense       `json:"expenses"`
}

// Expense amounts are signed: negative amounts are reimbursements.
type Expense struct {
	ExpenseId   string          `json:"expense_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
	UserOid     string          `json:"user_oid"`
}

// FindCategory resolves a category by its name+description natural key.
// The backing API addresses embedded categories this way; duplicate
// name+description pairs collide and are unsupported.
func (f *Financial) FindCategory(name, description string) (*Category, bool) {
	for i := range f.Categories {
		if f.Categories[i].Name == name && f.Categories[i].Description == description {
			return &f.Categories[i], true
		}
	}
	return nil, false
}

// TotalSpent sums all expenses in the category over all time. Signed
// amounts net out reimbursements.
func (c *Category) TotalSpent() decimal.Decimal {
	total := decimal.Zero
	for _, e := range c.Expenses {
		total = total.Add(e.Amount)
	}
	return total
}

// SpentSince sums expenses dated on or after the given boundary.
func (c *Category) SpentSince(start time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, e := range c.Expenses {
		if !e.Date.Before(start) {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// Depleted reports whether cumulative spending has met or exceeded the
// budget limit.
func (c *Category) Depleted() bool {
	return c.TotalSpent().GreaterThanOrEqual(c.BudgetLimit)
}

// CycleStart computes the start of the current billing cycle: the most
// recent occurrence of resetDay. Days beyond a month's length roll to that
// month's last calendar day at evaluation time, never at input time.
func CycleStart(resetDay int, today time.Time) time.Time {
	year, month := today.Year(), today.Month()
	day := clampDay(resetDay, year, month)
	if today.Day() < day {
		month--
		if month < time.January {
			month = time.December
			year--
		}
		day = clampDay(resetDay, year, month)
	}
	return time.Date(year, month, day, 0, 0, 0, 0, today.Location())
}

func clampDay(day, year int, month time.Month) int {
	if last := daysInMonth(year, month); day > last {
		return last
	}
	return day
}

// FinancialSummary is the all-time glance shown on the /finance menu.
type FinancialSummary struct {
	TotalSpent decimal.Decimal
	TotalLimit decimal.Decimal
	Depleted   int
	ResetDay   int
}

func Summarize(f *Financial) FinancialSummary {
	summary := FinancialSummary{
		TotalSpent: decimal.Zero,
		TotalLimit: decimal.Zero,
		ResetDay:   f.ResetDay,
	}
	for i := range f.Categories {
		c := &f.Categories[i]
		summary.TotalSpent = summary.TotalSpent.Add(c.TotalSpent())
		summary.TotalLimit = summary.TotalLimit.Add(c.BudgetLimit)
		if c.Depleted() {
			summary.Depleted++
		}
	}
	return summary
}

// Markers on the cycle-scoped per-category statistics.
const (
	MarkerStop    = "🛑"
	MarkerWarning = "⚠️"
)

var warningThreshold = decimal.RequireFromString("0.9")

// CategoryCycleStat is one row of the detailed statistics view, scoped to
// the current billing cycle.
type CategoryCycleStat struct {
	Name   string
	Spent  decimal.Decimal
	Limit  decimal.Decimal
	Marker string
}

// CycleStatistics computes per-category spending for the current cycle.
// Spending at or over the limit gets the stop marker, at or over 90% of it
// the warning marker.
func CycleStatistics(f *Financial, today time.Time) []CategoryCycleStat {
	start := CycleStart(f.ResetDay, today)
	stats := make([]CategoryCycleStat, 0, len(f.Categories))
	for i := range f.Categories {
		c := &f.Categories[i]
		spent := c.SpentSince(start)
		marker := ""
		if spent.GreaterThanOrEqual(c.BudgetLimit) {
			marker = MarkerStop
		} else if spent.GreaterThanOrEqual(c.BudgetLimit.Mul(warningThreshold)) {
			marker = MarkerWarning
		}
		stats = append(stats, CategoryCycleStat{
			Name:   c.Name,
			Spent:  spent,
			Limit:  c.BudgetLimit,
			Marker: marker,
		})
	}
	return stats
}

// NewFinancial builds a ledger for lazy creation on first use, anchored to
// today's day-of-month.
func NewFinancial(now time.Time) *Financial {
	return &Financial{
		FinancialOid: OidUnassigned,
		Categories:   []Category{},
		ResetDay:     now.Day(),
	}
}
