package budget

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xard1993/komun-api/internal/models"
)

var monthsPerYear = decimal.NewFromInt(12)

// YearlyPerUnit sums the yearly cost of every active fee template that applies to the
// building. Monthly templates count twelve times.
func YearlyPerUnit(fees []*models.FeeTemplate, buildingID uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for _, f := range fees {
		if !f.Active || !f.AppliesTo(buildingID) {
			continue
		}
		switch f.Frequency {
		case models.FeeYearly:
			total = total.Add(f.Amount)
		case models.FeeMonthly:
			total = total.Add(f.Amount.Mul(monthsPerYear))
		}
	}
	return total
}

// FlatShare divides the contributions total evenly across units, rounded to cents.
func FlatShare(total decimal.Decimal, units int) decimal.Decimal {
	if units <= 0 {
		return decimal.Zero
	}
	return total.DivRound(decimal.NewFromInt(int64(units)), 2)
}

// unitContributionsLine builds the synthetic aggregate income line of a period.
func unitContributionsLine(periodID uuid.UUID, amount decimal.Decimal, now time.Time) *models.BudgetLine {
	return &models.BudgetLine{
		ID:             uuid.Must(uuid.NewV7()),
		BudgetPeriodID: periodID,
		Category:       models.LineRecurring,
		Description:    models.UnitContributionsDescription,
		Amount:         amount,
		SortOrder:      models.UnitContributionsSortOrder,
		CreatedAt:      now,
	}
}

// CarryForward copies the recurring lines of a prior period into periodID, skipping the
// synthetic contributions line. Copies keep their order and are renumbered from zero.
func CarryForward(prior []*models.BudgetLine, periodID uuid.UUID, now time.Time) []*models.BudgetLine {
	var lines []*models.BudgetLine
	for _, l := range prior {
		if l.Category != models.LineRecurring || l.IsUnitContributions() {
			continue
		}
		lines = append(lines, &models.BudgetLine{
			ID:             uuid.Must(uuid.NewV7()),
			BudgetPeriodID: periodID,
			Category:       models.LineRecurring,
			Description:    l.Description,
			Amount:         l.Amount,
			SortOrder:      len(lines),
			CreatedAt:      now,
		})
	}
	return lines
}
