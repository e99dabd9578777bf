// Package projection turns a completed project into the shapes the studio UI
// renders: cost totals, chart series and the cast manifest. Everything here is
// pure; no function performs I/O or keeps state.
package projection

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/castos/studio/internal/model"
)

const traitDisplayLimit = 30

// TotalCost is the exact sum of salaries across the assignment rows
func TotalCost(rows []model.OptimizationResult) float64 {
	var total float64
	for _, row := range rows {
		total += row.Salary
	}
	return total
}

// Remaining is the budget cap minus the cast's total cost. Negative means over budget.
func Remaining(p *model.Project) float64 {
	return p.BudgetCap - TotalCost(p.OptimizationResult)
}

// Classify maps a remaining amount to under/over budget. Exactly on budget counts as under.
func Classify(remaining float64) model.BudgetStatus {
	if remaining >= 0 {
		return model.BudgetUnder
	}
	return model.BudgetOver
}

// FindCharacter returns the first character whose name equals role exactly.
// Role names are expected to be unique per project; duplicates resolve to the
// first entry and a missing role reports ok=false.
func FindCharacter(p *model.Project, role string) (model.Character, bool) {
	for _, c := range p.Characters() {
		if c.Name == role {
			return c, true
		}
	}
	return model.Character{}, false
}

// CurrencySymbol picks the display currency for an industry
func CurrencySymbol(industry model.Industry) string {
	if industry == model.IndustryBollywood {
		return "₹"
	}
	return "$"
}

// FormatAmount renders an amount with thousands separators and no fraction,
// e.g. "$2,000,000". The sign is dropped; callers classify separately.
func FormatAmount(industry model.Industry, amount float64) string {
	return CurrencySymbol(industry) + groupThousands(math.Round(math.Abs(amount)))
}

func groupThousands(v float64) string {
	digits := strconv.FormatFloat(v, 'f', 0, 64)
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// FormatTraits joins traits for table display, truncating long descriptions
func FormatTraits(traits model.Traits) string {
	if len(traits) == 0 {
		return "N/A"
	}
	text := traits.String()
	runes := []rune(text)
	if len(runes) > traitDisplayLimit {
		return string(runes[:traitDisplayLimit]) + "..."
	}
	return text
}

// IndustryTag is the three-letter dashboard tag
func IndustryTag(industry model.Industry) string {
	if industry == model.IndustryBollywood {
		return "BOL"
	}
	return "HOL"
}

// CompactBudget abbreviates budgets above one million, e.g. 25000000 -> "25M"
func CompactBudget(budget float64) string {
	if budget > 1_000_000 {
		return fmt.Sprintf("%.0fM", budget/1_000_000)
	}
	return strconv.FormatFloat(budget, 'f', -1, 64)
}
