// Package coverage computes how much billed VM compute time is satisfied
// by reservations, and what that coverage is worth against pay-as-you-go
// pricing.
package coverage

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"azure-cost/analysis/usage"
)

// Discount-rate policy constants for the bracketed estimate: visible
// reservation spend is assumed to sit 28%-60% below list price.
var (
	paygLowDivisor  = decimal.NewFromFloat(0.72)
	paygHighDivisor = decimal.NewFromFloat(0.40)
)

// VMCoverage accumulates compute-hour billing for one VM. The PAYG
// fields cover only the subset of hours where a pay-as-you-go unit price
// was present in the export.
type VMCoverage struct {
	Name string

	TotalHours    float64
	ReservedHours float64
	TotalCost     decimal.Decimal
	ReservedCost  decimal.Decimal

	PaygEquivalentCost decimal.Decimal
	UncoveredPaygCost  decimal.Decimal
	// PaygPriced reports whether at least one record carried a PAYG
	// unit price.
	PaygPriced bool
}

// CoveragePercent is the fraction of billed hours satisfied by a
// reservation, as a percentage. Zero hours yields zero.
func (v VMCoverage) CoveragePercent() float64 {
	if v.TotalHours == 0 {
		return 0
	}
	return v.ReservedHours / v.TotalHours * 100
}

// Savings holds the reservation savings figure, exact or bracketed.
type Savings struct {
	// Exact is present when at least one compute-hour record carried a
	// PAYG unit price: max(0, paygEquivalentCost - actualCost). Clamped
	// because a negative raw difference signals a pricing-data anomaly,
	// not a real cost increase.
	Exact *decimal.Decimal

	// Estimated bracket, used only when no PAYG pricing was observed
	// anywhere in the window. An approximation from discount-rate
	// assumptions, never comparable to the exact figure.
	EstimatedLow  *decimal.Decimal
	EstimatedHigh *decimal.Decimal
}

// Report is the coverage and savings output for one analysis run.
type Report struct {
	PerVM     []VMCoverage
	Aggregate VMCoverage

	// ReservationMonthlyCost is the summed cost of visible reservation
	// purchases, the basis of the bracketed estimate.
	ReservationMonthlyCost decimal.Decimal
	Savings                Savings
}

// qualifies is the compute-hour predicate: VM meter category, compute
// consumed service, and an hour-denominated unit of measure.
func qualifies(r usage.Record) bool {
	return strings.EqualFold(r.MeterCategory, "Virtual Machines") &&
		strings.EqualFold(r.ConsumedService, "Microsoft.Compute") &&
		strings.Contains(strings.ToLower(r.UnitOfMeasure), "hour")
}

// Compute folds the record set into per-VM and aggregate coverage, then
// derives savings. reservationMonthlyCost is the visible reservations'
// total monthly purchase cost, used for the bracketed fallback.
func Compute(records []usage.Record, reservationMonthlyCost decimal.Decimal) *Report {
	byVM := make(map[string]*VMCoverage)
	aggregate := VMCoverage{Name: "TOTAL"}

	for _, r := range records {
		if !qualifies(r) {
			continue
		}

		vm, ok := byVM[r.ShortName()]
		if !ok {
			vm = &VMCoverage{Name: r.ShortName()}
			byVM[r.ShortName()] = vm
		}

		_, reserved := usage.ParseAdditionalInfo(r.AdditionalInfo)
		accumulate(vm, r, reserved)
		accumulate(&aggregate, r, reserved)
	}

	perVM := make([]VMCoverage, 0, len(byVM))
	for _, vm := range byVM {
		perVM = append(perVM, *vm)
	}
	sort.Slice(perVM, func(i, j int) bool {
		if !perVM[i].TotalCost.Equal(perVM[j].TotalCost) {
			return perVM[i].TotalCost.GreaterThan(perVM[j].TotalCost)
		}
		return perVM[i].Name < perVM[j].Name
	})

	report := &Report{
		PerVM:                  perVM,
		Aggregate:              aggregate,
		ReservationMonthlyCost: reservationMonthlyCost,
	}
	report.Savings = computeSavings(aggregate, reservationMonthlyCost)
	return report
}

func accumulate(v *VMCoverage, r usage.Record, reserved bool) {
	v.TotalHours += r.Quantity
	v.TotalCost = v.TotalCost.Add(r.Cost)
	if reserved {
		v.ReservedHours += r.Quantity
		v.ReservedCost = v.ReservedCost.Add(r.Cost)
	}
	if r.PayGPrice != nil && r.PayGPrice.IsPositive() {
		v.PaygPriced = true
		qty := decimal.NewFromFloat(r.Quantity)
		paygCost := r.PayGPrice.Mul(qty)
		v.PaygEquivalentCost = v.PaygEquivalentCost.Add(paygCost)
		if !reserved {
			v.UncoveredPaygCost = v.UncoveredPaygCost.Add(paygCost)
		}
	}
}

func computeSavings(aggregate VMCoverage, reservationMonthlyCost decimal.Decimal) Savings {
	if aggregate.PaygPriced {
		exact := aggregate.PaygEquivalentCost.Sub(aggregate.TotalCost)
		if exact.IsNegative() {
			exact = decimal.Zero
		}
		return Savings{Exact: &exact}
	}

	if reservationMonthlyCost.IsPositive() {
		low := reservationMonthlyCost.Div(paygLowDivisor).Sub(reservationMonthlyCost)
		high := reservationMonthlyCost.Div(paygHighDivisor).Sub(reservationMonthlyCost)
		return Savings{EstimatedLow: &low, EstimatedHigh: &high}
	}

	return Savings{}
}
