package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"azure-cost/analysis/compare"
	"azure-cost/analysis/coverage"
	"azure-cost/analysis/reservation"
)

const divider = "================================================================================"

func dollars(d decimal.Decimal) string {
	v, _ := d.Float64()
	return "$" + humanize.CommafWithDigits(v, 2)
}

func section(w io.Writer, title string) {
	fmt.Fprintln(w, divider)
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, divider)
}

// PrintUtilization renders the reservation utilization reports.
func PrintUtilization(w io.Writer, reports []reservation.Report, groups []reservation.GroupEfficiency) {
	section(w, "RESERVATION UTILIZATION")

	for _, r := range reports {
		fmt.Fprintf(w, "\nReservation order %s\n", r.OrderID)
		if r.Hidden {
			fmt.Fprintln(w, "  purchase not in this data window; cost unknown")
		} else {
			fmt.Fprintf(w, "  product: %s  region: %s  monthly cost: %s\n",
				r.Product, orDash(r.Region), dollars(r.Cost))
			if r.PeriodStart != "" || r.PeriodEnd != "" {
				fmt.Fprintf(w, "  service period: %s to %s\n", orDash(r.PeriodStart), orDash(r.PeriodEnd))
			}
		}

		cores := fmt.Sprintf("%d", r.ReservedCores)
		if r.CoresEstimated {
			cores += " (estimated)"
		}
		fmt.Fprintf(w, "  reserved cores: %s  cores billed: %d\n", cores, r.CoresUsed)

		if r.Utilization != nil {
			fmt.Fprintf(w, "  utilization: %.1f%%  status: %s\n", *r.Utilization, r.Status)
		} else {
			fmt.Fprintf(w, "  utilization: n/a  status: %s\n", r.Status)
		}

		for _, res := range r.Resources {
			fmt.Fprintf(w, "    %-40s %10.1f h  %12s  %s\n",
				res.Resource, res.ConsumedHours, dollars(res.Cost),
				strings.Join(res.ServiceTypes, ", "))
		}
	}

	if len(groups) > 0 {
		fmt.Fprintln(w)
		section(w, "SKU/REGION GROUP EFFICIENCY")
		for _, g := range groups {
			eff := "n/a"
			if g.Efficiency != nil {
				eff = fmt.Sprintf("%.1f%%", *g.Efficiency)
			}
			flag := ""
			if g.Flag != reservation.GroupFlagNone {
				flag = "  -> " + string(g.Flag)
			}
			fmt.Fprintf(w, "%-20s %-15s reservations: %d  cores %d/%d  efficiency: %s%s\n",
				orDash(g.Family), orDash(g.Region), len(g.OrderIDs),
				g.CoresUsed, g.ReservedCores, eff, flag)
		}
	}
}

// PrintPolicy renders the governance evaluation result.
func PrintPolicy(w io.Writer, result *reservation.EvaluationResult) {
	fmt.Fprintln(w)
	section(w, "POLICY EVALUATION")
	fmt.Fprintf(w, "decision: %s  rules ran: %d\n", result.Decision, result.RulesRan)
	for _, v := range result.Violations {
		fmt.Fprintf(w, "  [%s] %s: %s\n", v.Severity, v.RuleName, v.Message)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "  [advice] %s\n", warning.Message)
	}
}

// PrintCoverage renders VM reservation coverage and savings.
func PrintCoverage(w io.Writer, report *coverage.Report) {
	section(w, "VM RESERVATION COVERAGE")

	fmt.Fprintf(w, "%-40s %12s %12s %10s %14s\n",
		"VM", "total h", "reserved h", "coverage", "total cost")
	for _, vm := range report.PerVM {
		fmt.Fprintf(w, "%-40s %12.1f %12.1f %9.1f%% %14s\n",
			vm.Name, vm.TotalHours, vm.ReservedHours, vm.CoveragePercent(), dollars(vm.TotalCost))
	}
	agg := report.Aggregate
	fmt.Fprintf(w, "%-40s %12.1f %12.1f %9.1f%% %14s\n",
		"TOTAL", agg.TotalHours, agg.ReservedHours, agg.CoveragePercent(), dollars(agg.TotalCost))

	fmt.Fprintln(w)
	switch {
	case report.Savings.Exact != nil:
		fmt.Fprintf(w, "reservation savings vs pay-as-you-go: %s\n", dollars(*report.Savings.Exact))
	case report.Savings.EstimatedLow != nil:
		fmt.Fprintf(w, "no PAYG prices in export; estimated savings: %s to %s per month (approximation)\n",
			dollars(*report.Savings.EstimatedLow), dollars(*report.Savings.EstimatedHigh))
	default:
		fmt.Fprintln(w, "savings not determinable: no PAYG prices and no visible reservation purchases")
	}
}

// PrintVMComparison renders the two-period VM cost diff.
func PrintVMComparison(w io.Writer, report *compare.VMReport, oldLabel, newLabel string) {
	section(w, "VM COST COMPARISON - ALL INSTANCES")
	fmt.Fprintf(w, "Period 1 (old): %s\n", oldLabel)
	fmt.Fprintf(w, "Period 2 (new): %s\n\n", newLabel)

	fmt.Fprintf(w, "%-40s %12s %12s %12s\n", "instance", "total old", "total new", "difference")
	for _, row := range report.Rows {
		fmt.Fprintf(w, "%-40s %12s %12s %12s\n",
			row.Instance, dollars(row.TotalOld), dollars(row.TotalNew), dollars(row.Difference))
	}

	s := report.Summary
	fmt.Fprintln(w)
	section(w, "SUMMARY STATISTICS")
	fmt.Fprintf(w, "Total VMs found: %d\n", s.TotalVMs)
	fmt.Fprintf(w, "Total old period cost: %s\n", dollars(s.TotalOldCost))
	fmt.Fprintf(w, "Total new period cost: %s\n", dollars(s.TotalNewCost))
	fmt.Fprintf(w, "Overall difference: %s\n", dollars(s.Difference))
	fmt.Fprintf(w, "VMs with increased costs: %d\n", s.Increased)
	fmt.Fprintf(w, "VMs with decreased costs: %d\n", s.Decreased)
	fmt.Fprintf(w, "VMs with no change: %d\n", s.Unchanged)
	fmt.Fprintf(w, "New VMs (not in old period): %d\n", s.NewVMs)
	fmt.Fprintf(w, "Removed VMs (not in new period): %d\n", s.RemovedVMs)
}

// PrintStorageComparison renders the two-period storage diff.
func PrintStorageComparison(w io.Writer, report *compare.StorageReport) {
	section(w, "STORAGE CAPACITY VS USAGE COMPARISON")

	fmt.Fprintf(w, "%-40s %12s %12s %12s %-12s %-30s\n",
		"instance", "old cost", "new cost", "cost diff", "model", "optimization")
	for _, row := range report.Rows {
		fmt.Fprintf(w, "%-40s %12s %12s %12s %-12s %-30s\n",
			row.Instance, dollars(row.OldCost), dollars(row.NewCost),
			dollars(row.CostDiff), row.ModelLabel(), row.Optimization)
	}

	s := report.Summary
	fmt.Fprintln(w)
	section(w, "SUMMARY STATISTICS")
	fmt.Fprintf(w, "Total storage resources: %d\n", s.TotalResources)
	fmt.Fprintf(w, "Cost: old %s, new %s, difference %s\n",
		dollars(s.OldCost), dollars(s.NewCost), dollars(s.NewCost.Sub(s.OldCost)))
	fmt.Fprintf(w, "Provisioned capacity: old %s GB, new %s GB\n",
		humanize.CommafWithDigits(s.OldProvisioned, 0), humanize.CommafWithDigits(s.NewProvisioned, 0))
	fmt.Fprintf(w, "Actual usage: old %s GB, new %s GB\n",
		humanize.CommafWithDigits(s.OldUsage, 1), humanize.CommafWithDigits(s.NewUsage, 1))
	fmt.Fprintf(w, "Cost changes: %d increased, %d decreased, %d unchanged\n",
		s.Increased, s.Decreased, s.Unchanged)
	fmt.Fprintf(w, "Provisioned spend: %s (right-sizing candidates)\n", dollars(s.ProvisionedCost))
	fmt.Fprintf(w, "Usage-based spend: %s (lifecycle candidates)\n", dollars(s.UsageBasedCost))
}

// PrintMonthly renders the month-by-category pivot.
func PrintMonthly(w io.Writer, table *compare.MonthlyTable) {
	section(w, "MONTHLY COST BY METER CATEGORY")

	fmt.Fprintf(w, "%-10s", "month")
	for _, column := range table.Columns {
		fmt.Fprintf(w, " %20s", column)
	}
	fmt.Fprintln(w)

	for _, month := range table.Months {
		fmt.Fprintf(w, "%-10s", month)
		for _, column := range table.Columns {
			fmt.Fprintf(w, " %20s", dollars(table.Cell(month, column)))
		}
		fmt.Fprintln(w)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
