// Package compare diffs billing periods: VM compute plus license cost,
// storage capacity against actual usage, and monthly meter-category
// totals.
package compare

import (
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"azure-cost/analysis/usage"
)

const (
	meterVirtualMachines = "Virtual Machines"
	meterVMLicenses      = "Virtual Machines Licenses"
)

// VMDiff is one VM's cost across two billing periods, compute and
// license charges split out.
type VMDiff struct {
	Instance string

	OldCompute decimal.Decimal
	OldLicense decimal.Decimal
	NewCompute decimal.Decimal
	NewLicense decimal.Decimal

	TotalOld   decimal.Decimal
	TotalNew   decimal.Decimal
	Difference decimal.Decimal
}

// VMSummary aggregates the diff rows into period-level statistics.
type VMSummary struct {
	TotalVMs     int
	TotalOldCost decimal.Decimal
	TotalNewCost decimal.Decimal
	Difference   decimal.Decimal
	Increased    int
	Decreased    int
	Unchanged    int
	// NewVMs appear only in the new period; RemovedVMs only in the old.
	NewVMs     int
	RemovedVMs int
}

// VMReport is the two-period VM comparison output, rows sorted by cost
// difference descending.
type VMReport struct {
	Rows    []VMDiff
	Summary VMSummary
}

type vmCosts struct {
	compute decimal.Decimal
	license decimal.Decimal
}

func vmCostsByInstance(records []usage.Record) map[string]vmCosts {
	out := make(map[string]vmCosts)
	for _, r := range records {
		if r.MeterCategory != meterVirtualMachines && r.MeterCategory != meterVMLicenses {
			continue
		}
		c := out[r.ShortName()]
		if r.MeterCategory == meterVirtualMachines {
			c.compute = c.compute.Add(r.Cost)
		} else {
			c.license = c.license.Add(r.Cost)
		}
		out[r.ShortName()] = c
	}
	return out
}

// CompareVMs joins the VM cost maps of two periods over the union of
// instance names. Instances missing from a period contribute zero.
func CompareVMs(oldRecords, newRecords []usage.Record) *VMReport {
	oldCosts := vmCostsByInstance(oldRecords)
	newCosts := vmCostsByInstance(newRecords)

	instances := lo.Uniq(append(lo.Keys(oldCosts), lo.Keys(newCosts)...))

	rows := make([]VMDiff, 0, len(instances))
	for _, name := range instances {
		o := oldCosts[name]
		n := newCosts[name]
		row := VMDiff{
			Instance:   name,
			OldCompute: o.compute,
			OldLicense: o.license,
			NewCompute: n.compute,
			NewLicense: n.license,
		}
		row.TotalOld = o.compute.Add(o.license)
		row.TotalNew = n.compute.Add(n.license)
		row.Difference = row.TotalNew.Sub(row.TotalOld)
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Difference.Equal(rows[j].Difference) {
			return rows[i].Difference.GreaterThan(rows[j].Difference)
		}
		return rows[i].Instance < rows[j].Instance
	})

	report := &VMReport{Rows: rows}
	report.Summary = summarizeVMs(rows)
	return report
}

func summarizeVMs(rows []VMDiff) VMSummary {
	s := VMSummary{TotalVMs: len(rows)}
	for _, row := range rows {
		s.TotalOldCost = s.TotalOldCost.Add(row.TotalOld)
		s.TotalNewCost = s.TotalNewCost.Add(row.TotalNew)
		switch {
		case row.Difference.IsPositive():
			s.Increased++
		case row.Difference.IsNegative():
			s.Decreased++
		default:
			s.Unchanged++
		}
		if row.TotalOld.IsZero() {
			s.NewVMs++
		}
		if row.TotalNew.IsZero() {
			s.RemovedVMs++
		}
	}
	s.Difference = s.TotalNewCost.Sub(s.TotalOldCost)
	return s
}
