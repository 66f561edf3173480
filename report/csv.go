// Package report renders analysis results to CSV files and the console.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"azure-cost/analysis/compare"
	"azure-cost/analysis/coverage"
	"azure-cost/analysis/reservation"
)

func createCSV(path string) (*os.File, *csv.Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, csv.NewWriter(f), nil
}

// WriteUtilizationCSV writes one row per reservation report.
func WriteUtilizationCSV(path string, reports []reservation.Report) error {
	f, w, err := createCSV(path)
	if err != nil {
		return err
	}
	defer f.Close()
	defer w.Flush()

	header := []string{
		"order_id", "hidden", "product", "region", "monthly_cost",
		"reserved_cores", "cores_estimated", "cores_used",
		"consumed_hours", "consumed_cost", "utilization_pct", "status",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range reports {
		utilization := "n/a"
		if r.Utilization != nil {
			utilization = fmt.Sprintf("%.1f", *r.Utilization)
		}
		cost := r.Cost.StringFixed(2)
		if r.Hidden {
			cost = "unknown"
		}
		row := []string{
			r.OrderID, strconv.FormatBool(r.Hidden), r.Product, r.Region, cost,
			strconv.Itoa(r.ReservedCores), strconv.FormatBool(r.CoresEstimated),
			strconv.Itoa(r.CoresUsed),
			fmt.Sprintf("%.2f", r.TotalConsumedHours), r.TotalConsumedCost.StringFixed(2),
			utilization, string(r.Status),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

// WriteCoverageCSV writes per-VM coverage rows followed by the aggregate.
func WriteCoverageCSV(path string, report *coverage.Report) error {
	f, w, err := createCSV(path)
	if err != nil {
		return err
	}
	defer f.Close()
	defer w.Flush()

	header := []string{
		"vm", "total_hours", "reserved_hours", "coverage_pct",
		"total_cost", "reserved_cost", "payg_equivalent_cost", "uncovered_payg_cost",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	rows := append(append([]coverage.VMCoverage{}, report.PerVM...), report.Aggregate)
	for _, vm := range rows {
		row := []string{
			vm.Name,
			fmt.Sprintf("%.2f", vm.TotalHours),
			fmt.Sprintf("%.2f", vm.ReservedHours),
			fmt.Sprintf("%.1f", vm.CoveragePercent()),
			vm.TotalCost.StringFixed(2),
			vm.ReservedCost.StringFixed(2),
			vm.PaygEquivalentCost.StringFixed(2),
			vm.UncoveredPaygCost.StringFixed(2),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

// WriteVMComparisonCSV writes the two-period VM cost diff.
func WriteVMComparisonCSV(path string, report *compare.VMReport) error {
	f, w, err := createCSV(path)
	if err != nil {
		return err
	}
	defer f.Close()
	defer w.Flush()

	header := []string{
		"instance", "vm_old", "license_old", "vm_new", "license_new",
		"total_old", "total_new", "difference",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range report.Rows {
		record := []string{
			row.Instance,
			row.OldCompute.StringFixed(2), row.OldLicense.StringFixed(2),
			row.NewCompute.StringFixed(2), row.NewLicense.StringFixed(2),
			row.TotalOld.StringFixed(2), row.TotalNew.StringFixed(2),
			row.Difference.StringFixed(2),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return w.Error()
}

// WriteStorageComparisonCSV writes the two-period storage diff.
func WriteStorageComparisonCSV(path string, report *compare.StorageReport) error {
	f, w, err := createCSV(path)
	if err != nil {
		return err
	}
	defer f.Close()
	defer w.Flush()

	header := []string{
		"instance", "new_cost", "new_provisioned_gb", "new_usage_gb",
		"old_cost", "old_provisioned_gb", "old_usage_gb",
		"cost_diff", "provisioned_diff", "usage_diff",
		"storage_type", "billing_model", "optimization_note",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range report.Rows {
		record := []string{
			row.Instance,
			row.NewCost.StringFixed(2),
			fmt.Sprintf("%.0f", row.NewProvisionedGB),
			fmt.Sprintf("%.2f", row.NewUsageGB),
			row.OldCost.StringFixed(2),
			fmt.Sprintf("%.0f", row.OldProvisionedGB),
			fmt.Sprintf("%.2f", row.OldUsageGB),
			row.CostDiff.StringFixed(2),
			fmt.Sprintf("%.0f", row.ProvisionedDiff),
			fmt.Sprintf("%.2f", row.UsageDiff),
			row.TypesLabel(),
			row.ModelLabel(),
			row.Optimization,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return w.Error()
}

// WriteMonthlyCSV writes the month-by-category pivot, one row per month.
func WriteMonthlyCSV(path string, table *compare.MonthlyTable) error {
	f, w, err := createCSV(path)
	if err != nil {
		return err
	}
	defer f.Close()
	defer w.Flush()

	header := append([]string{"billing_month"}, table.Columns...)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, month := range table.Months {
		row := make([]string, 0, len(header))
		row = append(row, month)
		for _, column := range table.Columns {
			row = append(row, table.Cell(month, column).StringFixed(2))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}
