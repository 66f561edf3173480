package compare

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"azure-cost/analysis/usage"
)

const (
	storageTotalColumn = "Storage Total"
	grandTotalColumn   = "Total"
)

// MonthlyTable is meter-category spend pivoted by billing month.
// Storage charges break out per storage account so growth in one
// account is visible. Months and Columns are sorted; Columns ends with
// the Storage Total and Total roll-ups.
type MonthlyTable struct {
	Months  []string
	Columns []string
	// Cells maps month then column to calculated cost. Calculated cost
	// is quantity times effective price, not the billed cost column, so
	// the table reconciles against the rate card.
	Cells map[string]map[string]decimal.Decimal
}

// Cell returns the cost at month/column, zero when absent.
func (t *MonthlyTable) Cell(month, column string) decimal.Decimal {
	if row, ok := t.Cells[month]; ok {
		return row[column]
	}
	return decimal.Decimal{}
}

func monthlyColumn(r usage.Record) string {
	if r.MeterCategory == "Storage" {
		return fmt.Sprintf("Storage (%s)", r.ShortName())
	}
	return r.MeterCategory
}

// AggregateMonthly pivots records into a month-by-category cost table.
// Records whose dates cannot be resolved are dropped; the count of
// dropped records is returned alongside the table.
func AggregateMonthly(records []usage.Record) (*MonthlyTable, int) {
	table := &MonthlyTable{Cells: make(map[string]map[string]decimal.Decimal)}
	columns := make(map[string]bool)
	dropped := 0

	for _, r := range records {
		day, ok := usage.ResolveDate(r)
		if !ok {
			dropped++
			continue
		}
		month := day.Format("2006-01")
		column := monthlyColumn(r)

		row, ok := table.Cells[month]
		if !ok {
			row = make(map[string]decimal.Decimal)
			table.Cells[month] = row
		}
		cost := decimal.NewFromFloat(r.Quantity).Mul(r.EffectivePrice)
		row[column] = row[column].Add(cost)
		columns[column] = true
	}

	for month, row := range table.Cells {
		storageTotal := decimal.Decimal{}
		grandTotal := decimal.Decimal{}
		for column, cost := range row {
			if strings.HasPrefix(column, "Storage") {
				storageTotal = storageTotal.Add(cost)
			}
			grandTotal = grandTotal.Add(cost)
		}
		row[storageTotalColumn] = storageTotal
		row[grandTotalColumn] = grandTotal
		table.Months = append(table.Months, month)
	}
	sort.Strings(table.Months)

	table.Columns = make([]string, 0, len(columns)+2)
	for column := range columns {
		table.Columns = append(table.Columns, column)
	}
	sort.Strings(table.Columns)
	table.Columns = append(table.Columns, storageTotalColumn, grandTotalColumn)

	return table, dropped
}
