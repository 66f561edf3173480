package compare

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"azure-cost/analysis/usage"
)

func vmCost(name, category string, cost float64) usage.Record {
	return usage.Record{
		InstanceName:  "/subscriptions/s/virtualMachines/" + name,
		MeterCategory: category,
		Cost:          decimal.NewFromFloat(cost),
	}
}

func TestCompareVMs(t *testing.T) {
	oldRecords := []usage.Record{
		vmCost("web-01", meterVirtualMachines, 100),
		vmCost("web-01", meterVMLicenses, 20),
		vmCost("db-01", meterVirtualMachines, 50),
		vmCost("gone-01", meterVirtualMachines, 30),
		vmCost("other", "Storage", 999), // never counted
	}
	newRecords := []usage.Record{
		vmCost("web-01", meterVirtualMachines, 150),
		vmCost("web-01", meterVMLicenses, 20),
		vmCost("db-01", meterVirtualMachines, 50),
		vmCost("fresh-01", meterVirtualMachines, 40),
	}

	report := CompareVMs(oldRecords, newRecords)
	require.Len(t, report.Rows, 4)

	// Sorted by difference descending: web +50, fresh +40, db 0, gone -30.
	assert.Equal(t, "web-01", report.Rows[0].Instance)
	assert.Equal(t, "50", report.Rows[0].Difference.String())
	assert.Equal(t, "100", report.Rows[0].OldCompute.String())
	assert.Equal(t, "20", report.Rows[0].NewLicense.String())

	assert.Equal(t, "fresh-01", report.Rows[1].Instance)
	assert.Equal(t, "db-01", report.Rows[2].Instance)
	assert.Equal(t, "gone-01", report.Rows[3].Instance)
	assert.Equal(t, "-30", report.Rows[3].Difference.String())

	s := report.Summary
	assert.Equal(t, 4, s.TotalVMs)
	assert.Equal(t, "200", s.TotalOldCost.String())
	assert.Equal(t, "260", s.TotalNewCost.String())
	assert.Equal(t, "60", s.Difference.String())
	assert.Equal(t, 2, s.Increased)
	assert.Equal(t, 1, s.Decreased)
	assert.Equal(t, 1, s.Unchanged)
	assert.Equal(t, 1, s.NewVMs)
	assert.Equal(t, 1, s.RemovedVMs)
}

func TestCompareVMsEmptyPeriods(t *testing.T) {
	report := CompareVMs(nil, nil)
	assert.Empty(t, report.Rows)
	assert.Zero(t, report.Summary.TotalVMs)
}

func TestCompareVMsOnePeriodOnly(t *testing.T) {
	newRecords := []usage.Record{vmCost("web-01", meterVirtualMachines, 10)}
	report := CompareVMs(nil, newRecords)

	require.Len(t, report.Rows, 1)
	assert.True(t, report.Rows[0].TotalOld.IsZero())
	assert.Equal(t, "10", report.Rows[0].Difference.String())
	assert.Equal(t, 1, report.Summary.NewVMs)
}
