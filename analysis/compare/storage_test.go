package compare

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"azure-cost/analysis/usage"
)

func TestIsStorageRelated(t *testing.T) {
	tests := []struct {
		name   string
		record usage.Record
		want   bool
	}{
		{"storage category", usage.Record{MeterCategory: "Storage"}, true},
		{"backup category", usage.Record{MeterCategory: "Backup"}, true},
		{"disk keyword in subcategory", usage.Record{MeterCategory: "Other", MeterSubCategory: "Premium SSD Managed Disks"}, true},
		{"snapshot keyword in meter name", usage.Record{MeterCategory: "Other", MeterName: "Disk Snapshot"}, true},
		{"compute", usage.Record{MeterCategory: "Virtual Machines"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isStorageRelated(tt.record))
		})
	}
}

func TestClassifyMeter(t *testing.T) {
	t.Run("backup is usage based", func(t *testing.T) {
		r := usage.Record{MeterCategory: "Backup", Quantity: 500}
		st, prov, used, model := classifyMeter(r)
		assert.Equal(t, StorageTypeBackup, st)
		assert.Zero(t, prov)
		assert.InDelta(t, 500.0, used, 0.0001)
		assert.Equal(t, BillingModelUsageBased, model)
	})

	t.Run("managed disk tier maps to capacity", func(t *testing.T) {
		r := usage.Record{
			MeterCategory:    "Storage",
			MeterSubCategory: "Premium SSD Managed Disks",
			MeterName:        "P30 LRS Disk",
			Quantity:         1,
		}
		st, prov, used, model := classifyMeter(r)
		assert.Equal(t, StorageTypeVMDisk, st)
		assert.InDelta(t, 1024.0, prov, 0.0001)
		assert.Zero(t, used)
		assert.Equal(t, BillingModelProvisioned, model)
	})

	t.Run("standard tier ZRS", func(t *testing.T) {
		r := usage.Record{
			MeterSubCategory: "Standard HDD Managed Disks",
			MeterName:        "S4 ZRS Disk",
		}
		_, prov, _, _ := classifyMeter(r)
		assert.InDelta(t, 32.0, prov, 0.0001)
	})

	t.Run("custom disk billed hourly", func(t *testing.T) {
		r := usage.Record{
			MeterSubCategory: "Standard SSD Managed Disks",
			MeterName:        "Custom Disk",
			UnitOfMeasure:    "1 Hour",
			Quantity:         7200,
		}
		_, prov, _, model := classifyMeter(r)
		assert.InDelta(t, 10.0, prov, 0.0001)
		assert.Equal(t, BillingModelProvisioned, model)
	})

	t.Run("disk snapshot is usage based", func(t *testing.T) {
		r := usage.Record{
			MeterSubCategory: "Premium SSD Snapshots",
			MeterName:        "Snapshot LRS",
			Quantity:         64,
		}
		st, _, used, model := classifyMeter(r)
		assert.Equal(t, StorageTypeVMDisk, st)
		assert.InDelta(t, 64.0, used, 0.0001)
		assert.Equal(t, BillingModelUsageBased, model)
	})

	t.Run("blob storage is usage based", func(t *testing.T) {
		r := usage.Record{
			MeterCategory:    "Storage",
			MeterSubCategory: "Blob Storage",
			Quantity:         200,
		}
		st, _, used, _ := classifyMeter(r)
		assert.Equal(t, StorageTypeFile, st)
		assert.InDelta(t, 200.0, used, 0.0001)
	})
}

func storageRecord(name, subCategory, meterName string, qty, cost float64) usage.Record {
	return usage.Record{
		InstanceName:     "/subscriptions/s/storage/" + name,
		MeterCategory:    "Storage",
		MeterSubCategory: subCategory,
		MeterName:        meterName,
		Quantity:         qty,
		Cost:             decimal.NewFromFloat(cost),
	}
}

func TestAnalyzeStorage(t *testing.T) {
	records := []usage.Record{
		storageRecord("disk-1", "Premium SSD Managed Disks", "P10 LRS Disk", 1, 20),
		storageRecord("disk-1", "Premium SSD Managed Disks", "P10 LRS Disk", 1, 20),
		storageRecord("acct-1", "Blob Storage", "Hot LRS Data Stored", 150, 3),
		{InstanceName: "vm-1", MeterCategory: "Virtual Machines", Cost: decimal.NewFromInt(500)},
	}

	period := AnalyzeStorage(records)

	require.Len(t, period.Resources, 2)
	disk := period.Resources["disk-1"]
	assert.Equal(t, "40", disk.Cost.String())
	// Provisioned capacity is a max, not a sum.
	assert.InDelta(t, 128.0, disk.ProvisionedGB, 0.0001)
	assert.True(t, disk.Provisioned)

	acct := period.Resources["acct-1"]
	assert.InDelta(t, 150.0, acct.UsageGB, 0.0001)
	assert.False(t, acct.Provisioned)

	assert.Equal(t, "43", period.TotalCost.String())
}

func TestCompareStorage(t *testing.T) {
	oldPeriod := AnalyzeStorage([]usage.Record{
		storageRecord("disk-1", "Premium SSD Managed Disks", "P10 LRS Disk", 1, 20),
		storageRecord("acct-1", "Blob Storage", "Hot LRS Data Stored", 100, 2),
	})
	newPeriod := AnalyzeStorage([]usage.Record{
		storageRecord("disk-1", "Premium SSD Managed Disks", "P20 LRS Disk", 1, 40),
		storageRecord("acct-2", "Blob Storage", "Hot LRS Data Stored", 50, 1),
	})

	report := CompareStorage(oldPeriod, newPeriod)
	require.Len(t, report.Rows, 3)

	// Sorted by cost diff descending: disk +20, acct-2 +1, acct-1 -2.
	assert.Equal(t, "disk-1", report.Rows[0].Instance)
	assert.Equal(t, "20", report.Rows[0].CostDiff.String())
	assert.InDelta(t, 384.0, report.Rows[0].ProvisionedDiff, 0.0001)
	assert.Equal(t, "Provisioned", report.Rows[0].ModelLabel())

	assert.Equal(t, "acct-2", report.Rows[1].Instance)
	assert.Equal(t, "acct-1", report.Rows[2].Instance)
	assert.Equal(t, "Usage-based", report.Rows[2].ModelLabel())

	s := report.Summary
	assert.Equal(t, 3, s.TotalResources)
	assert.Equal(t, 2, s.Increased)
	assert.Equal(t, 1, s.Decreased)
}

func TestOptimizationNote(t *testing.T) {
	t.Run("cheap resources are low impact", func(t *testing.T) {
		row := StorageDiff{NewCost: decimal.NewFromInt(5)}
		assert.Equal(t, "Low impact", optimizationNote(row))
	})

	t.Run("expensive provisioned disk", func(t *testing.T) {
		row := StorageDiff{
			NewCost:          decimal.NewFromInt(1500),
			NewProvisionedGB: 4096,
			Provisioned:      true,
		}
		assert.Equal(t, "HIGH: Review if full capacity needed", optimizationNote(row))
	})

	t.Run("expensive per GB file storage", func(t *testing.T) {
		row := StorageDiff{
			NewCost:      decimal.NewFromInt(100),
			NewUsageGB:   100,
			StorageTypes: []StorageType{StorageTypeFile},
		}
		assert.Equal(t, "HIGH: Consider archive/cool tiers", optimizationNote(row))
	})

	t.Run("large backup", func(t *testing.T) {
		row := StorageDiff{
			NewCost:      decimal.NewFromInt(3000),
			NewUsageGB:   5000,
			StorageTypes: []StorageType{StorageTypeBackup},
		}
		assert.Equal(t, "HIGH: Review retention policies", optimizationNote(row))
	})
}
