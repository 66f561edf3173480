package compare

import (
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"azure-cost/analysis/usage"
)

// StorageType is the coarse bucket a storage charge falls into.
type StorageType string

const (
	StorageTypeBackup StorageType = "Backup"
	StorageTypeVMDisk StorageType = "VM_Disk"
	StorageTypeFile   StorageType = "File_Storage"
	StorageTypeOther  StorageType = "Storage"
)

// BillingModel distinguishes charges for provisioned capacity from
// charges for measured usage.
type BillingModel string

const (
	BillingModelProvisioned BillingModel = "provisioned"
	BillingModelUsageBased  BillingModel = "usage_based"
)

// diskTierCapacityGB maps managed-disk tier names to their provisioned
// size. P/S/E prefixes share the same size ladder.
var diskTierCapacityGB = buildDiskTiers()

func buildDiskTiers() map[string]float64 {
	sizes := map[string]float64{
		"4": 32, "6": 64, "10": 128, "15": 256, "20": 512,
		"30": 1024, "40": 2048, "50": 4096, "60": 8192,
		"70": 16384, "80": 32768,
	}
	out := make(map[string]float64, len(sizes)*3)
	for _, prefix := range []string{"P", "S", "E"} {
		for suffix, gb := range sizes {
			out[prefix+suffix] = gb
		}
	}
	return out
}

var diskKeywords = []string{"disk", "ssd", "hdd", "managed disk", "snapshot"}

func isStorageRelated(r usage.Record) bool {
	if r.MeterCategory == "Storage" || r.MeterCategory == "Backup" {
		return true
	}
	sub := strings.ToLower(r.MeterSubCategory)
	name := strings.ToLower(r.MeterName)
	for _, kw := range diskKeywords {
		if strings.Contains(sub, kw) || strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// classifyMeter splits a storage charge into its type, the provisioned
// capacity it pays for, the usage it measures, and which billing model
// applies. Exactly one of provisioned/usage is nonzero.
func classifyMeter(r usage.Record) (StorageType, float64, float64, BillingModel) {
	if strings.Contains(r.MeterCategory, "Backup") {
		return StorageTypeBackup, 0, r.Quantity, BillingModelUsageBased
	}

	if strings.Contains(r.MeterSubCategory, "Managed Disks") {
		for tier, gb := range diskTierCapacityGB {
			if strings.Contains(r.MeterName, tier+" LRS") ||
				strings.Contains(r.MeterName, tier+" ZRS") ||
				strings.Contains(r.MeterName, tier+" GRS") {
				return StorageTypeVMDisk, gb, 0, BillingModelProvisioned
			}
		}
		// Custom disk sizes. Hour-billed quantity is billing hours, not
		// GB, so scale it back to an approximate size.
		if strings.Contains(strings.ToLower(r.UnitOfMeasure), "hour") && r.Quantity > 1000 {
			return StorageTypeVMDisk, r.Quantity / 24 / 30, 0, BillingModelProvisioned
		}
		return StorageTypeVMDisk, r.Quantity, 0, BillingModelProvisioned
	}

	if strings.Contains(r.MeterName, "Snapshot") || strings.Contains(r.MeterSubCategory, "Snapshot") {
		for _, diskType := range []string{"Premium SSD", "Standard SSD", "Standard HDD"} {
			if strings.Contains(r.MeterSubCategory, diskType) {
				return StorageTypeVMDisk, 0, r.Quantity, BillingModelUsageBased
			}
		}
		return StorageTypeFile, 0, r.Quantity, BillingModelUsageBased
	}

	for _, kind := range []string{"Blob", "Files", "File Sync", "Tables", "Queues", "Cool", "Hot", "Archive"} {
		if strings.Contains(r.MeterSubCategory, kind) {
			return StorageTypeFile, 0, r.Quantity, BillingModelUsageBased
		}
	}

	return StorageTypeOther, 0, r.Quantity, BillingModelUsageBased
}

// StorageResource accumulates one resource's storage charges within a
// period. ProvisionedGB is the max capacity seen (the resource is paid
// for in full), UsageGB sums measured consumption.
type StorageResource struct {
	Instance      string
	Cost          decimal.Decimal
	ProvisionedGB float64
	UsageGB       float64
	StorageTypes  []StorageType
	Provisioned   bool
}

// StoragePeriod is one period's storage charges grouped by resource.
type StoragePeriod struct {
	Resources          map[string]StorageResource
	TotalCost          decimal.Decimal
	TotalProvisionedGB float64
	TotalUsageGB       float64
}

// AnalyzeStorage folds a period's records into per-resource storage
// accumulations.
func AnalyzeStorage(records []usage.Record) StoragePeriod {
	period := StoragePeriod{Resources: make(map[string]StorageResource)}

	for _, r := range records {
		if !isStorageRelated(r) {
			continue
		}
		storageType, provisionedGB, usageGB, model := classifyMeter(r)

		res := period.Resources[r.ShortName()]
		res.Instance = r.ShortName()
		res.Cost = res.Cost.Add(r.Cost)
		if !lo.Contains(res.StorageTypes, storageType) {
			res.StorageTypes = append(res.StorageTypes, storageType)
		}
		if model == BillingModelProvisioned {
			res.Provisioned = true
			if provisionedGB > res.ProvisionedGB {
				res.ProvisionedGB = provisionedGB
			}
		} else {
			res.UsageGB += usageGB
		}
		period.Resources[r.ShortName()] = res

		period.TotalCost = period.TotalCost.Add(r.Cost)
		period.TotalProvisionedGB += provisionedGB
		period.TotalUsageGB += usageGB
	}

	return period
}

// StorageDiff is one resource's storage billing across two periods.
type StorageDiff struct {
	Instance string

	NewCost          decimal.Decimal
	NewProvisionedGB float64
	NewUsageGB       float64
	OldCost          decimal.Decimal
	OldProvisionedGB float64
	OldUsageGB       float64

	CostDiff        decimal.Decimal
	ProvisionedDiff float64
	UsageDiff       float64

	StorageTypes []StorageType
	Provisioned  bool
	Optimization string
}

// StorageSummary aggregates the storage comparison.
type StorageSummary struct {
	TotalResources  int
	OldCost         decimal.Decimal
	NewCost         decimal.Decimal
	OldProvisioned  float64
	NewProvisioned  float64
	OldUsage        float64
	NewUsage        float64
	Increased       int
	Decreased       int
	Unchanged       int
	ProvisionedCost decimal.Decimal
	UsageBasedCost  decimal.Decimal
}

// StorageReport is the two-period storage comparison, rows sorted by
// cost difference descending.
type StorageReport struct {
	Rows    []StorageDiff
	Summary StorageSummary
}

// changeEpsilon keeps sub-cent float noise out of the changed counters.
var changeEpsilon = decimal.NewFromFloat(0.01)

// CompareStorage joins two storage periods over the union of resource
// names and attaches an optimization note per resource.
func CompareStorage(oldPeriod, newPeriod StoragePeriod) *StorageReport {
	names := lo.Uniq(append(lo.Keys(oldPeriod.Resources), lo.Keys(newPeriod.Resources)...))

	summary := StorageSummary{
		TotalResources: len(names),
		OldCost:        oldPeriod.TotalCost,
		NewCost:        newPeriod.TotalCost,
		OldProvisioned: oldPeriod.TotalProvisionedGB,
		NewProvisioned: newPeriod.TotalProvisionedGB,
		OldUsage:       oldPeriod.TotalUsageGB,
		NewUsage:       newPeriod.TotalUsageGB,
	}

	rows := make([]StorageDiff, 0, len(names))
	for _, name := range names {
		o := oldPeriod.Resources[name]
		n := newPeriod.Resources[name]

		row := StorageDiff{
			Instance:         name,
			NewCost:          n.Cost,
			NewProvisionedGB: n.ProvisionedGB,
			NewUsageGB:       n.UsageGB,
			OldCost:          o.Cost,
			OldProvisionedGB: o.ProvisionedGB,
			OldUsageGB:       o.UsageGB,
		}
		row.CostDiff = n.Cost.Sub(o.Cost)
		row.ProvisionedDiff = n.ProvisionedGB - o.ProvisionedGB
		row.UsageDiff = n.UsageGB - o.UsageGB

		types := lo.Uniq(append(append([]StorageType{}, o.StorageTypes...), n.StorageTypes...))
		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
		row.StorageTypes = types

		row.Provisioned = (o.Provisioned || n.Provisioned) && !lo.Contains(types, StorageTypeBackup)
		row.Optimization = optimizationNote(row)

		switch {
		case row.CostDiff.GreaterThan(changeEpsilon):
			summary.Increased++
		case row.CostDiff.LessThan(changeEpsilon.Neg()):
			summary.Decreased++
		default:
			summary.Unchanged++
		}
		if row.Provisioned && row.NewProvisionedGB > 0 {
			summary.ProvisionedCost = summary.ProvisionedCost.Add(row.NewCost)
		} else if row.NewUsageGB > 0 {
			summary.UsageBasedCost = summary.UsageBasedCost.Add(row.NewCost)
		}

		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CostDiff.Equal(rows[j].CostDiff) {
			return rows[i].CostDiff.GreaterThan(rows[j].CostDiff)
		}
		return rows[i].Instance < rows[j].Instance
	})

	return &StorageReport{Rows: rows, Summary: summary}
}

func optimizationNote(row StorageDiff) string {
	cost, _ := row.NewCost.Float64()
	if cost < 10 {
		return "Low impact"
	}

	if row.Provisioned && row.NewProvisionedGB > 0 {
		switch {
		case cost > 1000:
			return "HIGH: Review if full capacity needed"
		case cost > 200:
			return "MEDIUM: Check actual disk utilization"
		default:
			return "Monitor capacity needs"
		}
	}

	if row.NewUsageGB > 0 {
		costPerGB := cost / row.NewUsageGB
		hasFile := lo.Contains(row.StorageTypes, StorageTypeFile) || lo.Contains(row.StorageTypes, StorageTypeOther)
		if hasFile {
			switch {
			case costPerGB > 0.15:
				return "HIGH: Consider archive/cool tiers"
			case cost > 500:
				return "MEDIUM: Review lifecycle policies"
			default:
				return "Monitor growth trends"
			}
		}
		if lo.Contains(row.StorageTypes, StorageTypeBackup) {
			switch {
			case cost > 2000:
				return "HIGH: Review retention policies"
			case cost > 500:
				return "MEDIUM: Optimize backup frequency"
			default:
				return "Review retention settings"
			}
		}
	}

	return "Review usage patterns"
}

// TypesLabel renders the storage type set for display.
func (d StorageDiff) TypesLabel() string {
	if len(d.StorageTypes) == 0 {
		return "Unknown"
	}
	parts := make([]string, len(d.StorageTypes))
	for i, t := range d.StorageTypes {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

// ModelLabel renders the billing model for display.
func (d StorageDiff) ModelLabel() string {
	if d.Provisioned {
		return "Provisioned"
	}
	return "Usage-based"
}
