package reservation

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Status classifies a reservation's utilization against its provisioned
// capacity.
type Status string

const (
	// StatusUnused means no consumption record references the
	// reservation; its full monthly cost is waste.
	StatusUnused Status = "unused"
	StatusUnder  Status = "under-utilized"
	StatusExact  Status = "exactly-matched"
	// StatusOver means more cores are billed against the reservation
	// than it provisions; some linked usage is not actually discounted.
	StatusOver    Status = "over-subscribed"
	StatusUnknown Status = "unknown"
)

// ResourceUsage accumulates a resource's consumption events against one
// reservation.
type ResourceUsage struct {
	Resource      string
	Cost          decimal.Decimal
	ConsumedHours float64
	ServiceTypes  []string
	// CoresUsed is the maximum core count inferred from any service type
	// seen for this resource.
	CoresUsed int
}

// Report is the per-reservation utilization result.
type Report struct {
	OrderID string

	// Hidden reservations are known only via consumption linkage; their
	// cost and product are unknown in this run and the reserved core
	// count is a best-effort estimate, never authoritative.
	Hidden         bool
	Cost           decimal.Decimal
	Product        string
	Region         string
	SubCategory    string
	PeriodStart    string
	PeriodEnd      string
	ReservedCores  int
	CoresEstimated bool

	Resources          []ResourceUsage
	CoresUsed          int
	TotalConsumedHours float64
	TotalConsumedCost  decimal.Decimal

	// Utilization is nil when ReservedCores is zero; the percentage is
	// undefined rather than a division error.
	Utilization *float64
	Status      Status
}

// Analyze builds the utilization report for a single reservation from its
// linked consumption events.
func Analyze(orderID string, events []ConsumptionEvent, visible map[string]Reservation) Report {
	report := Report{
		OrderID: orderID,
		Product: "Unknown",
		Status:  StatusUnknown,
	}

	if res, ok := visible[orderID]; ok {
		report.Cost = res.Cost
		report.Product = res.Product
		report.Region = res.Region
		report.SubCategory = res.SubCategory
		report.PeriodStart = res.PeriodStart
		report.PeriodEnd = res.PeriodEnd
		report.ReservedCores = ParseSizeToken(res.Product).Cores
	} else {
		report.Hidden = true
	}

	report.Resources = aggregateByResource(events)
	for _, ru := range report.Resources {
		report.CoresUsed += ru.CoresUsed
		report.TotalConsumedHours += ru.ConsumedHours
		report.TotalConsumedCost = report.TotalConsumedCost.Add(ru.Cost)
	}

	// A hidden reservation's capacity is reconstructed from the largest
	// size token seen across its consumption.
	if report.Hidden {
		maxCores := 0
		for _, e := range events {
			if cores := ParseSizeToken(e.ServiceType).Cores; cores > maxCores {
				maxCores = cores
			}
		}
		report.ReservedCores = maxCores
		report.CoresEstimated = true
	}

	if len(events) == 0 {
		report.Status = StatusUnused
		return report
	}

	if report.ReservedCores > 0 {
		pct := float64(report.CoresUsed) / float64(report.ReservedCores) * 100
		report.Utilization = &pct
		switch {
		case pct < 100:
			report.Status = StatusUnder
		case pct > 100:
			report.Status = StatusOver
		default:
			report.Status = StatusExact
		}
	}

	return report
}

// AnalyzeAll produces one report per order ID in the correlation, in
// order-ID order.
func AnalyzeAll(c Correlation) []Report {
	reports := make([]Report, 0, len(c.OrderIDs))
	for _, orderID := range c.OrderIDs {
		reports = append(reports, Analyze(orderID, c.Consumption[orderID], c.Visible))
	}
	return reports
}

func aggregateByResource(events []ConsumptionEvent) []ResourceUsage {
	byResource := make(map[string]*ResourceUsage)
	types := make(map[string]map[string]bool)

	for _, e := range events {
		ru, ok := byResource[e.Resource]
		if !ok {
			ru = &ResourceUsage{Resource: e.Resource}
			byResource[e.Resource] = ru
			types[e.Resource] = make(map[string]bool)
		}
		ru.Cost = ru.Cost.Add(e.Cost)
		ru.ConsumedHours += e.ConsumedQuantity
		if e.ServiceType != "" {
			types[e.Resource][e.ServiceType] = true
		}
		if cores := ParseSizeToken(e.ServiceType).Cores; cores > ru.CoresUsed {
			ru.CoresUsed = cores
		}
	}

	result := make([]ResourceUsage, 0, len(byResource))
	for name, ru := range byResource {
		for t := range types[name] {
			ru.ServiceTypes = append(ru.ServiceTypes, t)
		}
		sort.Strings(ru.ServiceTypes)
		result = append(result, *ru)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Cost.Equal(result[j].Cost) {
			return result[i].Cost.GreaterThan(result[j].Cost)
		}
		return result[i].Resource < result[j].Resource
	})
	return result
}

// =============================================================================
// SKU/REGION GROUPING
// =============================================================================

// Policy constants for combined group efficiency. Multiple reservations
// for the same SKU and region usually belong in one larger reservation.
const (
	ConsolidationThreshold = 80.0
	UpsizeThreshold        = 120.0
)

// GroupFlag is the recommendation for a SKU/region reservation group.
type GroupFlag string

const (
	GroupFlagNone        GroupFlag = ""
	GroupFlagConsolidate GroupFlag = "consolidate"
	GroupFlagUpsize      GroupFlag = "upsize"
)

// GroupEfficiency is the combined utilization of all reservations sharing
// an inferred size family and region.
type GroupEfficiency struct {
	Family        string
	Region        string
	OrderIDs      []string
	ReservedCores int
	CoresUsed     int
	Efficiency    *float64
	Flag          GroupFlag
}

// GroupBySKU groups utilization reports by inferred size family and
// region and computes combined efficiency. Hidden reservations group
// under their estimated family with an empty region.
func GroupBySKU(reports []Report) []GroupEfficiency {
	type key struct{ family, region string }
	groups := make(map[key]*GroupEfficiency)

	for _, r := range reports {
		family := ParseSizeToken(r.Product).Family
		if r.Hidden {
			family = familyFromResources(r.Resources)
		}
		k := key{family, r.Region}
		g, ok := groups[k]
		if !ok {
			g = &GroupEfficiency{Family: family, Region: r.Region}
			groups[k] = g
		}
		g.OrderIDs = append(g.OrderIDs, r.OrderID)
		g.ReservedCores += r.ReservedCores
		g.CoresUsed += r.CoresUsed
	}

	result := make([]GroupEfficiency, 0, len(groups))
	for _, g := range groups {
		if g.ReservedCores > 0 {
			pct := float64(g.CoresUsed) / float64(g.ReservedCores) * 100
			g.Efficiency = &pct
			switch {
			case pct < ConsolidationThreshold:
				g.Flag = GroupFlagConsolidate
			case pct > UpsizeThreshold:
				g.Flag = GroupFlagUpsize
			}
		}
		sort.Strings(g.OrderIDs)
		result = append(result, *g)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Family != result[j].Family {
			return result[i].Family < result[j].Family
		}
		return result[i].Region < result[j].Region
	})
	return result
}

// familyFromResources picks the family of the largest size token seen in
// a hidden reservation's consumption.
func familyFromResources(resources []ResourceUsage) string {
	best := UnknownSize
	for _, ru := range resources {
		for _, st := range ru.ServiceTypes {
			if token := ParseSizeToken(st); token.Cores > best.Cores {
				best = token
			}
		}
	}
	return best.Family
}
