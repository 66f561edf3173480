package reservation

import (
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"azure-cost/analysis/usage"
)

// Reservation is a capacity purchase visible in the current data window.
type Reservation struct {
	OrderID     string
	Cost        decimal.Decimal
	Product     string
	Region      string
	SubCategory string
	PeriodStart string
	PeriodEnd   string
}

// ConsumptionEvent is one usage record whose additionalInfo references a
// reservation. Many events may share the same resource name; billing
// slices the same resource across rows over time.
type ConsumptionEvent struct {
	OrderID          string
	Resource         string
	ServiceType      string
	ConsumedQuantity float64
	Cost             decimal.Decimal
}

// Correlation is the bipartite association between reservations and
// the consumption linked to them.
type Correlation struct {
	// Visible holds reservations whose Purchase record is inside the
	// data window, keyed by order ID.
	Visible map[string]Reservation
	// Consumption groups consumption events by order ID, whether or not
	// that ID has a visible purchase.
	Consumption map[string][]ConsumptionEvent
	// OrderIDs is the sorted union of both key sets. An ID present only
	// via consumption belongs to a hidden reservation.
	OrderIDs []string
}

// Hidden reports whether an order ID is known only through consumption.
func (c Correlation) Hidden(orderID string) bool {
	_, ok := c.Visible[orderID]
	return !ok
}

// Correlate builds the reservation/consumption association in a single
// pass over the record set. Duplicate purchase records for the same order
// ID are unexpected; the last one wins and a debug line makes
// re-purchases observable.
func Correlate(records []usage.Record) Correlation {
	correlation := Correlation{
		Visible:     make(map[string]Reservation),
		Consumption: make(map[string][]ConsumptionEvent),
	}

	for _, r := range records {
		c := Classify(r)
		switch c.Kind {
		case KindPurchase:
			if _, exists := correlation.Visible[c.OrderID]; exists {
				slog.Debug("duplicate reservation purchase record", "order_id", c.OrderID)
			}
			correlation.Visible[c.OrderID] = Reservation{
				OrderID:     c.OrderID,
				Cost:        r.Cost,
				Product:     r.Product,
				Region:      r.MeterRegion,
				SubCategory: r.MeterSubCategory,
				PeriodStart: r.ServicePeriodStart,
				PeriodEnd:   r.ServicePeriodEnd,
			}
		case KindConsumption:
			correlation.Consumption[c.OrderID] = append(correlation.Consumption[c.OrderID], ConsumptionEvent{
				OrderID:          c.OrderID,
				Resource:         r.ShortName(),
				ServiceType:      c.Link.ServiceType,
				ConsumedQuantity: c.Link.ConsumedQuantity,
				Cost:             r.Cost,
			})
		}
	}

	seen := make(map[string]bool, len(correlation.Visible)+len(correlation.Consumption))
	for id := range correlation.Visible {
		seen[id] = true
	}
	for id := range correlation.Consumption {
		seen[id] = true
	}
	correlation.OrderIDs = make([]string, 0, len(seen))
	for id := range seen {
		correlation.OrderIDs = append(correlation.OrderIDs, id)
	}
	sort.Strings(correlation.OrderIDs)

	return correlation
}
