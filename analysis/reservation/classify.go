package reservation

import (
	"regexp"

	"azure-cost/analysis/usage"
)

// Kind is the record family a usage record belongs to.
type Kind int

const (
	// KindPlainUsage covers everything that is neither a reservation
	// purchase nor reservation-linked consumption.
	KindPlainUsage Kind = iota
	KindPurchase
	KindConsumption
)

func (k Kind) String() string {
	switch k {
	case KindPurchase:
		return "reservation-purchase"
	case KindConsumption:
		return "reservation-consumption"
	default:
		return "plain-usage"
	}
}

var orderIDPattern = regexp.MustCompile(`reservationOrders/([^/]+)`)

// OrderIDFromInstanceName extracts the reservation order ID from a
// hierarchical resource path, or "" when the path carries none.
func OrderIDFromInstanceName(name string) string {
	m := orderIDPattern.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}

// Classification is the result of classifying one usage record.
type Classification struct {
	Kind    Kind
	OrderID string
	// Link is populated for consumption records only.
	Link usage.ReservationLink
}

// Classify determines the record family of a usage record. A purchase
// requires both the reservationOrders path segment and the Purchase
// charge type; a record whose additionalInfo carries a ReservationOrderId
// is consumption. Malformed additionalInfo demotes the record to plain
// usage rather than surfacing an error.
func Classify(r usage.Record) Classification {
	if r.ChargeType == usage.ChargeTypePurchase {
		if orderID := OrderIDFromInstanceName(r.InstanceName); orderID != "" {
			return Classification{Kind: KindPurchase, OrderID: orderID}
		}
	}
	if link, ok := usage.ParseAdditionalInfo(r.AdditionalInfo); ok {
		return Classification{Kind: KindConsumption, OrderID: link.ReservationOrderID, Link: link}
	}
	return Classification{Kind: KindPlainUsage}
}
