// Package usage models Azure usage-details export records and loads them
// from JSON documents into a strict typed form.
package usage

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ChargeType is the charge classification carried by a usage record.
type ChargeType string

const (
	ChargeTypePurchase ChargeType = "Purchase"
	ChargeTypeUsage    ChargeType = "Usage"
	ChargeTypeRefund   ChargeType = "Refund"
)

// Record is one billed line item, normalized at the ingestion boundary.
// Records are read-only once loaded; analyses project them into derived
// structures.
type Record struct {
	InstanceName     string
	MeterCategory    string
	MeterSubCategory string
	MeterName        string
	MeterRegion      string
	UnitOfMeasure    string
	ConsumedService  string
	ChargeType       ChargeType
	Product          string

	Quantity       float64
	Cost           decimal.Decimal
	EffectivePrice decimal.Decimal
	// PayGPrice is nil for SKUs/API versions that do not report a
	// pay-as-you-go unit price.
	PayGPrice *decimal.Decimal

	// AdditionalInfo is the raw embedded payload; reservation linkage is
	// extracted from it by ParseAdditionalInfo.
	AdditionalInfo string

	// Date fields are kept as exported strings; at most a subset is
	// populated and some carry the 0001-01-01 sentinel. ResolveDate picks
	// the representative one.
	Date               string
	UsageStart         string
	UsageEnd           string
	ServicePeriodStart string
	ServicePeriodEnd   string
}

// ShortName returns the last path segment of the record's instance name,
// the conventional display name for the consuming resource.
func (r Record) ShortName() string {
	name := r.InstanceName
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return "unknown"
	}
	return name
}

// ReservationLink is the reservation linkage embedded in a record's
// additionalInfo payload.
type ReservationLink struct {
	ReservationOrderID string
	ReservationID      string
	ServiceType        string
	ConsumedQuantity   float64
}

// ParseAdditionalInfo extracts the reservation linkage from a raw
// additionalInfo payload. It reports false when the payload is empty, not
// valid JSON, or lacks a ReservationOrderId key; malformed payloads are
// common in production exports and never surface an error.
func ParseAdditionalInfo(raw string) (ReservationLink, bool) {
	if strings.TrimSpace(raw) == "" {
		return ReservationLink{}, false
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return ReservationLink{}, false
	}
	orderID, ok := payload["ReservationOrderId"]
	if !ok {
		return ReservationLink{}, false
	}
	link := ReservationLink{
		ReservationOrderID: rawString(orderID),
		ReservationID:      rawString(payload["ReservationId"]),
		ServiceType:        rawString(payload["ServiceType"]),
	}
	if link.ReservationOrderID == "" {
		return ReservationLink{}, false
	}
	if qty, ok := payload["ConsumedQuantity"]; ok {
		link.ConsumedQuantity = rawFloat(qty)
	}
	return link, true
}

func rawString(m json.RawMessage) string {
	if len(m) == 0 || string(m) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(m, &s); err == nil {
		return s
	}
	return strings.Trim(string(m), `"`)
}

// rawFloat coerces a JSON value that may be a number or a numeric string.
func rawFloat(m json.RawMessage) float64 {
	if len(m) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(m, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(m, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	}
	return 0
}

// flexNumber unmarshals a field that providers emit as number, numeric
// string, empty string, or null. Absence and garbage both decode to the
// zero value with ok=false.
type flexNumber struct {
	val decimal.Decimal
	ok  bool
}

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	n.val = d
	n.ok = true
	return nil
}

func (n flexNumber) decimal() decimal.Decimal {
	return n.val
}

func (n flexNumber) decimalPtr() *decimal.Decimal {
	if !n.ok {
		return nil
	}
	d := n.val
	return &d
}

func (n flexNumber) float() float64 {
	f, _ := n.val.Float64()
	return f
}
