package usage

import (
	"fmt"
	"time"
)

// Azure emits year-0001 dates on purchase records that lack a true
// service date; such values mean "not provided".
const sentinelYear = 1

// ResolveDate extracts the representative calendar date from a record's
// heterogeneous date fields. Preference order: date, usageStart,
// servicePeriodStartDate, then usageEnd and servicePeriodEndDate as
// fallbacks. Sentinel and unparseable values skip to the next candidate.
func ResolveDate(r Record) (time.Time, bool) {
	candidates := []string{
		r.Date,
		r.UsageStart,
		r.ServicePeriodStart,
		r.UsageEnd,
		r.ServicePeriodEnd,
	}
	for _, candidate := range candidates {
		if t, ok := parseDate(candidate); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseDate parses a strict YYYY-MM-DD prefix first, then a full ISO-8601
// timestamp.
func parseDate(s string) (time.Time, bool) {
	if len(s) < 10 {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s[:10])
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, false
		}
	}
	if t.Year() == sentinelYear {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

// ValidateWindow rejects an inverted date range before any analysis runs.
func ValidateWindow(from, to *time.Time) error {
	if from != nil && to != nil && from.After(*to) {
		return fmt.Errorf("invalid date range: from %s is after to %s",
			from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	return nil
}

// FilterByWindow keeps records whose resolved date lies in [from, to]
// inclusive. With no bounds the input is returned unchanged. Records with
// no resolvable date are counted and discarded.
func FilterByWindow(records []Record, from, to *time.Time) ([]Record, int) {
	if from == nil && to == nil {
		return records, 0
	}

	kept := make([]Record, 0, len(records))
	skipped := 0
	for _, r := range records {
		d, ok := ResolveDate(r)
		if !ok {
			skipped++
			continue
		}
		if from != nil && d.Before(*from) {
			continue
		}
		if to != nil && d.After(*to) {
			continue
		}
		kept = append(kept, r)
	}
	return kept, skipped
}
