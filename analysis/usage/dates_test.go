package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolveDate(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		want   time.Time
		ok     bool
	}{
		{
			name:   "date field preferred",
			record: Record{Date: "2026-06-15", UsageStart: "2026-06-01"},
			want:   date(2026, time.June, 15),
			ok:     true,
		},
		{
			name:   "falls back to usageStart",
			record: Record{UsageStart: "2026-06-01T00:00:00Z"},
			want:   date(2026, time.June, 1),
			ok:     true,
		},
		{
			name:   "sentinel skipped in favor of service period",
			record: Record{Date: "0001-01-01T00:00:00Z", ServicePeriodStart: "2026-06-01"},
			want:   date(2026, time.June, 1),
			ok:     true,
		},
		{
			name:   "end dates used last",
			record: Record{UsageEnd: "2026-06-30"},
			want:   date(2026, time.June, 30),
			ok:     true,
		},
		{
			name:   "all sentinel",
			record: Record{Date: "0001-01-01", ServicePeriodEnd: "0001-01-01T00:00:00Z"},
			ok:     false,
		},
		{
			name:   "no dates at all",
			record: Record{},
			ok:     false,
		},
		{
			name:   "garbage date",
			record: Record{Date: "not-a-date"},
			ok:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveDate(tt.record)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestResolveDateNormalizesToMidnightUTC(t *testing.T) {
	got, ok := ResolveDate(Record{Date: "2026-06-15T13:45:12Z"})
	require.True(t, ok)
	assert.Equal(t, date(2026, time.June, 15), got)
}

func TestValidateWindow(t *testing.T) {
	from := date(2026, time.June, 30)
	to := date(2026, time.June, 1)

	err := ValidateWindow(&from, &to)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid date range")

	assert.NoError(t, ValidateWindow(&to, &from))
	assert.NoError(t, ValidateWindow(nil, nil))
	assert.NoError(t, ValidateWindow(&from, nil))
}

func TestFilterByWindow(t *testing.T) {
	records := []Record{
		{InstanceName: "a", Date: "2026-06-01"},
		{InstanceName: "b", Date: "2026-06-15"},
		{InstanceName: "c", Date: "2026-07-01"},
		{InstanceName: "d"}, // no resolvable date
	}

	t.Run("no bounds returns input unchanged", func(t *testing.T) {
		kept, skipped := FilterByWindow(records, nil, nil)
		assert.Len(t, kept, 4)
		assert.Zero(t, skipped)
	})

	t.Run("inclusive bounds", func(t *testing.T) {
		from := date(2026, time.June, 1)
		to := date(2026, time.June, 15)
		kept, skipped := FilterByWindow(records, &from, &to)
		require.Len(t, kept, 2)
		assert.Equal(t, "a", kept[0].InstanceName)
		assert.Equal(t, "b", kept[1].InstanceName)
		assert.Equal(t, 1, skipped)
	})

	t.Run("open ended from", func(t *testing.T) {
		from := date(2026, time.June, 16)
		kept, _ := FilterByWindow(records, &from, nil)
		require.Len(t, kept, 1)
		assert.Equal(t, "c", kept[0].InstanceName)
	})

	t.Run("filtering is idempotent", func(t *testing.T) {
		from := date(2026, time.June, 1)
		to := date(2026, time.June, 30)
		once, _ := FilterByWindow(records, &from, &to)
		twice, skipped := FilterByWindow(once, &from, &to)
		assert.Equal(t, once, twice)
		assert.Zero(t, skipped)
	})
}
