package reservation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"azure-cost/analysis/usage"
)

func TestAnalyzeUnderUtilized(t *testing.T) {
	records := []usage.Record{
		purchaseRecord("order-a", "Standard_D8s_v3", 200),
		consumptionRecord("order-a", "web-01", "Standard_D4s_v3", 24, 5),
	}
	c := Correlate(records)

	r := Analyze("order-a", c.Consumption["order-a"], c.Visible)

	assert.False(t, r.Hidden)
	assert.Equal(t, 8, r.ReservedCores)
	assert.False(t, r.CoresEstimated)
	assert.Equal(t, 4, r.CoresUsed)
	require.NotNil(t, r.Utilization)
	assert.InDelta(t, 50.0, *r.Utilization, 0.0001)
	assert.Equal(t, StatusUnder, r.Status)
}

func TestAnalyzeExactAndOverSubscribed(t *testing.T) {
	t.Run("exactly matched", func(t *testing.T) {
		c := Correlate([]usage.Record{
			purchaseRecord("order-a", "Standard_D4s_v3", 100),
			consumptionRecord("order-a", "web-01", "Standard_D4s_v3", 24, 5),
		})
		r := Analyze("order-a", c.Consumption["order-a"], c.Visible)
		require.NotNil(t, r.Utilization)
		assert.InDelta(t, 100.0, *r.Utilization, 0.0001)
		assert.Equal(t, StatusExact, r.Status)
	})

	t.Run("over subscribed across resources", func(t *testing.T) {
		c := Correlate([]usage.Record{
			purchaseRecord("order-a", "Standard_D4s_v3", 100),
			consumptionRecord("order-a", "web-01", "Standard_D4s_v3", 24, 5),
			consumptionRecord("order-a", "web-02", "Standard_D4s_v3", 24, 5),
		})
		r := Analyze("order-a", c.Consumption["order-a"], c.Visible)
		assert.Equal(t, 8, r.CoresUsed)
		require.NotNil(t, r.Utilization)
		assert.InDelta(t, 200.0, *r.Utilization, 0.0001)
		assert.Equal(t, StatusOver, r.Status)
	})
}

func TestAnalyzeUnusedReservation(t *testing.T) {
	c := Correlate([]usage.Record{purchaseRecord("order-a", "Standard_D4s_v3", 100)})

	r := Analyze("order-a", nil, c.Visible)

	assert.Equal(t, StatusUnused, r.Status)
	assert.Nil(t, r.Utilization)
	assert.Equal(t, "100", r.Cost.String())
	assert.Empty(t, r.Resources)
}

func TestAnalyzeHiddenReservation(t *testing.T) {
	c := Correlate([]usage.Record{
		consumptionRecord("order-x", "web-01", "Standard_D4s_v3", 24, 5),
		consumptionRecord("order-x", "db-01", "Standard_D8s_v3", 12, 8),
	})

	r := Analyze("order-x", c.Consumption["order-x"], c.Visible)

	assert.True(t, r.Hidden)
	assert.Equal(t, "Unknown", r.Product)
	assert.True(t, r.Cost.IsZero())
	// Capacity reconstructed from the largest service type seen.
	assert.Equal(t, 8, r.ReservedCores)
	assert.True(t, r.CoresEstimated)
	assert.Equal(t, 12, r.CoresUsed)
	require.NotNil(t, r.Utilization)
	assert.InDelta(t, 150.0, *r.Utilization, 0.0001)
}

func TestAnalyzeZeroReservedCores(t *testing.T) {
	// E-series product carries no parsable core count; utilization must
	// stay undefined instead of dividing by zero.
	c := Correlate([]usage.Record{
		purchaseRecord("order-a", "Standard_E8s_v3", 100),
		consumptionRecord("order-a", "web-01", "Standard_E8s_v3", 24, 5),
	})
	r := Analyze("order-a", c.Consumption["order-a"], c.Visible)

	assert.Zero(t, r.ReservedCores)
	assert.Nil(t, r.Utilization)
	assert.Equal(t, StatusUnknown, r.Status)
}

func TestAnalyzeResourceAggregation(t *testing.T) {
	c := Correlate([]usage.Record{
		purchaseRecord("order-a", "Standard_D8s_v3", 200),
		consumptionRecord("order-a", "web-01", "Standard_D4s_v3", 10, 2),
		consumptionRecord("order-a", "web-01", "Standard_D4s_v3", 14, 3),
		consumptionRecord("order-a", "db-01", "Standard_D2s_v3", 24, 9),
	})
	r := Analyze("order-a", c.Consumption["order-a"], c.Visible)

	require.Len(t, r.Resources, 2)
	// Sorted by cost descending.
	assert.Equal(t, "db-01", r.Resources[0].Resource)
	assert.Equal(t, "web-01", r.Resources[1].Resource)

	web := r.Resources[1]
	assert.InDelta(t, 24.0, web.ConsumedHours, 0.0001)
	assert.Equal(t, "5", web.Cost.String())
	assert.Equal(t, []string{"Standard_D4s_v3"}, web.ServiceTypes)
	assert.Equal(t, 4, web.CoresUsed)

	assert.InDelta(t, 48.0, r.TotalConsumedHours, 0.0001)
	assert.Equal(t, "14", r.TotalConsumedCost.String())
	assert.Equal(t, 6, r.CoresUsed)
}

func TestAnalyzeAllFollowsOrderIDs(t *testing.T) {
	c := Correlate([]usage.Record{
		purchaseRecord("order-b", "Standard_D4s_v3", 100),
		consumptionRecord("order-a", "web-01", "Standard_D2s_v3", 24, 5),
	})
	reports := AnalyzeAll(c)
	require.Len(t, reports, 2)
	assert.Equal(t, "order-a", reports[0].OrderID)
	assert.True(t, reports[0].Hidden)
	assert.Equal(t, "order-b", reports[1].OrderID)
	assert.Equal(t, StatusUnused, reports[1].Status)
}

func TestGroupBySKU(t *testing.T) {
	c := Correlate([]usage.Record{
		purchaseRecord("order-a", "Standard_D4s_v3", 100),
		purchaseRecord("order-b", "Standard_D4s_v3", 100),
		consumptionRecord("order-a", "web-01", "Standard_D2s_v3", 24, 5),
	})
	reports := AnalyzeAll(c)

	groups := GroupBySKU(reports)
	require.Len(t, groups, 1)

	g := groups[0]
	assert.Equal(t, "Standard_D4s_v3", g.Family)
	assert.Equal(t, "EU West", g.Region)
	assert.Equal(t, []string{"order-a", "order-b"}, g.OrderIDs)
	assert.Equal(t, 8, g.ReservedCores)
	assert.Equal(t, 2, g.CoresUsed)
	require.NotNil(t, g.Efficiency)
	assert.InDelta(t, 25.0, *g.Efficiency, 0.0001)
	assert.Equal(t, GroupFlagConsolidate, g.Flag)
}

func TestGroupBySKUUpsizeFlag(t *testing.T) {
	c := Correlate([]usage.Record{
		purchaseRecord("order-a", "Standard_D4s_v3", 100),
		consumptionRecord("order-a", "web-01", "Standard_D4s_v3", 24, 5),
		consumptionRecord("order-a", "web-02", "Standard_D4s_v3", 24, 5),
	})
	groups := GroupBySKU(AnalyzeAll(c))
	require.Len(t, groups, 1)
	require.NotNil(t, groups[0].Efficiency)
	assert.InDelta(t, 200.0, *groups[0].Efficiency, 0.0001)
	assert.Equal(t, GroupFlagUpsize, groups[0].Flag)
}

func TestGroupBySKUHealthyGroupUnflagged(t *testing.T) {
	c := Correlate([]usage.Record{
		purchaseRecord("order-a", "Standard_D4s_v3", 100),
		consumptionRecord("order-a", "web-01", "Standard_D4s_v3", 24, 5),
	})
	groups := GroupBySKU(AnalyzeAll(c))
	require.Len(t, groups, 1)
	assert.Equal(t, GroupFlagNone, groups[0].Flag)
}

func TestGroupBySKUZeroCores(t *testing.T) {
	c := Correlate([]usage.Record{
		purchaseRecord("order-a", "Standard_E8s_v3", 100),
	})
	groups := GroupBySKU(AnalyzeAll(c))
	require.Len(t, groups, 1)
	assert.Nil(t, groups[0].Efficiency)
	assert.Equal(t, GroupFlagNone, groups[0].Flag)
}

func TestAnalyzeCostIsDecimalExact(t *testing.T) {
	c := Correlate([]usage.Record{
		purchaseRecord("order-a", "Standard_D4s_v3", 0.1),
		consumptionRecord("order-a", "web-01", "Standard_D4s_v3", 1, 0.2),
		consumptionRecord("order-a", "web-01", "Standard_D4s_v3", 1, 0.1),
	})
	r := Analyze("order-a", c.Consumption["order-a"], c.Visible)
	assert.True(t, r.TotalConsumedCost.Equal(decimal.NewFromFloat(0.3)))
}
