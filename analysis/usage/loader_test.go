package usage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleEnvelope = `{
	"value": [
		{
			"properties": {
				"instanceName": "/subscriptions/s/resourceGroups/rg/providers/Microsoft.Compute/virtualMachines/web-01",
				"meterCategory": "Virtual Machines",
				"consumedService": "Microsoft.Compute",
				"unitOfMeasure": "1 Hour",
				"chargeType": "Usage",
				"quantity": 24,
				"costInBillingCurrency": 5.76,
				"effectivePrice": 0.24,
				"payGPrice": "0.48",
				"date": "2026-06-15"
			}
		},
		{
			"properties": {
				"instanceName": "/providers/Microsoft.Capacity/reservationOrders/order-1",
				"meterCategory": "Virtual Machines",
				"chargeType": "Purchase",
				"product": "Standard_D4s_v3",
				"quantity": "1",
				"costInBillingCurrency": "120.00",
				"payGPrice": null,
				"servicePeriodStartDate": "2026-06-01T00:00:00Z"
			}
		}
	]
}`

func TestLoad(t *testing.T) {
	records, err := Load(strings.NewReader(sampleEnvelope))
	require.NoError(t, err)
	require.Len(t, records, 2)

	vm := records[0]
	assert.Equal(t, "web-01", vm.ShortName())
	assert.Equal(t, ChargeTypeUsage, vm.ChargeType)
	assert.InDelta(t, 24.0, vm.Quantity, 0.0001)
	assert.Equal(t, "5.76", vm.Cost.String())
	require.NotNil(t, vm.PayGPrice)
	assert.Equal(t, "0.48", vm.PayGPrice.String())

	purchase := records[1]
	assert.Equal(t, ChargeTypePurchase, purchase.ChargeType)
	assert.Equal(t, "120", purchase.Cost.String())
	assert.InDelta(t, 1.0, purchase.Quantity, 0.0001)
	assert.Nil(t, purchase.PayGPrice, "null payGPrice stays absent")
}

func TestLoadBareArray(t *testing.T) {
	doc := `[{"properties": {"instanceName": "vm-1", "quantity": 2}}]`
	records, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "vm-1", records[0].ShortName())
}

func TestLoadInvalidDocument(t *testing.T) {
	_, err := Load(strings.NewReader(`{"value": `))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode usage document")
}

func TestLoadEmptyEnvelope(t *testing.T) {
	records, err := Load(strings.NewReader(`{"value": []}`))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLoadGarbageNumericFields(t *testing.T) {
	doc := `{"value": [{"properties": {"instanceName": "vm-1", "quantity": "n/a", "costInBillingCurrency": ""}}]}`
	records, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Zero(t, records[0].Quantity)
	assert.True(t, records[0].Cost.IsZero())
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "usage_june.json"), []byte(sampleEnvelope), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "usage_july.json"), []byte(`{"value": []}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644))

	records, err := LoadDir(dir, `^usage_.*\.json$`)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestLoadDirNoMatches(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadDir(dir, `^usage_.*\.json$`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files matching")
}

func TestLoadDirBadPattern(t *testing.T) {
	_, err := LoadDir(t.TempDir(), `([`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid file pattern")
}
