package usage

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
)

// =============================================================================
// RAW EXPORT STRUCTURES
// =============================================================================

// rawEnvelope is the Microsoft.Consumption usageDetails response shape:
// a value array plus an optional nextLink for pagination. Exports saved
// from paginated fetches concatenate the value arrays.
type rawEnvelope struct {
	Value    []rawRecord `json:"value"`
	NextLink string      `json:"nextLink"`
}

type rawRecord struct {
	Properties rawProperties `json:"properties"`
}

type rawProperties struct {
	InstanceName     string `json:"instanceName"`
	MeterCategory    string `json:"meterCategory"`
	MeterSubCategory string `json:"meterSubCategory"`
	MeterName        string `json:"meterName"`
	MeterRegion      string `json:"meterRegion"`
	UnitOfMeasure    string `json:"unitOfMeasure"`
	ConsumedService  string `json:"consumedService"`
	ChargeType       string `json:"chargeType"`
	Product          string `json:"product"`

	Quantity              flexNumber `json:"quantity"`
	CostInBillingCurrency flexNumber `json:"costInBillingCurrency"`
	EffectivePrice        flexNumber `json:"effectivePrice"`
	PayGPrice             flexNumber `json:"payGPrice"`

	AdditionalInfo string `json:"additionalInfo"`

	Date                   string `json:"date"`
	UsageStart             string `json:"usageStart"`
	UsageEnd               string `json:"usageEnd"`
	ServicePeriodStartDate string `json:"servicePeriodStartDate"`
	ServicePeriodEndDate   string `json:"servicePeriodEndDate"`
}

// =============================================================================
// LOADING
// =============================================================================

// Load decodes a usage-details document from a reader. Both the
// {"value": [...]} envelope and a bare record array are accepted. An
// unparseable document is fatal for the run; no partial result is returned.
func Load(r io.Reader) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage document: %w", err)
	}
	return parseDocument(data)
}

// LoadFile loads a usage-details JSON file.
func LoadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage file: %w", err)
	}
	defer f.Close()
	records, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// LoadDir loads every file in dir whose base name matches pattern and
// concatenates the records in file-name order.
func LoadDir(dir, pattern string) ([]Record, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid file pattern %q: %w", pattern, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var records []Record
	matched := 0
	for _, entry := range entries {
		if entry.IsDir() || !re.MatchString(entry.Name()) {
			continue
		}
		matched++
		fileRecords, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		slog.Debug("loaded usage file", "file", entry.Name(), "records", len(fileRecords))
		records = append(records, fileRecords...)
	}
	if matched == 0 {
		return nil, fmt.Errorf("no files matching %q in %s", pattern, dir)
	}
	return records, nil
}

func parseDocument(data []byte) ([]Record, error) {
	var envelope rawEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		// Some exports are saved as a bare array of records.
		var list []rawRecord
		if listErr := json.Unmarshal(data, &list); listErr != nil {
			return nil, fmt.Errorf("failed to decode usage document: %w", err)
		}
		envelope.Value = list
	}

	records := make([]Record, 0, len(envelope.Value))
	for _, raw := range envelope.Value {
		records = append(records, transform(raw.Properties))
	}
	return records, nil
}

// transform normalizes a raw export record into the typed domain model.
func transform(p rawProperties) Record {
	return Record{
		InstanceName:     p.InstanceName,
		MeterCategory:    p.MeterCategory,
		MeterSubCategory: p.MeterSubCategory,
		MeterName:        p.MeterName,
		MeterRegion:      p.MeterRegion,
		UnitOfMeasure:    p.UnitOfMeasure,
		ConsumedService:  p.ConsumedService,
		ChargeType:       ChargeType(p.ChargeType),
		Product:          p.Product,

		Quantity:       p.Quantity.float(),
		Cost:           p.CostInBillingCurrency.decimal(),
		EffectivePrice: p.EffectivePrice.decimal(),
		PayGPrice:      p.PayGPrice.decimalPtr(),

		AdditionalInfo: p.AdditionalInfo,

		Date:               p.Date,
		UsageStart:         p.UsageStart,
		UsageEnd:           p.UsageEnd,
		ServicePeriodStart: p.ServicePeriodStartDate,
		ServicePeriodEnd:   p.ServicePeriodEndDate,
	}
}
