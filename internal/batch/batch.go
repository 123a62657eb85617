// Package batch defines the supply-chain records that are written to the ledger.
package batch

import (
	"fmt"
	"strings"
	"time"
)

// Stage is a step in the Ayurvedic supply chain.
type Stage string

const (
	StageFarming        Stage = "FARMING"
	StageHarvesting     Stage = "HARVESTING"
	StageProcessing     Stage = "PROCESSING"
	StageQualityTesting Stage = "QUALITY_TESTING"
	StagePackaging      Stage = "PACKAGING"
	StageDistribution   Stage = "DISTRIBUTION"
	StageRetail         Stage = "RETAIL"
)

// Stages lists every supply-chain stage in chain order.
var Stages = []Stage{
	StageFarming,
	StageHarvesting,
	StageProcessing,
	StageQualityTesting,
	StagePackaging,
	StageDistribution,
	StageRetail,
}

// Valid reports whether s is empty (no stage) or one of the known stages.
func (s Stage) Valid() bool {
	if s == "" {
		return true
	}
	for _, known := range Stages {
		if s == known {
			return true
		}
	}
	return false
}

// Label returns the stage in display form, e.g. "QUALITY TESTING".
func (s Stage) Label() string {
	return strings.ReplaceAll(string(s), "_", " ")
}

// Location is a geographic position with an optional free-text address.
type Location struct {
	Latitude  float64 `json:"latitude"            yaml:"latitude"`
	Longitude float64 `json:"longitude"           yaml:"longitude"`
	Address   string  `json:"address,omitempty"   yaml:"address,omitempty"`
}

// Record is a single batch submission. StageData is display-only and never validated.
type Record struct {
	ProductType string            `json:"productType"         yaml:"productType"`
	Quantity    float64           `json:"quantity"            yaml:"quantity"`
	BatchNumber string            `json:"batchNumber"         yaml:"batchNumber"`
	Timestamp   int64             `json:"timestamp"           yaml:"timestamp"` // epoch millis
	Location    *Location         `json:"location,omitempty"  yaml:"location,omitempty"`
	Stage       Stage             `json:"stage,omitempty"     yaml:"stage,omitempty"`
	StageData   map[string]string `json:"stageData,omitempty" yaml:"stageData,omitempty"`
}

// Time returns the record timestamp as a UTC time.
func (r *Record) Time() time.Time {
	return time.UnixMilli(r.Timestamp).UTC()
}

// TrailPoint is one hop in a product's journey.
type TrailPoint struct {
	Stage     Stage    `json:"stage"`
	Location  Location `json:"location"`
	Timestamp int64    `json:"timestamp"`
}

// BaseNumber returns the first three hyphen-delimited tokens of a batch number,
// so "AYU-2024-001-PROCESSING" becomes "AYU-2024-001". Shorter numbers are
// returned unchanged.
func BaseNumber(batchNumber string) string {
	parts := strings.Split(batchNumber, "-")
	if len(parts) <= 3 {
		return batchNumber
	}
	return strings.Join(parts[:3], "-")
}

// GenerateNumber builds a batch number of the form PREFIX-YYYY-NNN from the
// product type, the record time and a sequence number.
func GenerateNumber(productType string, at time.Time, seq int) string {
	prefix := strings.ToUpper(strings.Join(strings.Fields(productType), ""))
	var b strings.Builder
	for _, r := range prefix {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
		if b.Len() == 3 {
			break
		}
	}
	p := b.String()
	if p == "" {
		p = "AYU"
	}
	return fmt.Sprintf("%s-%d-%03d", p, at.UTC().Year(), seq)
}
