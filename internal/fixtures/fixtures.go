// Package fixtures loads the demo batches that ship with ayutrackd and writes
// them to a ledger as real, chained entries.
package fixtures

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jmerrifield20/AyuTrack/internal/batch"
	"github.com/jmerrifield20/AyuTrack/internal/ledger"
	"github.com/jmerrifield20/AyuTrack/internal/qrpayload"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

// Stage is one step of a fixture batch.
type Stage struct {
	Stage     batch.Stage       `yaml:"stage"`
	Timestamp int64             `yaml:"timestamp"`
	Location  *batch.Location   `yaml:"location,omitempty"`
	StageData map[string]string `yaml:"stageData,omitempty"`
}

// Batch is a fixture product with its stage history.
type Batch struct {
	BatchNumber string               `yaml:"batchNumber"`
	ProductType string               `yaml:"productType"`
	Quantity    float64              `yaml:"quantity"`
	Stages      []Stage              `yaml:"stages"`
	Payload     *qrpayload.Overrides `yaml:"payload,omitempty"`
}

// Set is a fixture file.
type Set struct {
	Batches []Batch `yaml:"batches"`
}

// Default returns the embedded fixture set.
func Default() (*Set, error) {
	return Parse(defaultFixtures)
}

// Load reads a fixture set from path.
func Load(path string) (*Set, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return Parse(b)
}

// Parse decodes and checks a fixture document.
func Parse(b []byte) (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	for _, fb := range s.Batches {
		if fb.BatchNumber == "" || fb.ProductType == "" {
			return nil, fmt.Errorf("fixture batch needs batchNumber and productType")
		}
		if len(fb.Stages) == 0 {
			return nil, fmt.Errorf("fixture batch %s has no stages", fb.BatchNumber)
		}
	}
	return &s, nil
}

// Records expands the set into the records to append, in order. The first
// stage of a batch uses the bare batch number; later stages append the stage
// name so that history lookups group them by base number.
func (s *Set) Records() []Record {
	var out []Record
	for _, fb := range s.Batches {
		for i, st := range fb.Stages {
			number := fb.BatchNumber
			if i > 0 && st.Stage != "" {
				number = fb.BatchNumber + "-" + string(st.Stage)
			}
			r := Record{Record: batch.Record{
				ProductType: fb.ProductType,
				Quantity:    fb.Quantity,
				BatchNumber: number,
				Timestamp:   st.Timestamp,
				Location:    st.Location,
				Stage:       st.Stage,
				StageData:   st.StageData,
			}}
			if i == len(fb.Stages)-1 {
				r.Payload = fb.Payload
			}
			out = append(out, r)
		}
	}
	return out
}

// Record is one fixture append.
type Record struct {
	batch.Record
	Payload *qrpayload.Overrides
}

// Seeder returns a ledger.Seeder that appends every record of s, chaining
// each append with the key minted by the one before.
func (s *Set) Seeder() ledger.Seeder {
	return func(ctx context.Context, l *ledger.Ledger) error {
		key := ""
		if n := l.Len(); n > 0 {
			tail, err := l.Get(n - 1)
			if err != nil {
				return err
			}
			key = tail.NextKey
		}
		for _, r := range s.Records() {
			e, err := l.Append(ctx, r.Record, key, ledger.WithPayloadOverrides(r.Payload))
			if err != nil {
				return fmt.Errorf("seed %s: %w", r.BatchNumber, err)
			}
			key = e.NextKey
		}
		return nil
	}
}
