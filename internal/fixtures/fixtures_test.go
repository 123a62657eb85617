package fixtures_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmerrifield20/AyuTrack/internal/fixtures"
	"github.com/jmerrifield20/AyuTrack/internal/ledger"
	"github.com/jmerrifield20/AyuTrack/internal/qrpayload"
	"github.com/jmerrifield20/AyuTrack/internal/store"
)

func TestDefault_parses(t *testing.T) {
	set, err := fixtures.Default()
	require.NoError(t, err)
	require.Len(t, set.Batches, 2)
	assert.Equal(t, "ASH-2024-001", set.Batches[0].BatchNumber)
	assert.Equal(t, "TUR-2024-002", set.Batches[1].BatchNumber)

	recs := set.Records()
	require.Len(t, recs, 5)
	assert.Equal(t, "ASH-2024-001", recs[0].BatchNumber)
	assert.Equal(t, "ASH-2024-001-HARVESTING", recs[1].BatchNumber)
	assert.Nil(t, recs[0].Payload)
	assert.NotNil(t, recs[2].Payload)
}

func TestParse_rejectsIncompleteBatch(t *testing.T) {
	_, err := fixtures.Parse([]byte("batches:\n  - batchNumber: X-1\n    productType: Neem\n"))
	assert.Error(t, err)

	_, err = fixtures.Parse([]byte("batches: ["))
	assert.Error(t, err)
}

func TestSeeder_buildsValidChain(t *testing.T) {
	ctx := context.Background()
	set, err := fixtures.Default()
	require.NoError(t, err)

	l := ledger.New(store.NewMemory(), ledger.WithSeeder(set.Seeder()))
	require.NoError(t, l.Open(ctx))

	assert.Equal(t, 5, l.Len())
	assert.NoError(t, l.Verify(ctx))

	ash, ok := l.FindByBatchNumber("ASH-2024-001")
	require.True(t, ok)
	assert.Equal(t, "Ashwagandha Root Powder", ash.Record.ProductType)

	hist := l.HistoryFor("ASH-2024-001")
	require.Len(t, hist, 3)
	last := hist[len(hist)-1]
	assert.Len(t, last.LocationTrail, 3)
	assert.Equal(t, "Premium Grade A", last.ConsumerPayload.QualityGrade)
	assert.Equal(t, qrpayload.DefaultVerifyBaseURL+"/product/ASH-2024-001-PROCESSING", last.ConsumerPayload.VerificationURL)

	tur, ok := l.FindByBatchNumber("TUR-2024-002-QUALITY_TESTING")
	require.True(t, ok)
	assert.Equal(t, "Kozhikode, Kerala, India", tur.ConsumerPayload.Origin)
}

func TestSeeder_skippedForPopulatedStore(t *testing.T) {
	ctx := context.Background()
	set, err := fixtures.Default()
	require.NoError(t, err)

	st := store.NewMemory()
	first := ledger.New(st, ledger.WithSeeder(set.Seeder()))
	require.NoError(t, first.Open(ctx))

	second := ledger.New(st, ledger.WithSeeder(set.Seeder()))
	require.NoError(t, second.Open(ctx))
	assert.Equal(t, first.Len(), second.Len())
	assert.Equal(t, first.Root(), second.Root())
}
