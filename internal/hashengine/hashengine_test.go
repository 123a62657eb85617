package hashengine_test

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/jmerrifield20/AyuTrack/internal/batch"
	"github.com/jmerrifield20/AyuTrack/internal/hashengine"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func sampleRecord() batch.Record {
	return batch.Record{
		ProductType: "Turmeric",
		Quantity:    100,
		BatchNumber: "AYU-2024-001",
		Timestamp:   1_704_067_200_000,
		Location:    &batch.Location{Latitude: 12.9716, Longitude: 77.5946},
		Stage:       batch.StageFarming,
		StageData:   map[string]string{"farmer": "R. Nair", "soil": "laterite"},
	}
}

func TestDigest_knownVector(t *testing.T) {
	got := hashengine.DigestString("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("Digest(abc) = %q, want %q", got, want)
	}
	if len(got) != hashengine.HexLen {
		t.Errorf("digest length %d, want %d", len(got), hashengine.HexLen)
	}
}

func TestCanonicalize_deterministic(t *testing.T) {
	r := sampleRecord()
	a, err := hashengine.Canonicalize(r, "", r.Stage, r.StageData)
	if err != nil {
		t.Fatal(err)
	}
	b, err := hashengine.Canonicalize(r, "", r.Stage, r.StageData)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Errorf("canonical forms differ:\n%s\n%s", a, b)
	}
}

func TestCanonicalize_mapOrderIndependent(t *testing.T) {
	r1 := sampleRecord()
	r2 := sampleRecord()
	r2.StageData = map[string]string{}
	r2.StageData["soil"] = "laterite"
	r2.StageData["farmer"] = "R. Nair"

	h1, _ := hashengine.EntryHash(r1, "")
	h2, _ := hashengine.EntryHash(r2, "")
	if h1 != h2 {
		t.Errorf("hash depends on map insertion order: %s != %s", h1, h2)
	}
}

func TestCanonicalize_previousHashChangesDigest(t *testing.T) {
	r := sampleRecord()
	h1, _ := hashengine.EntryHash(r, "")
	h2, _ := hashengine.EntryHash(r, strings.Repeat("a", 64))
	if h1 == h2 {
		t.Error("previous hash must be part of the canonical form")
	}
}

func TestCanonicalize_emptyPreviousIsZero(t *testing.T) {
	r := sampleRecord()
	b, err := hashengine.Canonicalize(r, "", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"previousHash":"0"`) {
		t.Errorf("expected genesis previous hash marker in %s", b)
	}
}

func TestCanonicalize_rejectsNaN(t *testing.T) {
	r := sampleRecord()
	r.Quantity = math.NaN()
	if _, err := hashengine.Canonicalize(r, "", "", nil); !errors.Is(err, hashengine.ErrNonFinite) {
		t.Errorf("expected ErrNonFinite, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	data := []byte("batch")
	h := hashengine.Digest(data)
	if !hashengine.Validate(data, h) {
		t.Error("Validate should accept matching digest")
	}
	if !hashengine.Validate(data, strings.ToUpper(h)) {
		t.Error("Validate should ignore hex case")
	}
	if hashengine.Validate([]byte("other"), h) {
		t.Error("Validate should reject mismatching data")
	}
}

func TestIsHex64(t *testing.T) {
	if !hashengine.IsHex64(strings.Repeat("aB", 32)) {
		t.Error("mixed-case hex should pass")
	}
	if hashengine.IsHex64(strings.Repeat("a", 63)) {
		t.Error("63 chars should fail")
	}
	if hashengine.IsHex64(strings.Repeat("g", 64)) {
		t.Error("non-hex should fail")
	}
}

func TestTransactionHash_unique(t *testing.T) {
	a, err := hashengine.TransactionHash("farmer", "lab", "AYU-2024-001", 1, hashengine.EventTransfer)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := hashengine.TransactionHash("farmer", "lab", "AYU-2024-001", 1, hashengine.EventTransfer)
	if a == b {
		t.Error("transaction hashes should differ by nonce")
	}
}

func TestEntryHash_deterministicProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("EntryHash is stable for identical input", prop.ForAll(
		func(product, number string, qty float64, ts int64) bool {
			r := batch.Record{ProductType: product, BatchNumber: number, Quantity: qty, Timestamp: ts}
			h1, err1 := hashengine.EntryHash(r, "")
			h2, err2 := hashengine.EntryHash(r, "")
			if err1 != nil || err2 != nil {
				return false
			}
			return h1 == h2 && hashengine.IsHex64(h1)
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.Float64Range(0, 1e6),
		gen.Int64Range(0, 4_102_444_800_000),
	))

	properties.TestingRun(t)
}
