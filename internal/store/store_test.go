package store_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmerrifield20/AyuTrack/internal/batch"
	"github.com/jmerrifield20/AyuTrack/internal/ledger"
	"github.com/jmerrifield20/AyuTrack/internal/store"
)

var ctx = context.Background()

// chain builds n linked entries through a scratch ledger.
func chain(t *testing.T, n int) []ledger.Entry {
	t.Helper()
	l := ledger.New(store.NewMemory())
	key := ""
	for i := 0; i < n; i++ {
		e, err := l.Append(ctx, batch.Record{
			ProductType: "Ashwagandha",
			Quantity:    float64(10 * (i + 1)),
			BatchNumber: fmt.Sprintf("ASH-2024-%03d", i+1),
			Timestamp:   int64(1_700_000_000_000 + i),
		}, key)
		require.NoError(t, err)
		key = e.NextKey
	}
	return l.Entries()
}

func hashes(entries []ledger.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Hash
	}
	return out
}

func TestMarshal_roundTrip(t *testing.T) {
	entries := chain(t, 2)
	b, err := store.Marshal(entries)
	require.NoError(t, err)

	got, err := store.Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, hashes(entries), hashes(got))
	assert.Equal(t, entries[1].NextKey, got[1].NextKey)
}

func TestUnmarshal_emptyAndBadVersion(t *testing.T) {
	got, err := store.Unmarshal(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)

	_, err = store.Unmarshal([]byte(`{"version":99,"entries":[]}`))
	assert.Error(t, err)

	_, err = store.Unmarshal([]byte(`not json`))
	assert.Error(t, err)
}

func TestMemory(t *testing.T) {
	m := store.NewMemory()
	got, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	entries := chain(t, 3)
	require.NoError(t, m.Save(ctx, entries))

	entries[0].Record.Quantity = -1
	got, err = m.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, float64(10), got[0].Record.Quantity, "store must not alias caller slices")
}

func TestFile_persistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.json")

	got, err := store.NewFile(path).Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	entries := chain(t, 2)
	require.NoError(t, store.NewFile(path).Save(ctx, entries))

	got, err = store.NewFile(path).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, hashes(entries), hashes(got))

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".ledger-*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temp files must be cleaned up")
}

func TestFile_corruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	_, err := store.NewFile(path).Load(ctx)
	assert.Error(t, err)
}

func TestLedgerOpen_fromFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	entries := chain(t, 3)
	require.NoError(t, store.NewFile(path).Save(ctx, entries))

	l := ledger.New(store.NewFile(path))
	require.NoError(t, l.Open(ctx))
	assert.Equal(t, 3, l.Len())
	assert.NoError(t, l.Verify(ctx))
}

func TestLedgerOpen_rejectsTamperedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	entries := chain(t, 2)
	entries[1].Record.ProductType = "Brahmi"
	require.NoError(t, store.NewFile(path).Save(ctx, entries))

	l := ledger.New(store.NewFile(path))
	err := l.Open(ctx)
	assert.ErrorIs(t, err, ledger.ErrChainBroken)
}

func TestSQLite_roundTripAndReplace(t *testing.T) {
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	entries := chain(t, 3)
	require.NoError(t, s.Save(ctx, entries[:2]))
	require.NoError(t, s.Save(ctx, entries))

	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, hashes(entries), hashes(got))

	// Save never rewrites committed rows.
	other := chain(t, 1)
	other[0].Hash = strings.Repeat("ab", 32)
	assert.ErrorIs(t, s.Save(ctx, other), store.ErrDiverged)
	assert.ErrorIs(t, s.Save(ctx, entries[:1]), store.ErrDiverged)
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, hashes(entries), hashes(got))

	// Replace swaps the whole sequence.
	require.NoError(t, s.Replace(ctx, other))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, other[0].Hash, got[0].Hash)
}

func TestSQLite_staleLedgerCannotOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	openLedger := func() *ledger.Ledger {
		s, err := store.OpenSQLite(path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		l := ledger.New(s)
		require.NoError(t, l.Open(ctx))
		return l
	}
	rec := func(number string) batch.Record {
		return batch.Record{ProductType: "Ashwagandha", Quantity: 10, BatchNumber: number, Timestamp: 1_700_000_000_000}
	}

	a := openLedger()
	genesis, err := a.Append(ctx, rec("AYU-2024-001"), "")
	require.NoError(t, err)

	b := openLedger()
	require.Equal(t, 1, b.Len())

	committed, err := a.Append(ctx, rec("AYU-2024-002"), genesis.NextKey)
	require.NoError(t, err)

	_, err = b.Append(ctx, rec("AYU-2024-003"), genesis.NextKey)
	assert.ErrorIs(t, err, ledger.ErrPersistence)
	assert.ErrorIs(t, err, store.ErrDiverged)
	assert.Equal(t, 1, b.Len(), "a refused append must not reach memory")

	fresh := openLedger()
	require.Equal(t, 2, fresh.Len())
	e, ok := fresh.FindByHash(committed.Hash)
	require.True(t, ok)
	assert.Equal(t, "AYU-2024-002", e.Record.BatchNumber)
}

func TestLedgerImport_replacesSQLiteRows(t *testing.T) {
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	l := ledger.New(s)
	_, err = l.Append(ctx, batch.Record{ProductType: "Tulsi", Quantity: 1, BatchNumber: "TUL-2024-001", Timestamp: 1}, "")
	require.NoError(t, err)

	imported := chain(t, 2)
	require.NoError(t, l.Import(ctx, imported))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, hashes(imported), hashes(got))
}

func TestSQLite_insertFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS ledger_entries")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := store.NewSQLite(db)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT hash FROM ledger_entries")).
		WillReturnRows(sqlmock.NewRows([]string{"hash"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = s.Save(ctx, chain(t, 1))
	assert.ErrorContains(t, err, "insert ledger entry 0")
	assert.NoError(t, mock.ExpectationsWereMet())
}

type fakeS3 struct {
	objects map[string][]byte
	putErr  error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

func TestS3(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	s := store.NewS3(fake, "ayutrack", "")

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	entries := chain(t, 2)
	require.NoError(t, s.Save(ctx, entries))
	assert.Contains(t, fake.objects, "ayutrack/ledger.json")

	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, hashes(entries), hashes(got))

	fake.putErr = errors.New("throttled")
	assert.Error(t, s.Save(ctx, entries))
}

func TestOpen_drivers(t *testing.T) {
	st, closer, err := store.Open(ctx, store.Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &store.Memory{}, st)
	assert.NoError(t, closer.Close())

	st, closer, err = store.Open(ctx, store.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "l.db")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &store.SQLite{}, st)
	assert.NoError(t, closer.Close())

	_, _, err = store.Open(ctx, store.Config{Driver: "file"}, nil)
	assert.Error(t, err)

	_, _, err = store.Open(ctx, store.Config{Driver: "etcd"}, nil)
	assert.ErrorContains(t, err, "unknown store driver")
}
