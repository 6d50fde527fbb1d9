package claim

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/catalog-ingest/ingest-service/pkg/digest"
	"github.com/catalog-ingest/ingest-service/pkg/record"
	"github.com/catalog-ingest/ingest-service/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skuRow(t *testing.T, skuLong string) record.Row {
	return record.SkuProduct.RowFromMap(map[string]string{
		"skuLong":   skuLong,
		"skuShort":  "bravo",
		"productID": "charlie",
		"store":     "kilo",
	})
}

func TestProtocol(t *testing.T) {
	for scenario, fn := range map[string]func(
		t *testing.T, s *store.MemoryStore, p *Protocol,
	){
		"first claim wins":                           testFirstClaimWins,
		"two workers on the same row":                testTwoWorkers,
		"concurrent claims yield exactly one winner": testConcurrentClaims,
		"stale version loses the lock":               testFencing,
		"completed records stay completed":           testMonotonicProgress,
		"release makes a stuck record claimable":     testRelease,
		"complete of an unknown record":              testCompleteUnknown,
		"lambda request id is recorded":              testRequesterFromLambdaContext,
	} {
		t.Run(scenario, func(t *testing.T) {
			s := store.NewMemoryStore()
			fn(t, s, NewProtocol(s))
		})
	}
}

func testFirstClaimWins(t *testing.T, s *store.MemoryStore, p *Protocol) {
	ctx := context.Background()
	row := skuRow(t, "alpha")

	outcome, err := p.TryClaim(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, Claimed, outcome.Status)
	assert.Equal(t, digest.OfRow(row), outcome.ID)
	assert.NotEmpty(t, outcome.Version)

	r, found, err := p.Status(ctx, outcome.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, record.InProgress, r.Progress)
	assert.Equal(t, row.String(), r.Payload)
	assert.Equal(t, outcome.Version, r.Version)
}

func testTwoWorkers(t *testing.T, s *store.MemoryStore, p *Protocol) {
	ctx := context.Background()
	other := NewProtocol(s)

	first, err := p.TryClaim(ctx, skuRow(t, "alpha"))
	require.NoError(t, err)
	second, err := other.TryClaim(ctx, skuRow(t, "alpha"))
	require.NoError(t, err)

	assert.Equal(t, Claimed, first.Status)
	assert.Equal(t, AlreadyHandled, second.Status)
	assert.Equal(t, first.ID, second.ID)
	assert.Empty(t, second.Version)
}

func testConcurrentClaims(t *testing.T, s *store.MemoryStore, p *Protocol) {
	const workers = 50
	row := skuRow(t, "alpha")

	var wg sync.WaitGroup
	outcomes := make(chan ClaimOutcome, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := NewProtocol(s).TryClaim(context.Background(), row)
			assert.NoError(t, err)
			outcomes <- o
		}()
	}
	wg.Wait()
	close(outcomes)

	claimed := 0
	for o := range outcomes {
		if o.Status == Claimed {
			claimed++
		}
	}
	assert.Equal(t, 1, claimed)
	assert.Equal(t, 1, s.Len())
}

func testFencing(t *testing.T, s *store.MemoryStore, p *Protocol) {
	ctx := context.Background()
	row := skuRow(t, "alpha")

	stale, err := p.TryClaim(ctx, row)
	require.NoError(t, err)

	released, err := p.Release(ctx, stale.ID, stale.Version)
	require.NoError(t, err)
	require.True(t, released)

	current, err := p.TryClaim(ctx, row)
	require.NoError(t, err)
	require.Equal(t, Claimed, current.Status)
	assert.NotEqual(t, stale.Version, current.Version)

	outcome, err := p.Complete(ctx, stale.ID, stale.Version)
	require.NoError(t, err)
	assert.Equal(t, LockLost, outcome)

	r, _, err := p.Status(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, record.InProgress, r.Progress, "a stale token must not change the record")

	outcome, err = p.Complete(ctx, current.ID, current.Version)
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
}

func testMonotonicProgress(t *testing.T, s *store.MemoryStore, p *Protocol) {
	ctx := context.Background()
	row := skuRow(t, "alpha")

	claimed, err := p.TryClaim(ctx, row)
	require.NoError(t, err)
	outcome, err := p.Complete(ctx, claimed.ID, claimed.Version)
	require.NoError(t, err)
	require.Equal(t, Completed, outcome)

	again, err := p.TryClaim(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, AlreadyHandled, again.Status)

	released, err := p.Release(ctx, claimed.ID, claimed.Version)
	require.NoError(t, err)
	assert.False(t, released, "completed records cannot be released")

	r, _, err := p.Status(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, record.Completed, r.Progress)
	assert.Equal(t, claimed.Version, r.Version)
}

func testRelease(t *testing.T, s *store.MemoryStore, p *Protocol) {
	ctx := context.Background()
	row := skuRow(t, "alpha")

	claimed, err := p.TryClaim(ctx, row)
	require.NoError(t, err)

	released, err := p.Release(ctx, claimed.ID, "not-the-version")
	require.NoError(t, err)
	assert.False(t, released)

	released, err = p.Release(ctx, claimed.ID, claimed.Version)
	require.NoError(t, err)
	assert.True(t, released)

	r, _, err := p.Status(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, record.Released, r.Progress)

	reclaimed, err := p.TryClaim(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, Claimed, reclaimed.Status)
}

func testCompleteUnknown(t *testing.T, s *store.MemoryStore, p *Protocol) {
	outcome, err := p.Complete(context.Background(), "missing", "v1")
	require.NoError(t, err)
	assert.Equal(t, LockLost, outcome)
}

func testRequesterFromLambdaContext(t *testing.T, s *store.MemoryStore, p *Protocol) {
	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "req-1"})

	claimed, err := p.TryClaim(ctx, skuRow(t, "alpha"))
	require.NoError(t, err)

	r, _, err := p.Status(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"req-1"}, r.ModifiedBy)
}

type failingStore struct {
	store.RecordStore
	err error
}

func (f failingStore) ConditionalUpsert(ctx context.Context, in store.UpsertInput) (record.Record, bool, error) {
	return record.Record{}, false, f.err
}

func TestTryClaimStoreFailure(t *testing.T) {
	boom := errors.New("connection reset")
	p := NewProtocol(failingStore{err: boom})

	_, err := p.TryClaim(context.Background(), skuRow(t, "alpha"))
	assert.ErrorIs(t, err, boom)
}
