package loader

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"phones/internal/phone/models"
)

// fakeFetcher serves views from a map and counts batched calls.
type fakeFetcher struct {
	mu    sync.Mutex
	views map[uuid.UUID]models.PhoneView
	calls int
	err   error
}

func newFakeFetcher(views ...models.PhoneView) *fakeFetcher {
	f := &fakeFetcher{views: make(map[uuid.UUID]models.PhoneView, len(views))}
	for _, v := range views {
		f.views[v.ID] = v
	}
	return f
}

func (f *fakeFetcher) GetByIDs(_ context.Context, ids []uuid.UUID) ([]models.PhoneView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.PhoneView, 0, len(ids))
	for _, id := range ids {
		if v, ok := f.views[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func view(number string) models.PhoneView {
	return models.PhoneView{Phone: models.Phone{ID: uuid.New(), Number: number}}
}

func TestLoadReturnsStoredView(t *testing.T) {
	want := view("+79261234567")
	l := New(newFakeFetcher(want))

	got, found, err := l.Load(context.Background(), want.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, want.Number, got.Number)
}

func TestLoadReportsAbsence(t *testing.T) {
	l := New(newFakeFetcher())

	_, found, err := l.Load(context.Background(), uuid.New())
	require.NoError(t, err)
	require.False(t, found)
}

func TestLoadPropagatesFetchError(t *testing.T) {
	f := newFakeFetcher()
	f.err = errors.New("store down")
	l := New(f)

	_, _, err := l.Load(context.Background(), uuid.New())
	require.Error(t, err)
}

func TestLoadManyKeepsRequestedOrder(t *testing.T) {
	a, b, c := view("+79260000001"), view("+79260000002"), view("+79260000003")
	l := New(newFakeFetcher(a, b, c))

	got, err := l.LoadMany(context.Background(), []uuid.UUID{c.ID, a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, c.ID, got[0].ID)
	require.Equal(t, a.ID, got[1].ID)
	require.Equal(t, b.ID, got[2].ID)
}

func TestLoadManyDeduplicatesAndBatches(t *testing.T) {
	a := view("+79260000001")
	f := newFakeFetcher(a)
	l := New(f)

	got, err := l.LoadMany(context.Background(), []uuid.UUID{a.ID, a.ID, a.ID})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, 1, f.calls)
}

func TestLoadManySkipsAbsentIDs(t *testing.T) {
	a := view("+79260000001")
	l := New(newFakeFetcher(a))

	got, err := l.LoadMany(context.Background(), []uuid.UUID{uuid.New(), a.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, a.ID, got[0].ID)
}

func TestLoadManyEmptyInput(t *testing.T) {
	f := newFakeFetcher()
	l := New(f)

	got, err := l.LoadMany(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Zero(t, f.calls)
}

func TestClearWithoutCacheIsNoOp(t *testing.T) {
	l := New(newFakeFetcher())
	l.Clear(context.Background(), uuid.New())
}
