//go:build integration

package loader

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"phones/internal/phone/models"
	"phones/pkg/testutil/containers"
)

func TestLoaderWithRedisCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	rc := containers.NewRedisContainer(t)
	t.Cleanup(func() { rc.Terminate(context.Background()) })

	ctx := context.Background()

	t.Run("second load is served from cache", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		want := view("+79261234567")
		f := newFakeFetcher(want)
		l := New(f, WithCache(rc.Client, time.Minute))

		for i := 0; i < 3; i++ {
			got, found, err := l.Load(ctx, want.ID)
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, want.ID, got.ID)
		}
		require.Equal(t, 1, f.calls)
	})

	t.Run("clear forces a refetch", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		want := view("+79261234567")
		f := newFakeFetcher(want)
		l := New(f, WithCache(rc.Client, time.Minute))

		_, _, err := l.Load(ctx, want.ID)
		require.NoError(t, err)
		l.Clear(ctx, want.ID)
		_, _, err = l.Load(ctx, want.ID)
		require.NoError(t, err)
		require.Equal(t, 2, f.calls)
	})

	t.Run("primed views never hit the fetcher", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		a, b := view("+79260000001"), view("+79260000002")
		f := newFakeFetcher(a, b)
		l := New(f, WithCache(rc.Client, time.Minute))

		l.PrimeMany(ctx, []models.PhoneView{a, b})

		got, err := l.LoadMany(ctx, []uuid.UUID{a.ID, b.ID})
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Zero(t, f.calls)
	})

	t.Run("expired entries fall through", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		want := view("+79261234567")
		f := newFakeFetcher(want)
		l := New(f, WithCache(rc.Client, 50*time.Millisecond))

		_, _, err := l.Load(ctx, want.ID)
		require.NoError(t, err)
		time.Sleep(100 * time.Millisecond)
		_, _, err = l.Load(ctx, want.ID)
		require.NoError(t, err)
		require.Equal(t, 2, f.calls)
	})
}
