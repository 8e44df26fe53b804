package favorites_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/storefront/pkg/favorites"
)

var kiwi = favorites.Entry{ProductID: "kiwi", Name: "Kiwi", UnitPrice: 0.8, ImageRef: "kiwi.png"}

func TestSet_Toggle(t *testing.T) {
	t.Parallel()

	t.Run("twice restores the original state", func(t *testing.T) {
		t.Parallel()

		s := favorites.New()
		_, err := s.Toggle(favorites.Entry{ProductID: "fig"})
		require.NoError(t, err)
		before := s.Entries()

		added, err := s.Toggle(kiwi)
		require.NoError(t, err)
		require.True(t, added)
		require.True(t, s.Has("kiwi"))
		require.Equal(t, 2, s.Len())

		added, err = s.Toggle(kiwi)
		require.NoError(t, err)
		require.False(t, added)
		require.Equal(t, before, s.Entries())
	})

	t.Run("never duplicates", func(t *testing.T) {
		t.Parallel()

		s := favorites.New()
		for range 5 {
			_, err := s.Toggle(kiwi)
			require.NoError(t, err)
		}
		require.Equal(t, []favorites.Entry{kiwi}, s.Entries())
	})

	t.Run("requires a product ID", func(t *testing.T) {
		t.Parallel()

		_, err := favorites.New().Toggle(favorites.Entry{Name: "nameless"})
		require.ErrorIs(t, err, favorites.ErrInvalidEntry)
	})
}

func TestSet_RemoveClear(t *testing.T) {
	t.Parallel()

	var versions []uint64
	s := favorites.New()
	s.OnChange(func(snap favorites.Snapshot) { versions = append(versions, snap.Version) })

	_, _ = s.Toggle(kiwi)
	_, _ = s.Toggle(favorites.Entry{ProductID: "lime"})

	s.Remove("kiwi")
	s.Remove("kiwi")
	require.False(t, s.Has("kiwi"))
	require.Equal(t, 1, s.Len())

	s.Clear()
	s.Clear()
	require.Zero(t, s.Len())
	require.Equal(t, []uint64{1, 2, 3, 4}, versions)
}

func TestSet_Restore(t *testing.T) {
	t.Parallel()

	s := favorites.New()
	s.Restore(favorites.Snapshot{Entries: []favorites.Entry{kiwi, {}, kiwi, {ProductID: "lime"}}})

	require.Equal(t, 2, s.Len())
	require.True(t, s.Has("lime"))
	require.Equal(t, "kiwi", s.Entries()[0].ProductID)
}

func TestSet_ConcurrentToggle(t *testing.T) {
	t.Parallel()

	s := favorites.New()
	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			_, _ = s.Toggle(kiwi)
		})
	}
	wg.Wait()

	// An even number of toggles cancels out.
	require.False(t, s.Has("kiwi"))
	require.Zero(t, s.Len())
}
