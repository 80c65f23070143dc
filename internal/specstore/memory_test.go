package specstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/switchboard/internal/registry"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(
		registry.Record{ID: "b", Keywords: []string{"x"}},
		registry.Record{ID: "a"},
	)

	list, err := s.ListSpecialists(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.False(t, list[0].UpdatedAt.IsZero(), "Put stamps UpdatedAt")

	// Returned records are copies.
	list[1].Keywords[0] = "mutated"
	got, err := s.GetSpecialist(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"x"}, got.Keywords)

	s.Delete("b")
	got, err = s.GetSpecialist(ctx, "b")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_KeepsExplicitTimestamp(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewMemoryStore(registry.Record{ID: "a", UpdatedAt: ts})

	got, err := s.GetSpecialist(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, ts.Equal(got.UpdatedAt))
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ListSpecialists(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_DrivesRegistry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(registry.Record{ID: "sql", Domain: "technical", Keywords: []string{"sql"}})
	cache, err := registry.New(s)
	require.NoError(t, err)

	require.NoError(t, cache.Refresh(ctx, true))
	_, ok := cache.Get("sql")
	assert.True(t, ok)

	s.Put(registry.Record{ID: "sql", Role: "DBA", UpdatedAt: time.Now().Add(time.Hour)})
	require.NoError(t, cache.HotReload(ctx, "sql"))
	sp, _ := cache.Get("sql")
	assert.Equal(t, "DBA", sp.Role)
}
