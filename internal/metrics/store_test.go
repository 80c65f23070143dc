package metrics

import (
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/switchboard/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResources() []Resource {
	return []Resource{
		{Name: "fast", CostPerUnit: 1, BaselineQuality: 0.7, BaselineLatency: time.Second, Tier: TierLightweight},
		{Name: "deep", CostPerUnit: 2, BaselineQuality: 0.95, BaselineLatency: 8 * time.Second, Tier: TierHeavyweight, Expertise: []string{" Technical "}},
	}
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(testResources(), 10)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Len())
	res := s.Resources()
	assert.Equal(t, "fast", res[0].Name)
	assert.Equal(t, "deep", res[1].Name)
	assert.Equal(t, []string{"technical"}, res[1].Expertise)
	assert.True(t, res[1].HasExpertise("TECHNICAL"))
}

func TestNewStore_Errors(t *testing.T) {
	_, err := NewStore([]Resource{{Name: "a"}, {Name: "a"}}, 10)
	assert.ErrorIs(t, err, ErrDuplicateResource)

	_, err = NewStore([]Resource{{Name: "  "}}, 10)
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestNewStore_ClampsCost(t *testing.T) {
	s, err := NewStore([]Resource{{Name: "free", CostPerUnit: 0}}, 0)
	require.NoError(t, err)

	r, ok := s.Resource("free")
	require.True(t, ok)
	assert.Equal(t, minCostPerUnit, r.CostPerUnit)
}

func TestNewStore_ClampsNaN(t *testing.T) {
	s, err := NewStore([]Resource{{Name: "odd", CostPerUnit: math.NaN(), BaselineQuality: math.NaN()}}, 10)
	require.NoError(t, err)

	r, ok := s.Resource("odd")
	require.True(t, ok)
	assert.Equal(t, minCostPerUnit, r.CostPerUnit)
	assert.Equal(t, 0.0, r.BaselineQuality)

	st, ok := s.Stats("odd")
	require.True(t, ok)
	assert.Equal(t, 0.0, st.AvgQuality)
}

func TestStore_BaselineWhenEmpty(t *testing.T) {
	s, err := NewStore(testResources(), 10)
	require.NoError(t, err)

	st, ok := s.Stats("deep")
	require.True(t, ok)
	assert.Equal(t, 0, st.Samples)
	assert.Equal(t, 8*time.Second, st.AvgLatency)
	assert.InDelta(t, 0.95, st.AvgQuality, 1e-9)
}

func TestStore_RecordAndEvict(t *testing.T) {
	s, err := NewStore(testResources(), 3)
	require.NoError(t, err)

	for _, q := range []float64{0.1, 0.2, 0.3} {
		require.True(t, s.Record("fast", Sample{Latency: time.Second, Quality: q, Success: true, Tokens: 10}))
	}
	st, _ := s.Stats("fast")
	assert.Equal(t, 3, st.Samples)
	assert.InDelta(t, 0.2, st.AvgQuality, 1e-9)

	// Fourth sample evicts 0.1.
	require.True(t, s.Record("fast", Sample{Latency: 4 * time.Second, Quality: 0.9, Success: false}))
	st, _ = s.Stats("fast")
	assert.Equal(t, 3, st.Samples)
	assert.InDelta(t, (0.2+0.3+0.9)/3, st.AvgQuality, 1e-9)
	assert.Equal(t, 2*time.Second, st.AvgLatency)
	assert.Equal(t, int64(4), st.Requests)
	assert.Equal(t, int64(1), st.Errors)
	assert.Equal(t, int64(30), st.Tokens)
	assert.InDelta(t, 0.25, st.ErrorRate(), 1e-9)
}

func TestStore_RecordUnknown(t *testing.T) {
	s, err := NewStore(testResources(), 3)
	require.NoError(t, err)

	assert.False(t, s.Record("missing", Sample{}))
	_, ok := s.Stats("missing")
	assert.False(t, ok)
}

func TestStore_ConcurrentRecord(t *testing.T) {
	s, err := NewStore(testResources(), 50)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Record("fast", Sample{Latency: time.Second, Quality: 0.5, Success: true})
				_, _ = s.Stats("fast")
			}
		}()
	}
	wg.Wait()

	st, _ := s.Stats("fast")
	assert.Equal(t, int64(2000), st.Requests)
	assert.Equal(t, 50, st.Samples)
	assert.InDelta(t, 0.5, st.AvgQuality, 1e-9)
}

func TestStats_ErrorRateWithoutRequests(t *testing.T) {
	assert.Equal(t, 0.0, Stats{}.ErrorRate())
}

func TestResourcesFromConfig(t *testing.T) {
	res := ResourcesFromConfig(config.Default().Resources)
	require.Len(t, res, 2)
	assert.Equal(t, "static-fast", res[0].Name)
	assert.Equal(t, TierHeavyweight, res[1].Tier)
	assert.Equal(t, 8*time.Second, res[1].BaselineLatency)
}

func TestStore_Collector(t *testing.T) {
	s, err := NewStore(testResources(), 3)
	require.NoError(t, err)
	s.Record("deep", Sample{Latency: time.Second, Quality: 1, Success: false, Tokens: 5})

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(s))

	expected := `
# HELP switchboard_resource_errors_total Total failed outcomes recorded for the resource
# TYPE switchboard_resource_errors_total counter
switchboard_resource_errors_total{resource="deep"} 1
switchboard_resource_errors_total{resource="fast"} 0
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "switchboard_resource_errors_total"))
	assert.Equal(t, 12, testutil.CollectAndCount(s))
}
