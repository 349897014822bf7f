package delta

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fefsmon/jobrate/pkg/types"
)

const (
	vol = "pool-MDT0000"
	job = "analysis01"
)

func TestCompute_FirstObservationIsBaseline(t *testing.T) {
	e := NewEngine()

	d := e.Compute(vol, job, types.FieldOpen, Sample{Count: 1000})
	assert.Equal(t, uint64(1000), d.Count)
	assert.True(t, d.FirstSample)
	assert.False(t, d.CountReset)
	assert.False(t, d.HasBytes)
	assert.True(t, e.Has(vol, job, types.FieldOpen))
}

func TestCompute_Monotonic(t *testing.T) {
	e := NewEngine()
	e.Compute(vol, job, types.FieldOpen, Sample{Count: 1000})

	d := e.Compute(vol, job, types.FieldOpen, Sample{Count: 1300})
	assert.Equal(t, uint64(300), d.Count)
	assert.False(t, d.FirstSample)
	assert.False(t, d.CountReset)
}

func TestCompute_Unchanged(t *testing.T) {
	e := NewEngine()
	e.Compute(vol, job, types.FieldClose, Sample{Count: 8})

	d := e.Compute(vol, job, types.FieldClose, Sample{Count: 8})
	assert.Equal(t, uint64(0), d.Count)
}

func TestCompute_Reset(t *testing.T) {
	e := NewEngine()
	e.Compute(vol, job, types.FieldOpen, Sample{Count: 1000})

	d := e.Compute(vol, job, types.FieldOpen, Sample{Count: 50})
	assert.Equal(t, uint64(50), d.Count)
	assert.True(t, d.CountReset)

	// the reset value becomes the new baseline
	d = e.Compute(vol, job, types.FieldOpen, Sample{Count: 80})
	assert.Equal(t, uint64(30), d.Count)
	assert.False(t, d.CountReset)
}

func TestCompute_BytesResetIndependently(t *testing.T) {
	e := NewEngine()
	e.Compute(vol, job, types.FieldRead, Sample{Count: 10, Bytes: 4096, HasBytes: true})

	d := e.Compute(vol, job, types.FieldRead, Sample{Count: 12, Bytes: 1024, HasBytes: true})
	assert.Equal(t, uint64(2), d.Count)
	assert.False(t, d.CountReset)
	assert.Equal(t, uint64(1024), d.Bytes)
	assert.True(t, d.BytesReset)

	d = e.Compute(vol, job, types.FieldRead, Sample{Count: 3, Bytes: 2048, HasBytes: true})
	assert.Equal(t, uint64(3), d.Count)
	assert.True(t, d.CountReset)
	assert.Equal(t, uint64(1024), d.Bytes)
	assert.False(t, d.BytesReset)
}

func TestCompute_BytesAppearLater(t *testing.T) {
	e := NewEngine()
	e.Compute(vol, job, types.FieldWrite, Sample{Count: 5})

	d := e.Compute(vol, job, types.FieldWrite, Sample{Count: 7, Bytes: 500, HasBytes: true})
	assert.Equal(t, uint64(2), d.Count)
	assert.Equal(t, uint64(500), d.Bytes, "bytes without a remembered value are a baseline")
	assert.False(t, d.BytesReset)
}

func TestCompute_KeysAreIndependent(t *testing.T) {
	e := NewEngine()
	e.Compute(vol, job, types.FieldOpen, Sample{Count: 100})
	e.Compute(vol, "other", types.FieldOpen, Sample{Count: 5})
	e.Compute("pool-MDT0001", job, types.FieldOpen, Sample{Count: 7})

	d := e.Compute(vol, job, types.FieldOpen, Sample{Count: 110})
	assert.Equal(t, uint64(10), d.Count)
	assert.Equal(t, 3, e.Len())
}

func TestCompute_NeverNegative(t *testing.T) {
	e := NewEngine()
	r := rand.New(rand.NewSource(42))

	var prev uint64
	seen := false
	for i := 0; i < 1000; i++ {
		cur := uint64(r.Intn(10000))
		d := e.Compute(vol, job, types.FieldGetattr, Sample{Count: cur})

		switch {
		case !seen, cur < prev:
			require.Equal(t, cur, d.Count)
		default:
			require.Equal(t, cur-prev, d.Count)
		}
		require.LessOrEqual(t, d.Count, cur)
		prev, seen = cur, true
	}
}

func TestPrune(t *testing.T) {
	e := NewEngine()
	e.Compute(vol, "keep", types.FieldOpen, Sample{Count: 1})
	e.Compute(vol, "drop", types.FieldOpen, Sample{Count: 1})
	e.Compute("pool-MDT0001", "gone", types.FieldOpen, Sample{Count: 1})

	observed := Observed{}
	observed.Add(vol, "keep")

	assert.Equal(t, 2, e.Prune(observed))
	assert.Equal(t, 1, e.Len())
	assert.True(t, e.Has(vol, "keep", types.FieldOpen))
	assert.False(t, e.Has(vol, "drop", types.FieldOpen))
	assert.NotContains(t, e.prev, "pool-MDT0001", "empty volumes are dropped")
}

func TestPrune_ReappearingJobIsFreshBaseline(t *testing.T) {
	e := NewEngine()

	// interval 1
	e.Compute(vol, job, types.FieldOpen, Sample{Count: 500})
	interval1 := Observed{}
	interval1.Add(vol, job)
	assert.Equal(t, 0, e.Prune(interval1))

	// interval 2: job absent
	assert.Equal(t, 1, e.Prune(Observed{}))
	assert.False(t, e.Has(vol, job, types.FieldOpen))

	// interval 3: job back with a higher cumulative value
	d := e.Compute(vol, job, types.FieldOpen, Sample{Count: 520})
	assert.Equal(t, uint64(520), d.Count)
	assert.True(t, d.FirstSample)
}
