package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fefsmon/jobrate/pkg/types"
)

func ostFields() []types.Field {
	return types.CanonicalFields(types.DomainOST, types.ProfileCurrent)
}

func TestNew_FleetRowIsZeroed(t *testing.T) {
	table := New(ostFields())
	snap := table.Snapshot()

	require.Len(t, snap.Fleet, len(ostFields()))
	for _, f := range ostFields() {
		assert.Equal(t, uint64(0), snap.Fleet[f], f)
	}
	assert.Empty(t, snap.Volumes)
}

func TestInitVolumeAndJob(t *testing.T) {
	table := New(ostFields())
	table.InitVolume("scratch-OST0000")
	table.InitJob("scratch-OST0001", "dd.0")

	snap := table.Snapshot()
	require.Contains(t, snap.Volumes, "scratch-OST0000")
	assert.Empty(t, snap.Volumes["scratch-OST0000"].Jobs)
	assert.Equal(t, uint64(0), snap.Volumes["scratch-OST0000"].Total.Total())

	require.Contains(t, snap.Volumes, "scratch-OST0001", "InitJob creates its volume")
	assert.Len(t, snap.Volumes["scratch-OST0001"].Jobs["dd.0"], len(ostFields()))
}

func TestInitNeverRezeroes(t *testing.T) {
	table := New(ostFields())
	table.Record("scratch-OST0000", "dd.0", types.FieldPunch, 4, 0, false)

	table.InitVolume("scratch-OST0000")
	table.InitJob("scratch-OST0000", "dd.0")

	snap := table.Snapshot()
	assert.Equal(t, uint64(4), snap.Volumes["scratch-OST0000"].Jobs["dd.0"][types.FieldPunch])
	assert.Equal(t, uint64(4), snap.Volumes["scratch-OST0000"].Total[types.FieldPunch])
}

func TestRecord_BytesGoToCompanion(t *testing.T) {
	table := New(ostFields())
	table.Record("scratch-OST0000", "dd.0", types.FieldRead, 5, 20480, true)
	table.Record("scratch-OST0000", "dd.0", types.FieldSync, 1, 999, true)

	row := table.Snapshot().Volumes["scratch-OST0000"].Jobs["dd.0"]
	assert.Equal(t, uint64(5), row[types.FieldRead])
	assert.Equal(t, uint64(20480), row[types.FieldReadBytes])
	assert.Equal(t, uint64(1), row[types.FieldSync])
	assert.Len(t, row, len(ostFields()), "bytes of a count-only field are dropped")
}

func TestRecord_UnknownFieldAggregatedGenerically(t *testing.T) {
	table := New(ostFields())
	table.Record("scratch-OST0000", "dd.0", types.Field("fallocate"), 2, 0, false)
	table.Record("scratch-OST0001", "dd.1", types.Field("fallocate"), 3, 0, false)

	snap := table.Snapshot()
	assert.Equal(t, uint64(2), snap.Volumes["scratch-OST0000"].Jobs["dd.0"]["fallocate"])
	assert.Equal(t, uint64(5), snap.Fleet["fallocate"])
	_, ok := snap.Volumes["scratch-OST0001"].Jobs["dd.0"]["fallocate"]
	assert.False(t, ok)
}

func TestAggregationConsistency(t *testing.T) {
	table := New(ostFields())
	records := []struct {
		volume, job string
		field       types.Field
		count       uint64
		bytes       uint64
		hasBytes    bool
	}{
		{"scratch-OST0000", "a", types.FieldWrite, 3, 3000, true},
		{"scratch-OST0000", "b", types.FieldWrite, 4, 100, true},
		{"scratch-OST0000", "b", types.FieldGetattr, 9, 0, false},
		{"scratch-OST0001", "a", types.FieldWrite, 1, 1, true},
		{"scratch-OST0001", "c", types.FieldDestroy, 2, 0, false},
		{"home-OST0000", "d", types.FieldRead, 7, 70, true},
	}
	for _, r := range records {
		table.Record(r.volume, r.job, r.field, r.count, r.bytes, r.hasBytes)
	}
	table.InitVolume("home-OST0001")

	snap := table.Snapshot()
	for _, f := range ostFields() {
		var fleet uint64
		for name, v := range snap.Volumes {
			var vol uint64
			for _, row := range v.Jobs {
				vol += row[f]
				assert.Contains(t, row, f)
			}
			assert.Equal(t, v.Total[f], vol, "volume %s field %s", name, f)
			fleet += v.Total[f]
		}
		assert.Equal(t, snap.Fleet[f], fleet, "fleet field %s", f)
	}
	assert.Equal(t, uint64(8), snap.Fleet[types.FieldWrite])
	assert.Equal(t, uint64(3101), snap.Fleet[types.FieldWriteBytes])
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	table := New(ostFields())
	table.Record("scratch-OST0000", "a", types.FieldRead, 1, 1, true)

	snap := table.Snapshot()
	snap.Fleet[types.FieldRead] = 100
	snap.Volumes["scratch-OST0000"].Jobs["a"][types.FieldRead] = 100

	again := table.Snapshot()
	assert.Equal(t, uint64(1), again.Fleet[types.FieldRead])
	assert.Equal(t, uint64(1), again.Volumes["scratch-OST0000"].Jobs["a"][types.FieldRead])
}

func TestReset(t *testing.T) {
	table := New(ostFields())
	table.Record("scratch-OST0000", "a", types.FieldRead, 1, 1, true)

	table.Reset()
	snap := table.Snapshot()
	assert.Empty(t, snap.Volumes)
	assert.Equal(t, uint64(0), snap.Fleet[types.FieldRead])
}
