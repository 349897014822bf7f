// Package aggregate accumulates interval deltas into job, volume and fleet
// rows.
package aggregate

import (
	"github.com/fefsmon/jobrate/pkg/types"
)

type volumeRows struct {
	total types.Row
	jobs  map[string]types.Row
}

// Table is the result store of one interval. Every row it creates starts
// with all canonical fields at zero; a field outside the canonical list is
// added to a row the first time it is recorded there.
type Table struct {
	fields  []types.Field
	fleet   types.Row
	volumes map[string]*volumeRows
}

// New returns an empty table over the given canonical fields.
func New(fields []types.Field) *Table {
	t := &Table{fields: append([]types.Field(nil), fields...)}
	t.Reset()
	return t
}

// Reset drops every volume and job and zeroes the fleet row.
func (t *Table) Reset() {
	t.fleet = types.NewRow(t.fields)
	t.volumes = make(map[string]*volumeRows)
}

// InitVolume ensures a total row exists for volume. An existing row keeps
// its values.
func (t *Table) InitVolume(volume string) {
	t.volume(volume)
}

// InitJob ensures a row exists for job on volume. An existing row keeps its
// values.
func (t *Table) InitJob(volume, job string) {
	t.job(volume, job)
}

// Record adds a delta to the job row, the volume total and the fleet row.
// When hasBytes is set and field has a byte companion, bytes is added to the
// companion in the same rows.
func (t *Table) Record(volume, job string, field types.Field, count, bytes uint64, hasBytes bool) {
	v := t.volume(volume)
	j := t.job(volume, job)

	j[field] += count
	v.total[field] += count
	t.fleet[field] += count

	if !hasBytes {
		return
	}
	if companion, ok := field.BytesCompanion(); ok {
		j[companion] += bytes
		v.total[companion] += bytes
		t.fleet[companion] += bytes
	}
}

func (t *Table) volume(volume string) *volumeRows {
	v, ok := t.volumes[volume]
	if !ok {
		v = &volumeRows{
			total: types.NewRow(t.fields),
			jobs:  make(map[string]types.Row),
		}
		t.volumes[volume] = v
	}
	return v
}

func (t *Table) job(volume, job string) types.Row {
	v := t.volume(volume)
	row, ok := v.jobs[job]
	if !ok {
		row = types.NewRow(t.fields)
		v.jobs[job] = row
	}
	return row
}

// Fields returns the canonical field list of the table.
func (t *Table) Fields() []types.Field {
	return append([]types.Field(nil), t.fields...)
}

// Snapshot returns a deep copy of the table. Only the field list, fleet row
// and volumes are filled in; the caller stamps domain and timing.
func (t *Table) Snapshot() types.Snapshot {
	snap := types.Snapshot{
		Fields:  t.Fields(),
		Fleet:   t.fleet.Clone(),
		Volumes: make(map[string]types.VolumeEntry, len(t.volumes)),
	}
	for name, v := range t.volumes {
		entry := types.VolumeEntry{
			Total: v.total.Clone(),
			Jobs:  make(map[string]types.Row, len(v.jobs)),
		}
		for id, row := range v.jobs {
			entry.Jobs[id] = row.Clone()
		}
		snap.Volumes[name] = entry
	}
	return snap
}
