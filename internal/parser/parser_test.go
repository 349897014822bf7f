package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fefsmon/jobrate/pkg/types"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		domain types.Domain
		line   string
		want   Record
	}{
		{
			name:   "mdt header",
			domain: types.DomainMDT,
			line:   "mdt.pool-MDT0000.job_stats=",
			want:   VolumeHeader{Param: "mdt", Volume: "pool-MDT0000"},
		},
		{
			name:   "mds header with colon",
			domain: types.DomainMDT,
			line:   "mds.fsA-MDT0001.job_stats:",
			want:   VolumeHeader{Param: "mds", Volume: "fsA-MDT0001"},
		},
		{
			name:   "ost header",
			domain: types.DomainOST,
			line:   "obdfilter.scratch-OST001a.job_stats=",
			want:   VolumeHeader{Param: "obdfilter", Volume: "scratch-OST001a"},
		},
		{
			name:   "filesystem name with dash keeps everything before last dash",
			domain: types.DomainOST,
			line:   "ost.my-fs-OST0000.job_stats=",
			want:   VolumeHeader{Param: "ost", Volume: "my-fs-OST0000"},
		},
		{
			name:   "ost header seen by mdt domain",
			domain: types.DomainMDT,
			line:   "obdfilter.scratch-OST0000.job_stats=",
			want:   Ignored{Reason: ReasonForeignHeader},
		},
		{
			name:   "header without filesystem suffix",
			domain: types.DomainMDT,
			line:   "mdt.MDT0000.job_stats=",
			want:   Ignored{Reason: ReasonBadVolume},
		},
		{
			name:   "job marker with dash",
			domain: types.DomainMDT,
			line:   "- job_id:          analysis01",
			want:   JobMarker{JobID: "analysis01"},
		},
		{
			name:   "job marker without id",
			domain: types.DomainMDT,
			line:   "- job_id:",
			want:   Ignored{Reason: ReasonNoJobID},
		},
		{
			name:   "count field",
			domain: types.DomainMDT,
			line:   "  open:            { samples:          10, unit:  reqs }",
			want:   FieldSample{Field: types.FieldOpen, Samples: 10},
		},
		{
			name:   "count field with equals terminator",
			domain: types.DomainMDT,
			line:   "  close= { samples: 8 }",
			want:   FieldSample{Field: types.FieldClose, Samples: 8},
		},
		{
			name:   "byte field with sum",
			domain: types.DomainOST,
			line:   "  read_bytes:      { samples:           5, unit: bytes, min:    4096, max:    4096, sum:           20480, sumsq: 83886080 }",
			want:   FieldSample{Field: types.FieldRead, Samples: 5, Sum: 20480, HasSum: true},
		},
		{
			name:   "legacy write label",
			domain: types.DomainOST,
			line:   "  write:           { samples:           2, unit: bytes, min: 1048576, max: 1048576, sum: 2097152 }",
			want:   FieldSample{Field: types.FieldWrite, Samples: 2, Sum: 2097152, HasSum: true},
		},
		{
			name:   "byte field without sum",
			domain: types.DomainOST,
			line:   "  read_bytes:      { samples: 5, unit: bytes }",
			want:   Ignored{Reason: ReasonNoSum},
		},
		{
			name:   "sumsq alone is not a sum",
			domain: types.DomainOST,
			line:   "  write_bytes:     { samples: 5, unit: bytes, sumsq: 10 }",
			want:   Ignored{Reason: ReasonNoSum},
		},
		{
			name:   "unknown field is kept",
			domain: types.DomainMDT,
			line:   "  migrate:         { samples:           3, unit:  reqs }",
			want:   FieldSample{Field: types.Field("migrate"), Samples: 3},
		},
		{
			name:   "snapshot time",
			domain: types.DomainMDT,
			line:   "  snapshot_time:   1700000000",
			want:   Ignored{Reason: ReasonMetadata},
		},
		{
			name:   "job_stats section marker",
			domain: types.DomainOST,
			line:   "job_stats:",
			want:   Ignored{Reason: ReasonMetadata},
		},
		{
			name:   "field without samples",
			domain: types.DomainMDT,
			line:   "  open:            { unit:  reqs }",
			want:   Ignored{Reason: ReasonNoSamples},
		},
		{
			name:   "blank",
			domain: types.DomainMDT,
			line:   "   ",
			want:   Ignored{Reason: ReasonBlank},
		},
		{
			name:   "free text",
			domain: types.DomainMDT,
			line:   "error: get_param: param_path 'mdt/*/job_stats': No such file or directory",
			want:   Ignored{Reason: ReasonNoSamples},
		},
		{
			name:   "no terminator",
			domain: types.DomainMDT,
			line:   "garbage",
			want:   Ignored{Reason: ReasonNoLabel},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.domain, tt.line))
		})
	}
}

func TestScan(t *testing.T) {
	input := strings.Join([]string{
		"mdt.pool-MDT0000.job_stats=",
		"job_stats:",
		"- job_id:          analysis01",
		"  snapshot_time:   1700000000",
		"  open:            { samples:          10, unit:  reqs }",
		"  close:           { samples:           8, unit:  reqs }",
	}, "\n")

	var records []Record
	err := Scan(types.DomainMDT, strings.NewReader(input), func(r Record) {
		records = append(records, r)
	})
	require.NoError(t, err)
	require.Len(t, records, 6)

	assert.Equal(t, VolumeHeader{Param: "mdt", Volume: "pool-MDT0000"}, records[0])
	assert.IsType(t, Ignored{}, records[1])
	assert.Equal(t, JobMarker{JobID: "analysis01"}, records[2])
	assert.IsType(t, Ignored{}, records[3])
	assert.Equal(t, FieldSample{Field: types.FieldOpen, Samples: 10}, records[4])
	assert.Equal(t, FieldSample{Field: types.FieldClose, Samples: 8}, records[5])
}

func TestTokenValue(t *testing.T) {
	v, ok := tokenValue("{ samples: 7, sum: 99 }", "sum:")
	assert.True(t, ok)
	assert.Equal(t, uint64(99), v)

	_, ok = tokenValue("{ samples: x }", "samples:")
	assert.False(t, ok)

	_, ok = tokenValue("{ nsamples: 3 }", "samples:")
	assert.False(t, ok)
}
