package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fefsmon/jobrate/pkg/errors"
)

func TestCriteriaValidate(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		wantErr  bool
	}{
		{"empty", Criteria{}, false},
		{"filesystem only", Criteria{Filesystems: []string{"fsA"}}, false},
		{"volume only", Criteria{Volumes: []string{"MDT0001"}}, false},
		{"filesystem and job", Criteria{Filesystems: []string{"fsA"}, Jobs: []string{"job"}}, false},
		{"volume and job", Criteria{Volumes: []string{"OST0000"}, Jobs: []string{"job"}}, false},
		{"filesystem and volume", Criteria{Filesystems: []string{"fsA"}, Volumes: []string{"MDT0001"}}, true},
		{"blank patterns do not count", Criteria{Filesystems: []string{" "}, Volumes: []string{"MDT0001"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.criteria.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeConfigConflict, errors.CodeOf(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParsePatterns(t *testing.T) {
	assert.Equal(t, []string{"fsA", "fsB"}, ParsePatterns("fsA/fsB"))
	assert.Equal(t, []string{"fsA"}, ParsePatterns("/fsA//"))
	assert.Nil(t, ParsePatterns(""))
}

func TestFilesystemOf(t *testing.T) {
	assert.Equal(t, "fsA", FilesystemOf("fsA-MDT0000"))
	assert.Equal(t, "my-fs", FilesystemOf("my-fs-OST0003"))
	assert.Equal(t, "plain", FilesystemOf("plain"))
}

func TestFilterScoping(t *testing.T) {
	volumes := []string{"fsA-MDT0000", "fsB-MDT0001"}

	tests := []struct {
		name     string
		criteria Criteria
		want     map[string]bool
	}{
		{
			name:     "no filter",
			criteria: Criteria{},
			want:     map[string]bool{"fsA-MDT0000": true, "fsB-MDT0001": true},
		},
		{
			name:     "filesystem filter",
			criteria: Criteria{Filesystems: []string{"fsA"}},
			want:     map[string]bool{"fsA-MDT0000": true, "fsB-MDT0001": false},
		},
		{
			name:     "volume filter",
			criteria: Criteria{Volumes: []string{"MDT0001"}},
			want:     map[string]bool{"fsA-MDT0000": false, "fsB-MDT0001": true},
		},
		{
			name:     "filesystem filter matches the prefix only",
			criteria: Criteria{Filesystems: []string{"MDT"}},
			want:     map[string]bool{"fsA-MDT0000": false, "fsB-MDT0001": false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.criteria)
			for _, v := range volumes {
				assert.Equal(t, tt.want[v], e.OnVolume(v), v)
			}
		})
	}
}

func TestJobScope(t *testing.T) {
	e := New(Criteria{Volumes: []string{"MDT0000"}, Jobs: []string{"analysis"}})

	require.True(t, e.OnVolume("pool-MDT0000"))
	assert.False(t, e.SampleInScope(), "no job seen yet")

	assert.True(t, e.OnJob("analysis01"))
	assert.True(t, e.SampleInScope())

	assert.False(t, e.OnJob("backup.1234"))
	assert.False(t, e.SampleInScope())

	require.False(t, e.OnVolume("pool-MDT0001"))
	assert.Equal(t, "", e.Job(), "a new volume clears the job")
	assert.False(t, e.OnJob("analysis01"), "jobs of an out-of-scope volume are out of scope")
	assert.False(t, e.SampleInScope())
}

func TestReset(t *testing.T) {
	e := New(Criteria{})
	e.OnVolume("pool-MDT0000")
	e.OnJob("analysis01")
	require.True(t, e.SampleInScope())

	e.Reset()
	assert.False(t, e.SampleInScope())
	assert.Equal(t, "", e.Volume())
	assert.Equal(t, "", e.Job())
}

func TestNewCopiesCriteria(t *testing.T) {
	jobs := []string{"analysis"}
	e := New(Criteria{Jobs: jobs})
	jobs[0] = "other"

	e.OnVolume("pool-MDT0000")
	assert.True(t, e.OnJob("analysis01"))
}
