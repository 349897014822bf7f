package adapter

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fefsmon/jobrate/internal/config"
	"github.com/fefsmon/jobrate/internal/filter"
	"github.com/fefsmon/jobrate/pkg/errors"
	"github.com/fefsmon/jobrate/pkg/types"
	"github.com/fefsmon/jobrate/pkg/utils"
)

func bufferLogger(t *testing.T) (*utils.StructuredLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := utils.NewStructuredLogger(&utils.StructuredLoggerConfig{Level: utils.INFO, Output: &buf})
	require.NoError(t, err)
	return logger, &buf
}

const interval1 = `mdt.fsA-MDT0000.job_stats=
job_stats:
- job_id:          analysis
  snapshot_time:   1700000000
  open:            { samples:          10, unit:  reqs }
  close:           { samples:           4, unit:  reqs }
- job_id:          backup
  snapshot_time:   1700000000
  open:            { samples:           1, unit:  reqs }
`

const interval2 = `mdt.fsA-MDT0000.job_stats=
job_stats:
- job_id:          analysis
  snapshot_time:   1700000010
  open:            { samples:          25, unit:  reqs }
  close:           { samples:           9, unit:  reqs }
`

func replayConfig(t *testing.T) (*config.Configuration, string) {
	t.Helper()
	dir := t.TempDir()
	dumps := filepath.Join(dir, "dumps")
	require.NoError(t, os.Mkdir(dumps, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dumps, "0001"), []byte(interval1), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dumps, "0002"), []byte(interval2), 0644))

	cfg := config.NewDefault()
	cfg.Source.Kind = config.SourceFile
	cfg.Source.Files = []string{dumps}
	cfg.Collector.Mode = string(types.ModeVerbose)
	cfg.Report.Format = config.FormatPlot
	cfg.Report.Separator = ","
	cfg.Report.Output = filepath.Join(dir, "report.csv")
	return cfg, cfg.Report.Output
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Collector.Domains = nil

	_, err := New(cfg, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigValidation, errors.CodeOf(err))
}

func TestNew_MissingReplayPath(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Source.Kind = config.SourceFile
	cfg.Source.Files = []string{filepath.Join(t.TempDir(), "absent")}

	_, err := New(cfg, nil)
	assert.Equal(t, errors.ErrCodeSourceUnavailable, errors.CodeOf(err))
}

func TestNewSource_Kinds(t *testing.T) {
	domains := []types.Domain{types.DomainMDT}

	cfg := config.NewDefault()
	src, err := newSource(cfg, domains, nil)
	require.NoError(t, err)
	assert.NotNil(t, src)

	cfg.Source.Kind = config.SourceProc
	src, err = newSource(cfg, domains, nil)
	require.NoError(t, err)
	assert.NotNil(t, src)

	cfg.Source.Kind = "s3"
	_, err = newSource(cfg, domains, nil)
	assert.Equal(t, errors.ErrCodeInvalidConfig, errors.CodeOf(err))
}

func TestNew_LiveSourcesAreResilient(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Report.Enabled = false

	logger, buf := bufferLogger(t)
	a, err := New(cfg, logger)
	require.NoError(t, err)
	assert.NotNil(t, a.resilient)
	assert.Same(t, a.resilient, a.source)

	require.NoError(t, a.Stop(context.Background()))
	assert.Contains(t, buf.String(), "breaker=CLOSED")
}

func TestReplay_WritesReport(t *testing.T) {
	cfg, output := replayConfig(t)

	logger, buf := bufferLogger(t)
	a, err := New(cfg, logger)
	require.NoError(t, err)
	assert.Nil(t, a.resilient)

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	passes, err := a.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), passes)
	require.NoError(t, a.Stop(ctx))
	assert.Contains(t, buf.String(), "Replaying dumps {component=adapter, files=2}")
	assert.NotContains(t, buf.String(), "breaker=")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")

	var analysis []string
	for _, l := range lines {
		if strings.Contains(l, ",analysis,") {
			analysis = append(analysis, l)
		}
	}
	require.Len(t, analysis, 2)
	assert.Contains(t, analysis[0], ",fsA-MDT0000,analysis,10,4,")
	assert.Contains(t, analysis[1], ",fsA-MDT0000,analysis,15,5,")
	assert.True(t, strings.HasPrefix(lines[0], "#Date,Time,"))
}

func TestRunOnce_FeedsExporter(t *testing.T) {
	cfg, _ := replayConfig(t)
	cfg.Report.Enabled = false
	cfg.Metrics.Enabled = true
	cfg.Metrics.Address = "127.0.0.1:0"

	a, err := New(cfg, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	defer func() {
		shutdown, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		assert.NoError(t, a.Stop(shutdown))
	}()

	results, err := a.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(11), results[0].Snapshot.Fleet[types.FieldOpen])

	resp, err := http.Get("http://" + a.Exporter().Addr() + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	count, err := testutil.GatherAndCount(a.Exporter().Registry(), "jobrate_interval_ops")
	require.NoError(t, err)
	assert.Greater(t, count, 0)
}

func TestApplyConfig(t *testing.T) {
	cfg, _ := replayConfig(t)
	cfg.Report.Enabled = false

	a, err := New(cfg, nil)
	require.NoError(t, err)

	next := config.NewDefault()
	next.Collector.Filters = filter.Criteria{Jobs: []string{"analysis"}}
	a.ApplyConfig(next)
	assert.Equal(t, []string{"analysis"}, a.config.Collector.Filters.Jobs)

	results, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), results[0].Snapshot.Fleet[types.FieldOpen])

	bad := config.NewDefault()
	bad.Collector.Filters = filter.Criteria{Filesystems: []string{"fsA"}, Volumes: []string{"fsA-MDT0000"}}
	a.ApplyConfig(bad)
	assert.Equal(t, []string{"analysis"}, a.config.Collector.Filters.Jobs)
	assert.Empty(t, a.config.Collector.Filters.Volumes)
}
