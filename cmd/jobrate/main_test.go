package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fefsmon/jobrate/internal/config"
	"github.com/fefsmon/jobrate/pkg/errors"
)

const ostDump = `obdfilter.fsB-OST0003.job_stats=
job_stats:
- job_id:          dd.1000
  snapshot_time:   1700000000
  read_bytes:      { samples:           5, unit: bytes, min: 4096, max: 4096, sum: 20480 }
  write_bytes:     { samples:           0, unit: bytes, min:    0, max:    0, sum:     0 }
`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "jobrate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestExecute_UnknownCommand(t *testing.T) {
	err := execute(context.Background(), "mount", nil, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "mount"`)
}

func TestExecute_Help(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), "help", nil, &out))
	assert.Contains(t, out.String(), "replay")
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
global:
  interval: 30s
collector:
  domains: [ost]
  mode: detail
`)

	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), "validate", []string{"-config", path}, &out))
	assert.Contains(t, out.String(), "interval: 30s")
	assert.Contains(t, out.String(), "- ost")
}

func TestValidateCommand_Save(t *testing.T) {
	dir := t.TempDir()
	saved := filepath.Join(dir, "effective", "jobrate.yaml")

	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), "validate", []string{"-o", "ost=fsB-OST0003,d", "-save", saved}, &out))
	assert.Contains(t, out.String(), "saved effective configuration to "+saved)

	cfg, err := config.Load(saved, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"ost"}, cfg.Collector.Domains)
	assert.Equal(t, []string{"fsB-OST0003"}, cfg.Collector.Filters.Volumes)
}

func TestValidateCommand_OptionConflict(t *testing.T) {
	err := execute(context.Background(), "validate", []string{"-o", "mdt,d,v"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "v and d options")
}

func TestReplayCommand(t *testing.T) {
	dir := t.TempDir()
	dump := filepath.Join(dir, "0001")
	require.NoError(t, os.WriteFile(dump, []byte(ostDump), 0644))
	output := filepath.Join(dir, "report.txt")
	path := writeConfig(t, dir, `
global:
  log_file: `+filepath.Join(dir, "jobrate.log")+`
report:
  enabled: true
  format: text
  output: `+output+`
`)

	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), "replay", []string{"-config", path, "-o", "ost,d", dump}, &out))
	assert.Contains(t, out.String(), "replayed 1 intervals")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	report := string(data)
	assert.Contains(t, report, "# Lustre Jobstats (ost)")
	assert.Contains(t, report, "read_bytes[B]")

	var row string
	for _, l := range strings.Split(report, "\n") {
		if strings.Contains(l, "fsB-OST0003") {
			row = l
		}
	}
	require.NotEmpty(t, row)
	fields := strings.Fields(row)
	require.GreaterOrEqual(t, len(fields), 4)
	assert.Equal(t, "5", fields[2])
	assert.Equal(t, "20480", fields[3])
}

func TestReplayCommand_NeedsInput(t *testing.T) {
	err := execute(context.Background(), "replay", nil, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one dump")
}

func TestPrintError(t *testing.T) {
	var out bytes.Buffer
	printError(&out, "validate", errors.NewError(errors.ErrCodeConfigConflict, "v and d options can't be used at the same time"))
	assert.Contains(t, out.String(), "jobrate validate: v and d options can't be used at the same time\n")
	assert.Contains(t, out.String(), "hint: Two options that exclude each other")
	assert.NotContains(t, out.String(), "detail:")

	out.Reset()
	printError(&out, "run", errors.NewError(errors.ErrCodeInternalError, "nil volume table").WithComponent("interval"))
	assert.Contains(t, out.String(), "jobrate run: An internal error occurred.")
	assert.Contains(t, out.String(), "detail: [interval] INTERNAL_ERROR: nil volume table")

	out.Reset()
	printError(&out, "run", errors.NewError(errors.ErrCodeConfigLoad, "failed to read config file").WithCause(os.ErrNotExist))
	assert.Contains(t, out.String(), "jobrate run: failed to read config file\n")
	assert.Contains(t, out.String(), "detail: CONFIG_LOAD: failed to read config file: file does not exist")
	assert.Contains(t, out.String(), "hint: The configuration file could not be read.")

	out.Reset()
	printError(&out, "mount", fmt.Errorf("unknown command %q", "mount"))
	assert.Equal(t, "jobrate mount: unknown command \"mount\"\n", out.String())
}

func TestSetupLogging_ComponentLevels(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Global.LogLevel = "ERROR"
	cfg.Global.LogFile = filepath.Join(t.TempDir(), "jobrate.log")
	cfg.Global.ComponentLevels = map[string]string{"monitor": "DEBUG"}

	logger, err := setupLogging(cfg)
	require.NoError(t, err)
	logger.WithComponent("monitor").Debug("pass complete")
	logger.WithComponent("source").Warn("retrying pull")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(cfg.Global.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pass complete")
	assert.NotContains(t, string(data), "retrying pull")
}
