package source

import (
	"bytes"
	"context"
	stderr "errors"
	"os/exec"
	"strings"
	"time"

	"github.com/fefsmon/jobrate/pkg/errors"
	"github.com/fefsmon/jobrate/pkg/types"
	"github.com/fefsmon/jobrate/pkg/utils"
)

// LctlConfig configures an LctlSource.
type LctlConfig struct {
	// Path of the lctl binary
	Path string
	// ProcRoot is probed to find out which parameter families exist
	ProcRoot string
	Domains  []types.Domain
	// Timeout bounds each lctl invocation
	Timeout time.Duration
	Logger  *utils.StructuredLogger
}

// runFunc runs a command and returns its standard output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// LctlSource runs "lctl get_param <param>.*.job_stats" for every parameter
// family that has job_stats files on this host.
type LctlSource struct {
	path     string
	procRoot string
	domains  []types.Domain
	timeout  time.Duration
	logger   *utils.StructuredLogger
	run      runFunc
}

// NewLctlSource returns a source that shells out to lctl.
func NewLctlSource(cfg LctlConfig) *LctlSource {
	if cfg.Path == "" {
		cfg.Path = "/usr/sbin/lctl"
	}
	if cfg.ProcRoot == "" {
		cfg.ProcRoot = DefaultProcRoot
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &LctlSource{
		path:     cfg.Path,
		procRoot: cfg.ProcRoot,
		domains:  cfg.Domains,
		timeout:  cfg.Timeout,
		logger:   logger.WithComponent("source").WithField("kind", "lctl"),
		run:      runCommand,
	}
}

// Pull gathers one dump per domain. A host without job_stats for a domain
// contributes no lines.
func (s *LctlSource) Pull(ctx context.Context) ([]types.Line, error) {
	var lines []types.Line
	for _, d := range s.domains {
		for _, t := range targets[d] {
			if len(jobStatsFiles(s.procRoot, t)) == 0 {
				continue
			}
			out, err := s.getParam(ctx, t.param+".*.job_stats")
			if err != nil {
				return nil, err
			}
			lines = append(lines, splitLines(d, out)...)
		}
	}
	return lines, nil
}

func (s *LctlSource) getParam(ctx context.Context, pattern string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	out, err := s.run(ctx, s.path, "get_param", pattern)
	if err == nil {
		s.logger.Trace("lctl completed", map[string]interface{}{
			"param":    pattern,
			"bytes":    len(out),
			"duration": time.Since(start).String(),
		})
		return out, nil
	}

	if stderr.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, errors.Newf(errors.ErrCodeCommandTimeout, "lctl get_param %s timed out after %s", pattern, s.timeout).
			WithComponent("source").
			WithOperation("pull").
			WithDetail("timeout", s.timeout.String()).
			WithCause(err)
	}
	if stderr.Is(ctx.Err(), context.Canceled) {
		return nil, errors.NewError(errors.ErrCodeOperationCanceled, "lctl get_param canceled").
			WithComponent("source").
			WithOperation("pull").
			WithCause(err)
	}
	return nil, errors.Newf(errors.ErrCodeCommandFailed, "lctl get_param %s failed", pattern).
		WithComponent("source").
		WithOperation("pull").
		WithContext("lctl", s.path).
		WithCause(err)
}

// runCommand runs name and folds its standard error into the returned error.
func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, errOut bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(errOut.String()); msg != "" {
			return nil, &commandError{err: err, stderr: msg}
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

type commandError struct {
	err    error
	stderr string
}

func (e *commandError) Error() string { return e.err.Error() + ": " + e.stderr }

func (e *commandError) Unwrap() error { return e.err }
