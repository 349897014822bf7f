package source

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fefsmon/jobrate/pkg/errors"
	"github.com/fefsmon/jobrate/pkg/types"
	"github.com/fefsmon/jobrate/pkg/utils"
)

// ProcSource reads the job_stats files directly, without lctl. Each file is
// preceded by the header line lctl would have printed for it.
type ProcSource struct {
	procRoot string
	domains  []types.Domain
	logger   *utils.StructuredLogger
}

// NewProcSource returns a source reading under procRoot.
func NewProcSource(procRoot string, domains []types.Domain, logger *utils.StructuredLogger) *ProcSource {
	if procRoot == "" {
		procRoot = DefaultProcRoot
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &ProcSource{
		procRoot: procRoot,
		domains:  domains,
		logger:   logger.WithComponent("source").WithField("kind", "proc"),
	}
}

// Pull reads every job_stats file of the configured domains. A target that
// disappears between listing and reading is skipped.
func (s *ProcSource) Pull(ctx context.Context) ([]types.Line, error) {
	var lines []types.Line
	for _, d := range s.domains {
		for _, t := range targets[d] {
			for _, path := range jobStatsFiles(s.procRoot, t) {
				if err := ctx.Err(); err != nil {
					return nil, errors.NewError(errors.ErrCodeOperationCanceled, "proc read canceled").
						WithComponent("source").
						WithOperation("pull").
						WithCause(err)
				}

				data, err := os.ReadFile(path)
				if os.IsNotExist(err) {
					s.logger.Debug("Target vanished", map[string]interface{}{"path": path})
					continue
				}
				if err != nil {
					return nil, errors.NewError(errors.ErrCodeSourceUnavailable, "failed to read job_stats").
						WithComponent("source").
						WithOperation("pull").
						WithContext("path", path).
						WithCause(err)
				}

				name := filepath.Base(filepath.Dir(path))
				lines = append(lines, types.Line{Domain: d, Text: t.param + "." + name + ".job_stats="})
				lines = append(lines, splitLines(d, data)...)
			}
		}
	}
	return lines, nil
}
