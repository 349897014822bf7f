package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fefsmon/jobrate/pkg/errors"
	"github.com/fefsmon/jobrate/pkg/types"
)

// FileSource replays saved lctl dumps, one file per Pull. Directories are
// expanded to their regular files in name order. Once every file has been
// returned Pull reports io.EOF.
type FileSource struct {
	domains []types.Domain

	mu    sync.Mutex
	files []string
	next  int
}

// NewFileSource expands paths and returns a replaying source.
func NewFileSource(paths []string, domains []types.Domain) (*FileSource, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeSourceUnavailable, "replay path not accessible").
				WithComponent("source").
				WithContext("path", p).
				WithCause(err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeSourceUnavailable, "failed to list replay directory").
				WithComponent("source").
				WithContext("path", p).
				WithCause(err)
		}
		var names []string
		for _, e := range entries {
			if e.Type().IsRegular() {
				names = append(names, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(names)
		files = append(files, names...)
	}

	return &FileSource{domains: domains, files: files}, nil
}

// Remaining returns the number of files not yet replayed.
func (s *FileSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files) - s.next
}

// Pull returns the lines of the next file.
func (s *FileSource) Pull(ctx context.Context) ([]types.Line, error) {
	s.mu.Lock()
	if s.next >= len(s.files) {
		s.mu.Unlock()
		return nil, io.EOF
	}
	path := s.files[s.next]
	s.next++
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeSourceUnavailable, "failed to read replay file").
			WithComponent("source").
			WithOperation("pull").
			WithContext("path", path).
			WithCause(err)
	}
	return TagLines(s.domains, data), nil
}
