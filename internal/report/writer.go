// Package report renders interval snapshots as a fixed-width text table or
// as separator-joined lines for plotting tools.
package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/fefsmon/jobrate/pkg/errors"
	"github.com/fefsmon/jobrate/pkg/types"
)

// Output formats.
const (
	FormatText = "text"
	FormatPlot = "plot"
)

const (
	timeLayout = "15:04:05"
	dateLayout = "20060102"

	countWidth  = 8
	bytesWidth  = 14
	volumeWidth = 16
	jobWidth    = 10
)

// Config configures a Writer.
type Config struct {
	Format    string
	Mode      types.Mode
	Separator string
	// HeaderEvery repeats the column header every n intervals when writing to
	// a terminal; 0 prints it once
	HeaderEvery int
	Output      io.Writer
}

// Writer renders snapshots. It implements types.Sink.
type Writer struct {
	mu       sync.Mutex
	cfg      Config
	out      io.Writer
	terminal bool
	printed  map[types.Domain]int
}

// New returns a writer. Output defaults to stdout.
func New(cfg Config) *Writer {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Format == "" {
		cfg.Format = FormatText
	}
	if cfg.Mode == "" {
		cfg.Mode = types.ModeSummary
	}
	if cfg.Separator == "" {
		cfg.Separator = " "
	}
	return &Writer{
		cfg:      cfg,
		out:      cfg.Output,
		terminal: isTerminal(cfg.Output),
		printed:  make(map[types.Domain]int),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// Open returns the report destination for path; "-" and "" mean stdout.
func Open(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodePublishFailed, "failed to open report output").
			WithComponent("report").
			WithContext("path", path).
			WithCause(err)
	}
	return f, nil
}

type nopCloser struct{ *os.File }

func (nopCloser) Close() error { return nil }

// Publish writes one interval.
func (w *Writer) Publish(_ context.Context, snap types.Snapshot, _ types.PassStats) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var sb strings.Builder
	n := w.printed[snap.Domain]
	if n == 0 || (w.terminal && w.cfg.HeaderEvery > 0 && n%w.cfg.HeaderEvery == 0) {
		w.header(&sb, snap)
	}
	w.printed[snap.Domain] = n + 1

	switch w.cfg.Mode {
	case types.ModeVerbose:
		for _, vol := range snap.VolumeNames() {
			entry := snap.Volumes[vol]
			for _, job := range entry.JobIDs() {
				w.row(&sb, snap, []string{vol, job}, entry.Jobs[job])
			}
		}
	case types.ModeDetail:
		for _, vol := range snap.VolumeNames() {
			w.row(&sb, snap, []string{vol}, snap.Volumes[vol].Total)
		}
	default:
		w.row(&sb, snap, nil, snap.Fleet)
	}

	if _, err := io.WriteString(w.out, sb.String()); err != nil {
		return errors.NewError(errors.ErrCodePublishFailed, "failed to write report").
			WithComponent("report").
			WithCause(err)
	}
	return nil
}

// ColumnLabel returns the heading of field f; byte sums carry a [B] suffix.
func ColumnLabel(f types.Field) string {
	if f.IsBytes() {
		return string(f) + "[B]"
	}
	return string(f)
}

func (w *Writer) prefixLabels(d types.Domain) []string {
	switch w.cfg.Mode {
	case types.ModeVerbose:
		return []string{d.VolumeLabel(), "JOBID"}
	case types.ModeDetail:
		return []string{d.VolumeLabel()}
	default:
		return nil
	}
}

func (w *Writer) header(sb *strings.Builder, snap types.Snapshot) {
	prefix := w.prefixLabels(snap.Domain)

	if w.cfg.Format == FormatPlot {
		cols := append([]string{"Date", "Time"}, prefix...)
		for _, f := range snap.Fields {
			cols = append(cols, ColumnLabel(f))
		}
		sb.WriteString("#")
		sb.WriteString(strings.Join(cols, w.cfg.Separator))
		sb.WriteString("\n")
		return
	}

	fmt.Fprintf(sb, "# Lustre Jobstats (%s)\n", snap.Domain)
	fmt.Fprintf(sb, "#%-*s", len(timeLayout)-1, "Time")
	for i, p := range prefix {
		width := volumeWidth
		if i == 1 {
			width = jobWidth
		}
		fmt.Fprintf(sb, " %-*s", width, p)
	}
	for _, f := range snap.Fields {
		fmt.Fprintf(sb, " %*s", columnWidth(f), ColumnLabel(f))
	}
	sb.WriteString("\n")
}

func (w *Writer) row(sb *strings.Builder, snap types.Snapshot, prefix []string, r types.Row) {
	if w.cfg.Format == FormatPlot {
		cols := append([]string{snap.Finished.Format(dateLayout), snap.Finished.Format(timeLayout)}, prefix...)
		for _, v := range r.Values(snap.Fields) {
			cols = append(cols, fmt.Sprint(v))
		}
		sb.WriteString(strings.Join(cols, w.cfg.Separator))
		sb.WriteString("\n")
		return
	}

	sb.WriteString(snap.Finished.Format(timeLayout))
	for i, p := range prefix {
		width := volumeWidth
		if i == 1 {
			width = jobWidth
		}
		fmt.Fprintf(sb, " %-*s", width, p)
	}
	for _, f := range snap.Fields {
		fmt.Fprintf(sb, " %*d", columnWidth(f), r[f])
	}
	sb.WriteString("\n")
}

func columnWidth(f types.Field) int {
	width := countWidth
	if f.IsBytes() {
		width = bytesWidth
	}
	if l := len(ColumnLabel(f)); l > width {
		width = l
	}
	return width
}
