// Package parser classifies raw job_stats lines into typed records.
//
// A job_stats dump is a flat sequence of lines whose structure is implied by
// order: a volume header, then for each job a job_id marker followed by its
// counter lines.
//
//	mdt.lustre-MDT0000.job_stats=
//	job_stats:
//	- job_id:          analysis01
//	  snapshot_time:   1700000000
//	  open:            { samples:          10, unit:  reqs }
//	  read_bytes:      { samples:           5, unit: bytes, min: 4096, max: 4096, sum: 20480 }
//
// Parse never fails. Lines that fit no known shape come back as Ignored with
// a reason so callers can count them.
package parser

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/fefsmon/jobrate/pkg/types"
)

// Record is one classified line. The concrete type is one of VolumeHeader,
// JobMarker, FieldSample or Ignored.
type Record interface {
	record()
}

// VolumeHeader starts the section of one volume.
type VolumeHeader struct {
	Param  string
	Volume string
}

// JobMarker starts the counters of one job within the current volume.
type JobMarker struct {
	JobID string
}

// FieldSample carries one cumulative counter. Sum is only set for fields that
// pair a count with a byte total.
type FieldSample struct {
	Field   types.Field
	Samples uint64
	Sum     uint64
	HasSum  bool
}

// Ignored is a line that contributes nothing.
type Ignored struct {
	Reason Reason
}

func (VolumeHeader) record() {}
func (JobMarker) record()    {}
func (FieldSample) record()  {}
func (Ignored) record()      {}

// Reason tells why a line was ignored.
type Reason string

const (
	ReasonBlank         Reason = "blank"
	ReasonNoLabel       Reason = "no_label"
	ReasonMetadata      Reason = "metadata"
	ReasonForeignHeader Reason = "foreign_header"
	ReasonBadVolume     Reason = "bad_volume"
	ReasonNoJobID       Reason = "no_job_id"
	ReasonNoSamples     Reason = "no_samples"
	ReasonNoSum         Reason = "no_sum"
)

const headerSuffix = ".job_stats"

// Labels that describe a job record rather than count operations.
var metadataLabels = map[string]bool{
	"job_stats":     true,
	"snapshot_time": true,
	"start_time":    true,
	"elapsed_time":  true,
}

// Parse classifies a single line of domain's job_stats output.
func Parse(domain types.Domain, line string) Record {
	s := strings.TrimLeft(line, " \t-")
	s = strings.TrimRight(s, " \t\r\n")
	if s == "" {
		return Ignored{Reason: ReasonBlank}
	}

	end := strings.IndexAny(s, ":= \t")
	if end <= 0 || (s[end] != ':' && s[end] != '=') {
		return Ignored{Reason: ReasonNoLabel}
	}
	label, rest := s[:end], s[end+1:]

	if strings.HasSuffix(label, headerSuffix) {
		return parseHeader(domain, label)
	}
	if label == "job_id" {
		id := firstToken(rest)
		if id == "" {
			return Ignored{Reason: ReasonNoJobID}
		}
		return JobMarker{JobID: id}
	}
	if metadataLabels[label] {
		return Ignored{Reason: ReasonMetadata}
	}
	return parseSample(label, rest)
}

// parseHeader accepts "<param>.<fs>-<suffix>.job_stats" where param belongs
// to domain.
func parseHeader(domain types.Domain, label string) Record {
	body := strings.TrimSuffix(label, headerSuffix)
	dot := strings.IndexByte(body, '.')
	if dot <= 0 {
		return Ignored{Reason: ReasonBadVolume}
	}
	param, volume := body[:dot], body[dot+1:]

	known := false
	for _, p := range domain.ParamPrefixes() {
		if p == param {
			known = true
			break
		}
	}
	if !known {
		return Ignored{Reason: ReasonForeignHeader}
	}

	dash := strings.LastIndexByte(volume, '-')
	if dash <= 0 || dash == len(volume)-1 {
		return Ignored{Reason: ReasonBadVolume}
	}
	return VolumeHeader{Param: param, Volume: volume}
}

func parseSample(label, rest string) Record {
	samples, ok := tokenValue(rest, "samples:")
	if !ok {
		return Ignored{Reason: ReasonNoSamples}
	}

	field := types.NormalizeLabel(label)
	if field.Kind() != types.KindCountBytes {
		return FieldSample{Field: field, Samples: samples}
	}

	sum, ok := tokenValue(rest, "sum:")
	if !ok {
		return Ignored{Reason: ReasonNoSum}
	}
	return FieldSample{Field: field, Samples: samples, Sum: sum, HasSum: true}
}

// tokenValue finds key as a whole word in s and parses the unsigned integer
// that follows it.
func tokenValue(s, key string) (uint64, bool) {
	for from := 0; ; {
		i := strings.Index(s[from:], key)
		if i < 0 {
			return 0, false
		}
		i += from
		from = i + len(key)
		if i > 0 && isWordByte(s[i-1]) {
			continue
		}

		digits := strings.TrimLeft(s[from:], " \t")
		n := 0
		for n < len(digits) && digits[n] >= '0' && digits[n] <= '9' {
			n++
		}
		if n == 0 {
			return 0, false
		}
		v, err := strconv.ParseUint(digits[:n], 10, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Scan parses every line read from r and hands each record to fn in order.
func Scan(domain types.Domain, r io.Reader, fn func(Record)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fn(Parse(domain, scanner.Text()))
	}
	return scanner.Err()
}
