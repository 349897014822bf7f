// Package source acquires raw job_stats text from a Lustre/FEFS server,
// either through lctl, straight from /proc, or from saved snapshots.
package source

import (
	"bufio"
	"bytes"
	"path/filepath"
	"sort"

	"github.com/fefsmon/jobrate/internal/parser"
	"github.com/fefsmon/jobrate/pkg/types"
)

// DefaultProcRoot is where Lustre publishes its tunables.
const DefaultProcRoot = "/proc/fs/lustre"

// target is one lctl parameter family that publishes job_stats, e.g. the
// "mdt" in "mdt.lustre-MDT0000.job_stats".
type target struct {
	param string
	dir   string
}

var targets = map[types.Domain][]target{
	types.DomainMDT: {{param: "mdt", dir: "mdt"}, {param: "mds", dir: "mds"}},
	types.DomainOST: {{param: "obdfilter", dir: "obdfilter"}},
}

// jobStatsFiles returns the job_stats files of t under procRoot in sorted
// order. A missing directory simply has no matches.
func jobStatsFiles(procRoot string, t target) []string {
	matches, _ := filepath.Glob(filepath.Join(procRoot, t.dir, "*", "job_stats"))
	sort.Strings(matches)
	return matches
}

// splitLines breaks command or file output into tagged lines.
func splitLines(d types.Domain, data []byte) []types.Line {
	var lines []types.Line
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, types.Line{Domain: d, Text: sc.Text()})
	}
	return lines
}

// TagLines assigns each line of a mixed dump to the domain of the volume
// header above it. Lines before the first recognized header take the first
// domain, where the controller treats them as out of scope.
func TagLines(domains []types.Domain, data []byte) []types.Line {
	if len(domains) == 0 {
		return nil
	}
	current := domains[0]
	lines := splitLines(current, data)
	for i := range lines {
		for _, d := range domains {
			if _, ok := parser.Parse(d, lines[i].Text).(parser.VolumeHeader); ok {
				current = d
				break
			}
		}
		lines[i].Domain = current
	}
	return lines
}
