package types

import (
	"fmt"
	"strings"
)

// Domain identifies one of the two job_stats accounting subsystems.
type Domain string

const (
	// DomainMDT covers metadata targets (job-oriented metadata operations)
	DomainMDT Domain = "mdt"
	// DomainOST covers object storage targets (data operations)
	DomainOST Domain = "ost"
)

// Domains lists every supported accounting domain in display order.
var Domains = []Domain{DomainMDT, DomainOST}

// ParseDomain parses a domain name, case-insensitively
func ParseDomain(s string) (Domain, error) {
	switch Domain(strings.ToLower(strings.TrimSpace(s))) {
	case DomainMDT:
		return DomainMDT, nil
	case DomainOST:
		return DomainOST, nil
	default:
		return "", fmt.Errorf("unknown domain: %q (must be mdt or ost)", s)
	}
}

// ParamPrefixes returns the lctl parameter prefixes that publish job_stats
// for this domain, e.g. "mdt" in "mdt.lustre-MDT0000.job_stats".
func (d Domain) ParamPrefixes() []string {
	switch d {
	case DomainMDT:
		return []string{"mdt", "mds"}
	case DomainOST:
		return []string{"obdfilter", "ost"}
	default:
		return nil
	}
}

// VolumeLabel returns the column heading used for volume names.
func (d Domain) VolumeLabel() string {
	if d == DomainOST {
		return "OST_NAME"
	}
	return "MDT_NAME"
}

// Profile selects which canonical field list a domain reports.
type Profile string

const (
	// ProfileCurrent is the field set of the Lustre 2.6 based releases
	ProfileCurrent Profile = "current"
	// ProfileLegacy is the reduced field set of the Lustre 1.8 based releases
	ProfileLegacy Profile = "legacy"
)

// ParseProfile parses a profile name. The release numbers "2.6" and "1.8"
// are accepted as aliases.
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "current", "2.6":
		return ProfileCurrent, nil
	case "legacy", "1.8":
		return ProfileLegacy, nil
	default:
		return "", fmt.Errorf("unknown profile: %q (must be current or legacy)", s)
	}
}

// Field is the name of one job_stats counter.
type Field string

// Canonical field names.
const (
	FieldOpen           Field = "open"
	FieldClose          Field = "close"
	FieldMknod          Field = "mknod"
	FieldLink           Field = "link"
	FieldUnlink         Field = "unlink"
	FieldMkdir          Field = "mkdir"
	FieldRmdir          Field = "rmdir"
	FieldRename         Field = "rename"
	FieldGetattr        Field = "getattr"
	FieldSetattr        Field = "setattr"
	FieldGetxattr       Field = "getxattr"
	FieldSetxattr       Field = "setxattr"
	FieldStatfs         Field = "statfs"
	FieldSync           Field = "sync"
	FieldSamedirRename  Field = "samedir_rename"
	FieldCrossdirRename Field = "crossdir_rename"

	FieldRead       Field = "read"
	FieldReadBytes  Field = "read_bytes"
	FieldWrite      Field = "write"
	FieldWriteBytes Field = "write_bytes"
	FieldPunch      Field = "punch"
	FieldDestroy    Field = "destroy"
	FieldCreate     Field = "create"
	FieldGetInfo    Field = "get_info"
	FieldSetInfo    Field = "set_info"
	FieldQuotactl   Field = "quotactl"
)

// FieldKind tells whether a counter carries a byte-sum companion.
type FieldKind int

const (
	// KindCountOnly is a single monotonic operation counter
	KindCountOnly FieldKind = iota
	// KindCountBytes is an operation counter paired with a cumulative byte sum
	KindCountBytes
)

var bytesCompanions = map[Field]Field{
	FieldRead:  FieldReadBytes,
	FieldWrite: FieldWriteBytes,
}

// Kind reports whether f is paired with a byte-sum companion.
func (f Field) Kind() FieldKind {
	if _, ok := bytesCompanions[f]; ok {
		return KindCountBytes
	}
	return KindCountOnly
}

// BytesCompanion returns the byte-sum field paired with f, if any.
func (f Field) BytesCompanion() (Field, bool) {
	c, ok := bytesCompanions[f]
	return c, ok
}

// IsBytes reports whether f is a byte-sum companion field.
func (f Field) IsBytes() bool {
	for _, c := range bytesCompanions {
		if c == f {
			return true
		}
	}
	return false
}

// NormalizeLabel maps a raw job_stats label to the count field it feeds.
// Newer releases label the read/write lines "read_bytes"/"write_bytes" while
// still carrying the call count in "samples".
func NormalizeLabel(label string) Field {
	f := Field(label)
	for count, companion := range bytesCompanions {
		if f == companion {
			return count
		}
	}
	return f
}

var canonicalFields = map[Domain]map[Profile][]Field{
	DomainMDT: {
		ProfileCurrent: {
			FieldOpen, FieldClose, FieldMknod, FieldLink, FieldUnlink, FieldMkdir,
			FieldRmdir, FieldRename, FieldGetattr, FieldSetattr, FieldGetxattr,
			FieldSetxattr, FieldStatfs, FieldSync, FieldSamedirRename, FieldCrossdirRename,
		},
		ProfileLegacy: {
			FieldOpen, FieldClose, FieldMknod, FieldLink, FieldUnlink, FieldMkdir,
			FieldRmdir, FieldRename, FieldGetattr, FieldSetattr, FieldGetxattr,
			FieldSetxattr, FieldStatfs, FieldSync,
		},
	},
	DomainOST: {
		ProfileCurrent: {
			FieldRead, FieldReadBytes, FieldWrite, FieldWriteBytes, FieldGetattr,
			FieldSetattr, FieldPunch, FieldSync, FieldDestroy, FieldCreate,
			FieldStatfs, FieldGetInfo, FieldSetInfo, FieldQuotactl,
		},
		ProfileLegacy: {
			FieldRead, FieldReadBytes, FieldWrite, FieldWriteBytes,
			FieldSetattr, FieldPunch, FieldSync,
		},
	},
}

// CanonicalFields returns a copy of the ordered field list reported for the
// domain under the given profile. Unknown combinations return nil.
func CanonicalFields(d Domain, p Profile) []Field {
	fields := canonicalFields[d][p]
	if fields == nil {
		return nil
	}
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// Mode selects how much of a snapshot is reported.
type Mode string

const (
	// ModeSummary reports the fleet row only
	ModeSummary Mode = "summary"
	// ModeDetail reports one row per volume
	ModeDetail Mode = "detail"
	// ModeVerbose reports one row per job
	ModeVerbose Mode = "verbose"
)

// ParseMode parses a report mode. The single letters "d" and "v" are
// accepted as aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "summary", "s":
		return ModeSummary, nil
	case "detail", "d":
		return ModeDetail, nil
	case "verbose", "v":
		return ModeVerbose, nil
	default:
		return "", fmt.Errorf("unknown mode: %q (must be summary, detail or verbose)", s)
	}
}
