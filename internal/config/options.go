package config

import (
	"sort"
	"strings"

	"github.com/fefsmon/jobrate/internal/filter"
	"github.com/fefsmon/jobrate/pkg/errors"
	"github.com/fefsmon/jobrate/pkg/types"
)

// ParseOptions applies a collectl style option string such as
// "mdt=fsA-MDT0000/fsA-MDT0001,v,jobid=analysis" to the configuration.
//
//	mdt[=vol/vol]  collect the metadata domain, optionally only these volumes
//	ost[=vol/vol]  collect the object storage domain, optionally only these volumes
//	d              one row per volume
//	v              one row per job
//	fs=a/b         only volumes of these filesystems
//	jobid=x/y      only these jobs
//
// Exactly one of mdt and ost is required. Options that only clash with each
// other are rejected here; combinations that depend on the resulting mode are
// left to Validate.
func (c *Configuration) ParseOptions(opts string) error {
	values := make(map[string]string)
	var unknown []string

	for _, opt := range strings.Split(opts, ",") {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		name, value, _ := strings.Cut(opt, "=")
		switch name {
		case "mdt", "ost", "d", "v", "fs", "jobid":
			values[name] = value
		default:
			unknown = append(unknown, name)
		}
	}

	if len(unknown) > 0 {
		sort.Strings(unknown)
		return optionError(errors.ErrCodeInvalidConfig, "invalid option(s): %s", strings.Join(unknown, ", "))
	}

	_, hasD := values["d"]
	_, hasV := values["v"]
	if hasD && hasV {
		return optionError(errors.ErrCodeConfigConflict, "v and d options can't be used at the same time")
	}

	mdtVols, hasMDT := values["mdt"]
	ostVols, hasOST := values["ost"]
	if hasMDT && hasOST {
		return optionError(errors.ErrCodeConfigConflict, "mdt and ost options can't be used at the same time")
	}
	if !hasMDT && !hasOST {
		return optionError(errors.ErrCodeInvalidConfig, "mdt or ost option is required")
	}

	criteria := filter.Criteria{
		Filesystems: filter.ParsePatterns(values["fs"]),
		Jobs:        filter.ParsePatterns(values["jobid"]),
	}
	domain := types.DomainMDT
	criteria.Volumes = filter.ParsePatterns(mdtVols)
	if hasOST {
		domain = types.DomainOST
		criteria.Volumes = filter.ParsePatterns(ostVols)
	}
	if len(criteria.Filesystems) > 0 && len(criteria.Volumes) > 0 {
		return optionError(errors.ErrCodeConfigConflict, "can't specify a volume when you use fs option")
	}

	mode := types.ModeSummary
	switch {
	case hasD:
		mode = types.ModeDetail
	case hasV:
		mode = types.ModeVerbose
	}

	c.Collector.Domains = []string{string(domain)}
	c.Collector.Mode = string(mode)
	c.Collector.Filters = criteria
	return nil
}

func optionError(code errors.ErrorCode, format string, args ...interface{}) error {
	return errors.Newf(code, format, args...).
		WithComponent("config").
		WithOperation("parse_options")
}
