/*
Package types provides the shared data model of jobrate: accounting domains,
field profiles, interval result rows and the interfaces that connect sources
and sinks to the interval pipeline.

# Architecture Overview

jobrate turns cumulative job_stats counters into per-interval deltas:

	┌─────────────────────────────────────────────┐
	│            Source (lctl / proc)             │
	│             (internal/source)               │
	└─────────────────────────────────────────────┘
	                      │ []Line
	┌─────────────────────────────────────────────┐
	│        Interval Lifecycle Controller        │
	│            (internal/interval)              │
	└─────────────────────────────────────────────┘
	     │           │            │           │
	┌────┴───┐ ┌─────┴────┐ ┌─────┴───┐ ┌─────┴─────┐
	│ Parser │ │  Filter  │ │  Delta  │ │ Aggregate │
	└────────┘ └──────────┘ └─────────┘ └───────────┘
	                      │ Snapshot
	┌─────────────────────────────────────────────┐
	│      Sinks (internal/report, metrics)       │
	└─────────────────────────────────────────────┘

# Domains and Profiles

A Domain is one of the two accounting subsystems (mdt or ost). Each domain
reports an ordered list of canonical fields, chosen by a Profile: the current
list of the Lustre 2.6 based releases or the reduced legacy list of the 1.8
based releases. CanonicalFields returns that list; every Row in a Snapshot
carries all of its fields.

# Fields

read and write are count+bytes fields: the job_stats line carries both a call
count ("samples") and a cumulative byte sum ("sum"), reported under the
companion fields read_bytes and write_bytes. All other fields are count-only.
Names outside the canonical list are aggregated under their own key.

# Snapshots

Snapshot is the immutable three-level result of one interval:

	Fleet                     (sum of all volume totals)
	Volumes[id].Total         (sum of the volume's jobs)
	Volumes[id].Jobs[jobid]   (per-job deltas)
*/
package types
