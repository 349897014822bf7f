/*
Package config provides configuration management for jobrate.

Settings come from four layers, later layers overriding earlier ones:

	┌─────────────────────────────────────────────┐
	│        Collector option string              │ ← Highest Priority
	│   (mdt=vol/vol,v,fs=a/b,jobid=x/y)          │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│        Environment Variables                │
	│           (JOBRATE_*)                       │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration File                  │
	│            (YAML format)                    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	└─────────────────────────────────────────────┘

Load applies all four and validates the result.

# Validation

Besides value ranges, Validate enforces the filter rules of the collector:

  - a filesystem filter and a volume filter can't be combined (CONFIG_CONFLICT)
  - a filesystem or volume filter needs detail or verbose mode
  - a job filter needs verbose mode

ParseOptions additionally rejects unknown options, both mdt and ost, both d
and v, and an option string naming neither mdt nor ost.

# Reload

Watcher follows the configuration file with fsnotify. Each change is
debounced, reloaded through the caller's load function and, if it
validates, handed to a callback. The monitor uses this to stage new filter
criteria for the next interval.

# File format

	global:
	  log_level: INFO
	  log_format: text
	  interval: 10s
	  component_levels:       # per logger component
	    source: DEBUG
	    report: WARN

	collector:
	  domains: [mdt, ost]
	  profile: current        # or legacy for 1.8 based servers
	  mode: verbose
	  filters:
	    filesystems: [scratch]
	    jobs: [analysis]

	source:
	  kind: lctl              # lctl, proc or file
	  lctl_path: /usr/sbin/lctl
	  timeout: 10s
	  retry:
	    max_attempts: 3
	    initial_delay: 200ms
	    max_delay: 2s
	  breaker:
	    failure_threshold: 5
	    timeout: 1m

	report:
	  enabled: true
	  format: text            # or plot
	  header_every: 20

	metrics:
	  enabled: true
	  address: ":9464"
	  path: /metrics
	  namespace: jobrate

	health:
	  error_threshold: 3        # consecutive failures before degraded
	  unavailable_threshold: 10
	  recovery_threshold: 2
*/
package config
