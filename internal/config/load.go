package config

// Load builds a configuration from defaults, then the YAML file at path (if
// any), then JOBRATE_* variables, then the option string (if any), and
// validates the result.
func Load(path, options string) (*Configuration, error) {
	cfg := NewDefault()
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if options != "" {
		if err := cfg.ParseOptions(options); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
