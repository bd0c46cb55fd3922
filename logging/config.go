package logging

// Config defines the structure for the `logging` section of remit.yml.
type Config struct {
	// Level is the minimum log level to output (e.g., "debug", "info", "warn", "error").
	// Can be overridden by the REMIT_LOG_LEVEL environment variable.
	Level string `yaml:"level" json:"level,omitempty" jsonschema:"enum=trace,enum=debug,enum=info,enum=warn,enum=error"`

	// ReportCaller, if true, includes the file, line, and function name in the log output.
	ReportCaller bool `yaml:"report_caller" json:"report_caller,omitempty"`

	// File configures logging to a file.
	File FileSinkConfig `yaml:"file" json:"file,omitempty"`

	// Format configures the appearance of the log output.
	Format FormatConfig `yaml:"format" json:"format,omitempty"`
}

// FileSinkConfig configures the file logging sink.
type FileSinkConfig struct {
	// Disabled turns the file sink off. It is on by default so `remit logs` has something to read.
	Disabled bool `yaml:"disabled" json:"disabled,omitempty"`
	// Path overrides the default <state>/logs/remit-<date>.log.
	Path string `yaml:"path" json:"path,omitempty"`
	// Format is "text" (default) or "json".
	Format string `yaml:"format,omitempty" json:"format,omitempty" jsonschema:"enum=text,enum=json"`
}

// FormatConfig controls the log output format.
type FormatConfig struct {
	// Preset can be "default" (rich text), "simple" (minimal text), or "json".
	Preset           string `yaml:"preset" json:"preset,omitempty" jsonschema:"enum=default,enum=simple,enum=json"`
	DisableTimestamp bool `yaml:"disable_timestamp" json:"disable_timestamp,omitempty"`
	DisableComponent bool `yaml:"disable_component" json:"disable_component,omitempty"`
	// StructuredToStderr controls when structured logs are sent to stderr.
	// Can be "auto" (default), "always", or "never".
	StructuredToStderr string `yaml:"structured_to_stderr" json:"structured_to_stderr,omitempty" jsonschema:"enum=auto,enum=always,enum=never"`
	// Colors forces ANSI colours on or off in the text formatter. It is set by the logger, not by config.
	Colors bool `yaml:"-" json:"-"`
}
