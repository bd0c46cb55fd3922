package config

import (
	"fmt"
	"time"

	"github.com/grovetools/remit/errors"
	"github.com/grovetools/remit/util/pathutil"
	"github.com/mitchellh/mapstructure"
)

//go:generate sh -c "cd .. && go run ./tools/schema-generator/"

// Server modes mirror the DEMO_MODE / REAL_TRANSACTIONS switches of the HTTP API.
const (
	ModeDemo     = "demo"
	ModeReal     = "real"
	ModeDisabled = "disabled"
)

// DefaultReceiverIBAN is the account served by GET /api/receiver-iban.
const DefaultReceiverIBAN = "AO06000600000100037131174"

// Config is the root of remit.yml.
type Config struct {
	Version     string            `yaml:"version,omitempty" toml:"version,omitempty" jsonschema:"description=Configuration version (e.g. '1.0')"`
	Browser     BrowserConfig     `yaml:"browser,omitempty" toml:"browser,omitempty" jsonschema:"description=How the control target browser is launched and found again"`
	Timeouts    TimeoutsConfig    `yaml:"timeouts,omitempty" toml:"timeouts,omitempty" jsonschema:"description=Bounded waits of the transfer steps"`
	OTP         OTPConfig         `yaml:"otp,omitempty" toml:"otp,omitempty" jsonschema:"description=OTP wait coordinator settings"`
	Store       StoreConfig       `yaml:"store,omitempty" toml:"store,omitempty" jsonschema:"description=Session record storage"`
	Server      ServerConfig      `yaml:"server,omitempty" toml:"server,omitempty" jsonschema:"description=HTTP API served by 'remit serve'"`
	Screenshots ScreenshotsConfig `yaml:"screenshots,omitempty" toml:"screenshots,omitempty" jsonschema:"description=Failure screenshots"`
	BanksFile   string            `yaml:"banks_file,omitempty" toml:"banks_file,omitempty" jsonschema:"description=Extra bank table (YAML or TOML) merged over the built-in banks by id"`

	// Extensions holds sections owned by other packages (e.g. logging).
	Extensions map[string]interface{} `yaml:",inline" toml:"-" jsonschema:"-"`
}

// BrowserConfig describes the control target.
type BrowserConfig struct {
	Binary         string        `yaml:"binary,omitempty" toml:"binary,omitempty" jsonschema:"description=Chrome/Chromium executable; looked up on PATH when empty"`
	Headless       bool          `yaml:"headless,omitempty" toml:"headless,omitempty"`
	DebugPorts     []int         `yaml:"debug_ports,omitempty" toml:"debug_ports,omitempty" jsonschema:"description=Well-known local ports probed for a DevTools endpoint"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout,omitempty" toml:"probe_timeout,omitempty" jsonschema:"description=Per-port probe timeout"`
	LaunchTimeout  time.Duration `yaml:"launch_timeout,omitempty" toml:"launch_timeout,omitempty" jsonschema:"description=How long a fresh browser may take to expose its endpoint"`
	UserDataDir    string        `yaml:"user_data_dir,omitempty" toml:"user_data_dir,omitempty" jsonschema:"description=Profile directory; a throwaway one is created when empty"`
	ExtraArgs      []string      `yaml:"extra_args,omitempty" toml:"extra_args,omitempty"`
	StrictLocation bool          `yaml:"strict_location,omitempty" toml:"strict_location,omitempty" jsonschema:"description=Treat a location mismatch after reattach as a failed reattach instead of re-navigating"`
}

// TimeoutsConfig bounds every UI wait.
type TimeoutsConfig struct {
	Field        time.Duration `yaml:"field,omitempty" toml:"field,omitempty" jsonschema:"description=Wait for required fields and buttons"`
	OTPDetect    time.Duration `yaml:"otp_detect,omitempty" toml:"otp_detect,omitempty" jsonschema:"description=Wait per OTP field selector"`
	Dialog       time.Duration `yaml:"dialog,omitempty" toml:"dialog,omitempty" jsonschema:"description=Wait for optional confirmation dialogs"`
	Verify       time.Duration `yaml:"verify,omitempty" toml:"verify,omitempty" jsonschema:"description=Wait for the result indicator"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty" toml:"poll_interval,omitempty" jsonschema:"description=Element lookup retry interval"`
}

// OTPConfig bounds the wait for a human-supplied code.
type OTPConfig struct {
	Wait         time.Duration `yaml:"wait,omitempty" toml:"wait,omitempty" jsonschema:"description=Overall wait before the session expires"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty" toml:"poll_interval,omitempty"`
}

// StoreConfig locates the session records.
type StoreConfig struct {
	Dir string `yaml:"dir,omitempty" toml:"dir,omitempty" jsonschema:"description=Session record directory; defaults to the XDG state dir"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string `yaml:"addr,omitempty" toml:"addr,omitempty"`
	Mode         string `yaml:"mode,omitempty" toml:"mode,omitempty" jsonschema:"enum=demo,enum=real,enum=disabled"`
	ReceiverIBAN string `yaml:"receiver_iban,omitempty" toml:"receiver_iban,omitempty"`

	// AllowedOrigins lists the browser origins allowed to call the API.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" toml:"allowed_origins,omitempty" jsonschema:"description=CORS origins of the web front end"`
}

// ScreenshotsConfig controls failure screenshots.
type ScreenshotsConfig struct {
	Disabled bool   `yaml:"disabled,omitempty" toml:"disabled,omitempty"`
	Dir      string `yaml:"dir,omitempty" toml:"dir,omitempty"`
}

// ExpandPaths expands ~ and environment variables in the path-valued fields
// and makes them absolute against the working directory.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{&c.BanksFile, &c.Store.Dir, &c.Screenshots.Dir, &c.Browser.UserDataDir} {
		expanded, err := pathutil.Expand(*p)
		if err != nil {
			return errors.ConfigInvalid(err.Error())
		}
		*p = expanded
	}
	return nil
}

// SetDefaults fills every zero value with its default.
func (c *Config) SetDefaults() {
	if len(c.Browser.DebugPorts) == 0 {
		c.Browser.DebugPorts = []int{9222, 9223, 9224, 9225, 9226}
	}
	if c.Browser.ProbeTimeout == 0 {
		c.Browser.ProbeTimeout = time.Second
	}
	if c.Browser.LaunchTimeout == 0 {
		c.Browser.LaunchTimeout = 20 * time.Second
	}
	if c.Timeouts.Field == 0 {
		c.Timeouts.Field = 160 * time.Second
	}
	if c.Timeouts.OTPDetect == 0 {
		c.Timeouts.OTPDetect = 8 * time.Second
	}
	if c.Timeouts.Dialog == 0 {
		c.Timeouts.Dialog = 10 * time.Second
	}
	if c.Timeouts.Verify == 0 {
		c.Timeouts.Verify = 20 * time.Second
	}
	if c.Timeouts.PollInterval == 0 {
		c.Timeouts.PollInterval = 500 * time.Millisecond
	}
	if c.OTP.Wait == 0 {
		c.OTP.Wait = 300 * time.Second
	}
	if c.OTP.PollInterval == 0 {
		c.OTP.PollInterval = time.Second
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:3001"
	}
	if c.Server.Mode == "" {
		c.Server.Mode = ModeDisabled
	}
	if c.Server.ReceiverIBAN == "" {
		c.Server.ReceiverIBAN = DefaultReceiverIBAN
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:3000", "http://127.0.0.1:5173"}
	}
}

// Validate checks constraints the schema cannot express.
func (c *Config) Validate() error {
	for _, port := range c.Browser.DebugPorts {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("browser.debug_ports: invalid port %d", port)
		}
	}
	if c.OTP.PollInterval > c.OTP.Wait {
		return fmt.Errorf("otp.poll_interval (%s) exceeds otp.wait (%s)", c.OTP.PollInterval, c.OTP.Wait)
	}
	switch c.Server.Mode {
	case ModeDemo, ModeReal, ModeDisabled:
	default:
		return fmt.Errorf("server.mode: unknown mode %q", c.Server.Mode)
	}
	return nil
}

// UnmarshalExtension decodes an extension section into target.
// A missing section leaves target untouched.
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}
