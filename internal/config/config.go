package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"roomsign/internal/feed"
	"roomsign/internal/schedule"
)

// DefaultFeedURL is the veyepar schedule export.
const DefaultFeedURL = "https://portal.nextdayvideo.com.au/main/C/{client}/S/{show}.json"

// FeedConfig describes where the schedule comes from and how to read it.
type FeedConfig struct {
	// URL may contain {client} and {show} placeholders.
	URL    string `yaml:"url" json:"url"`
	Client string `yaml:"client" json:"client"`
	Show   string `yaml:"show" json:"show"`

	// Schema is one of flat-array-seconds, flat-array-minutes,
	// day-partitioned-v1.3 or ical.
	Schema string `yaml:"schema" json:"schema"`

	CacheDir       string `yaml:"cache_dir" json:"cache_dir"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	StaleFallback  bool   `yaml:"stale_fallback" json:"stale_fallback"`

	// HorizonDays bounds recurrence expansion for ical feeds.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`
}

// PolicyConfig holds the end-window policy and its constants.
type PolicyConfig struct {
	// Kind is raw, capped or early-cutoff.
	Kind            string `yaml:"kind" json:"kind"`
	MaxDurationSecs int    `yaml:"max_duration_secs" json:"max_duration_secs"`
	CutoffSecs      int    `yaml:"cutoff_secs" json:"cutoff_secs"`
	FloorSecs       int    `yaml:"floor_secs" json:"floor_secs"`
}

// DisplayConfig controls presentation.
type DisplayConfig struct {
	// Refresh is a cron spec for the display tick.
	Refresh string `yaml:"refresh" json:"refresh"`

	StartingSoonSecs   int  `yaml:"starting_soon_secs" json:"starting_soon_secs"`
	NextEventRemaining bool `yaml:"next_event_remaining" json:"next_event_remaining"`

	Locale   string `yaml:"locale" json:"locale"`
	Hour12   *bool  `yaml:"hour12,omitempty" json:"hour12,omitempty"`
	TimeCaps bool   `yaml:"time_caps" json:"time_caps"`

	// WrapWidth is the column width of the terminal sink; 0 disables it.
	WrapWidth int `yaml:"wrap_width" json:"wrap_width"`
}

// CaptureConfig controls periodic PNG snapshots of the kiosk page.
type CaptureConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Cron        string `yaml:"cron" json:"cron"`
	OutputPath  string `yaml:"output_path" json:"output_path"`
	Width       int    `yaml:"width" json:"width"`
	Height      int    `yaml:"height" json:"height"`
	TimeoutSecs int    `yaml:"timeout_secs" json:"timeout_secs"`

	// Monochrome reduces the capture to black and white for e-paper
	// panels; Invert treats light pixels as ink. RawPath, if set, also
	// receives the packed 1bpp plane.
	Monochrome bool   `yaml:"monochrome" json:"monochrome"`
	Invert     bool   `yaml:"invert" json:"invert"`
	Threshold  uint8  `yaml:"threshold" json:"threshold"`
	RawPath    string `yaml:"raw_path" json:"raw_path"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the kiosk page and API.
	// Defaults to 127.0.0.1:8080; captures load the kiosk page from it.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used for naive feed timestamps and for
	// displayed times.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Room is the default room name or slug.
	Room string `yaml:"room" json:"room"`

	// ClockOnly skips the feed and shows a clock plus Message.
	ClockOnly bool   `yaml:"clock_only" json:"clock_only"`
	Message   string `yaml:"message" json:"message"`

	// TimeWarp is a fixed offset added to the real clock (Go duration,
	// e.g. "-36h"). LoadTime, an RFC 3339 instant, sets the offset so that
	// startup happens at that instant; it wins over TimeWarp.
	TimeWarp string `yaml:"time_warp" json:"time_warp"`
	LoadTime string `yaml:"load_time" json:"load_time"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Feed    FeedConfig    `yaml:"feed" json:"feed"`
	Policy  PolicyConfig  `yaml:"policy" json:"policy"`
	Display DisplayConfig `yaml:"display" json:"display"`
	Capture CaptureConfig `yaml:"capture" json:"capture"`

	// RateLimit caps /api/* requests per second across all clients, with
	// RateBurst headroom. Negative disables the limit.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" json:"rate_burst"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values so that partially-filled configs
// still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RateLimit == 0 {
		c.RateLimit = 20
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 40
	}

	if c.Feed.URL == "" {
		c.Feed.URL = DefaultFeedURL
	}
	if c.Feed.Schema == "" {
		c.Feed.Schema = string(feed.SchemaFlatSeconds)
	}
	if c.Feed.CacheDir == "" {
		c.Feed.CacheDir = "./var/feed-cache"
	}
	if c.Feed.TimeoutSeconds <= 0 {
		c.Feed.TimeoutSeconds = 30
	}
	if c.Feed.HorizonDays <= 0 {
		c.Feed.HorizonDays = 14
	}

	if c.Policy.Kind == "" {
		c.Policy.Kind = string(schedule.PolicyCapped)
	}
	if c.Policy.MaxDurationSecs <= 0 {
		c.Policy.MaxDurationSecs = int(schedule.DefaultMaxDuration / time.Second)
	}
	if c.Policy.CutoffSecs <= 0 {
		c.Policy.CutoffSecs = int(schedule.DefaultCutoff / time.Second)
	}
	if c.Policy.FloorSecs <= 0 {
		c.Policy.FloorSecs = int(schedule.DefaultFloor / time.Second)
	}

	if c.Display.Refresh == "" {
		c.Display.Refresh = "@every 1s"
	}
	if c.Display.StartingSoonSecs <= 0 {
		c.Display.StartingSoonSecs = 60
	}
	if c.Display.Locale == "" {
		c.Display.Locale = "en-AU"
	}
	if c.Display.Hour12 == nil {
		h := true
		c.Display.Hour12 = &h
	}
	if c.Display.WrapWidth < 0 {
		c.Display.WrapWidth = 0
	}

	if c.Capture.Cron == "" {
		c.Capture.Cron = "*/5 * * * *"
	}
	if c.Capture.OutputPath == "" {
		c.Capture.OutputPath = "./var/preview.png"
	}
	if c.Capture.TimeoutSecs <= 0 {
		c.Capture.TimeoutSecs = 30
	}
}

// Validate checks values that Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := feed.ParseSchemaKind(c.Feed.Schema); err != nil {
		errs = append(errs, err)
	}
	if _, err := schedule.ParsePolicyKind(c.Policy.Kind); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Offset(time.Now()); err != nil {
		errs = append(errs, err)
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("timezone: %w", err))
		}
	}
	return errors.Join(errs...)
}

// EndWindowPolicy builds the resolver policy from the policy section.
func (c *Config) EndWindowPolicy() (schedule.EndWindowPolicy, error) {
	kind, err := schedule.ParsePolicyKind(c.Policy.Kind)
	if err != nil {
		return schedule.EndWindowPolicy{}, err
	}
	return schedule.EndWindowPolicy{
		Kind:        kind,
		MaxDuration: time.Duration(c.Policy.MaxDurationSecs) * time.Second,
		Cutoff:      time.Duration(c.Policy.CutoffSecs) * time.Second,
		Floor:       time.Duration(c.Policy.FloorSecs) * time.Second,
	}, nil
}

// Offset returns the time-warp offset relative to now.
func (c *Config) Offset(now time.Time) (time.Duration, error) {
	if c.LoadTime != "" {
		lt, err := time.Parse(time.RFC3339, c.LoadTime)
		if err != nil {
			return 0, fmt.Errorf("load_time: %w", err)
		}
		return lt.Sub(now), nil
	}
	if c.TimeWarp != "" {
		d, err := time.ParseDuration(c.TimeWarp)
		if err != nil {
			return 0, fmt.Errorf("time_warp: %w", err)
		}
		return d, nil
	}
	return 0, nil
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// FeedURL expands the feed URL template.
func (c *Config) FeedURL() string {
	return feed.BuildURL(c.Feed.URL, c.Feed.Client, c.Feed.Show)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".roomsign-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
