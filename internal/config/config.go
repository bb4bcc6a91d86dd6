package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"liffsurvey/internal/survey"
)

const (
	// FileName is the config file looked up in the workspace.
	FileName = "liffsurvey.yml"

	// PlaceholderLIFFID and PlaceholderUpstreamURL mark values never filled in.
	PlaceholderLIFFID      = "your-liff-id-here"
	PlaceholderUpstreamURL = "YOUR_GOOGLE_APPS_SCRIPT_WEB_APP_URL"

	DefaultTimeoutSeconds         = 15
	DefaultUpstreamTimeoutSeconds = 30
	DefaultPort                   = 3000
	DefaultMaxTextLength          = 1000
	DefaultTimeZone               = "Asia/Taipei"
	SurveyPath                    = "/liff/survey"
)

// Config models liffsurvey.yml. It is built once at startup and shared
// read-only by the controller, relay and proxy.
type Config struct {
	LIFF struct {
		ID            string `yaml:"id"`
		URL           string `yaml:"url"`
		ChannelID     string `yaml:"channel_id,omitempty"`
		ChannelSecret string `yaml:"channel_secret,omitempty"`
	} `yaml:"liff"`
	Upstream struct {
		URL           string `yaml:"url"`
		SpreadsheetID string `yaml:"spreadsheet_id,omitempty"`
	} `yaml:"upstream"`
	API struct {
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"api"`
	Proxy struct {
		Port                   int      `yaml:"port"`
		AllowedOrigins         []string `yaml:"allowed_origins"`
		UpstreamTimeoutSeconds int      `yaml:"upstream_timeout_seconds"`
	} `yaml:"proxy"`
	App struct {
		Name     string `yaml:"name"`
		Version  string `yaml:"version"`
		Debug    bool   `yaml:"debug"`
		LogLevel string `yaml:"log_level"`
		TimeZone string `yaml:"time_zone"`
	} `yaml:"app"`
	Survey struct {
		Title       string         `yaml:"title"`
		Description string         `yaml:"description"`
		Sections    []Section      `yaml:"sections"`
		Fields      []survey.Field `yaml:"fields"`
	} `yaml:"survey"`
	Validation struct {
		RequiredFields []string `yaml:"required_fields"`
		MaxTextLength  int      `yaml:"max_text_length"`
		PhoneField     string   `yaml:"phone_field"`
		PhonePattern   string   `yaml:"phone_pattern"`
	} `yaml:"validation"`
	Styles Styles `yaml:"styles"`

	phone    *regexp.Regexp
	location *time.Location
}

type Section struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Required bool   `yaml:"required"`
}

type Styles struct {
	PrimaryColor   string `yaml:"primary_color"`
	SecondaryColor string `yaml:"secondary_color"`
	SuccessColor   string `yaml:"success_color"`
	ErrorColor     string `yaml:"error_color"`
}

// Overrides carries environment and flag values applied on top of the file.
// Empty strings and nil pointers leave the file value untouched.
type Overrides struct {
	LIFFID         string
	UpstreamURL    string
	APIBaseURL     string
	AllowedOrigins string
	Port           int
	Debug          *bool
}

// Apply copies non-empty overrides into c and revalidates.
func (c *Config) Apply(o Overrides) error {
	if o.LIFFID != "" {
		c.LIFF.ID = o.LIFFID
	}
	if o.UpstreamURL != "" {
		c.Upstream.URL = o.UpstreamURL
	}
	if o.APIBaseURL != "" {
		c.API.BaseURL = o.APIBaseURL
	}
	if origins := ParseOrigins(o.AllowedOrigins); len(origins) > 0 {
		c.Proxy.AllowedOrigins = origins
	}
	if o.Port > 0 {
		c.Proxy.Port = o.Port
	}
	if o.Debug != nil {
		c.App.Debug = *o.Debug
	}
	return c.Validate()
}

// ParseOrigins splits a comma-separated allow-list, dropping blanks.
func ParseOrigins(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate ensures the config meets required structure and compiles the
// derived values (phone pattern, time zone).
func (c *Config) Validate() error {
	if err := checkURL("upstream.url", c.Upstream.URL); err != nil {
		return err
	}
	if err := checkURL("api.base_url", c.API.BaseURL); err != nil {
		return err
	}
	if c.API.TimeoutSeconds < 0 {
		return fmt.Errorf("api.timeout_seconds must not be negative")
	}
	if c.Proxy.Port < 0 || c.Proxy.Port > 65535 {
		return fmt.Errorf("proxy.port %d out of range", c.Proxy.Port)
	}
	if c.Proxy.UpstreamTimeoutSeconds < 0 {
		return fmt.Errorf("proxy.upstream_timeout_seconds must not be negative")
	}
	for _, origin := range c.Proxy.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" || (u.Path != "" && u.Path != "/") {
			return fmt.Errorf("proxy.allowed_origins entry %q must be scheme://host[:port]", origin)
		}
	}
	if c.Validation.MaxTextLength < 0 {
		return fmt.Errorf("validation.max_text_length must not be negative")
	}
	pattern := c.Validation.PhonePattern
	if pattern == "" {
		c.phone = survey.DefaultPhonePattern
	} else {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("validation.phone_pattern: %w", err)
		}
		c.phone = re
	}
	tz := c.App.TimeZone
	if tz == "" {
		tz = DefaultTimeZone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("app.time_zone: %w", err)
	}
	c.location = loc
	for _, s := range c.Survey.Sections {
		if s.ID == "" {
			return fmt.Errorf("survey.sections contains empty id")
		}
	}
	if _, err := c.Schema(); err != nil {
		return fmt.Errorf("survey.fields: %w", err)
	}
	return nil
}

func checkURL(key, raw string) error {
	if raw == "" || raw == PlaceholderUpstreamURL {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http or https URL", key)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", key)
	}
	return nil
}

// Schema builds the typed field schema and its validation rules.
func (c *Config) Schema() (survey.Schema, error) {
	return survey.NewSchema(c.Survey.Fields, survey.Rules{
		Required:      c.Validation.RequiredFields,
		MaxTextLength: c.Validation.MaxTextLength,
		PhoneField:    c.Validation.PhoneField,
		PhonePattern:  c.PhonePattern(),
	})
}

func (c *Config) PhonePattern() *regexp.Regexp {
	if c.phone == nil {
		return survey.DefaultPhonePattern
	}
	return c.phone
}

// Location is the zone used for human-readable submission dates.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// UsesProxy reports whether submissions go through the forwarding proxy.
func (c *Config) UsesProxy() bool {
	return strings.TrimSpace(c.API.BaseURL) != ""
}

// Target is the URL the relay posts to: the proxy route when a proxy base is
// configured, the upstream script otherwise.
func (c *Config) Target() string {
	if c.UsesProxy() {
		return strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/") + SurveyPath
	}
	return c.UpstreamURL()
}

// UpstreamURL returns the configured upstream, or "" when unset or a placeholder.
func (c *Config) UpstreamURL() string {
	u := strings.TrimSpace(c.Upstream.URL)
	if u == PlaceholderUpstreamURL {
		return ""
	}
	return u
}

// HasRealEndpoint reports whether a submission can reach anything at all. A
// proxy base URL counts on its own: the proxy holds the upstream URL, which
// the client config may leave blank.
func (c *Config) HasRealEndpoint() bool {
	return c.Target() != ""
}

// Timeout is the relay's per-submission deadline.
func (c *Config) Timeout() time.Duration {
	if c.API.TimeoutSeconds <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// UpstreamTimeout bounds one proxy-to-upstream exchange.
func (c *Config) UpstreamTimeout() time.Duration {
	if c.Proxy.UpstreamTimeoutSeconds <= 0 {
		return DefaultUpstreamTimeoutSeconds * time.Second
	}
	return time.Duration(c.Proxy.UpstreamTimeoutSeconds) * time.Second
}

// ListenAddr is the proxy listen address derived from proxy.port.
func (c *Config) ListenAddr() string {
	port := c.Proxy.Port
	if port == 0 {
		port = DefaultPort
	}
	return fmt.Sprintf(":%d", port)
}

// LIFFID returns the configured app id, or "" when unset or a placeholder.
func (c *Config) LIFFID() string {
	id := strings.TrimSpace(c.LIFF.ID)
	if id == PlaceholderLIFFID {
		return ""
	}
	return id
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with liffsurvey config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Default returns the bundled bread-survey configuration.
func Default() *Config {
	cfg, err := FromYAML([]byte(DefaultYAML))
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}
