// Package config holds the docsync configuration: global settings plus one Target per
// documentation portal that is kept in sync.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/openmined/docsync/internal/utils"
	"github.com/ulule/limiter/v3"
)

const (
	DefaultSessionFile      = "./cookies.json"
	DefaultLogDir           = "./scraping_logs"
	DefaultFetchTimeout     = 10 * time.Second
	DefaultPageTimeout      = 30 * time.Second
	DefaultWorkers          = 1
	DefaultServerAddr       = "127.0.0.1:7071"
	DefaultRateLimit        = "10-M"
	DefaultDocumentSelector = "#pdf-download a"
	DefaultMirrorRegion     = "us-east-1"
)

var targetNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Target is one documentation portal synced into its own output directory and store.
type Target struct {
	Name             string       `mapstructure:"name"`
	URL              string       `mapstructure:"url"`
	SectionPattern   string       `mapstructure:"section_pattern"`
	DocumentSelector string       `mapstructure:"document_selector"`
	OutputDir        string       `mapstructure:"output_dir"`
	StorePath        string       `mapstructure:"store_path"`
	WriteMode        WriteMode    `mapstructure:"write_mode"`
	ResponseMode     ResponseMode `mapstructure:"response_mode"`
}

type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	RateLimit string `mapstructure:"rate_limit"`
}

// MirrorConfig configures the optional S3 copy of new and changed documents.
// An empty bucket disables mirroring.
type MirrorConfig struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

func (m *MirrorConfig) Enabled() bool {
	return m.Bucket != ""
}

type Config struct {
	SessionFile  string        `mapstructure:"session_file"`
	LogDir       string        `mapstructure:"log_dir"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	PageTimeout  time.Duration `mapstructure:"page_timeout"`
	Workers      int           `mapstructure:"workers"`
	HistoryDB    string        `mapstructure:"history_db"`
	Server       ServerConfig  `mapstructure:"server"`
	Mirror       MirrorConfig  `mapstructure:"mirror"`
	Targets      []Target      `mapstructure:"targets"`
	Path         string        `mapstructure:"-"`
}

// DefaultTargets are the two release lines of the Red Hat Enterprise Linux portal.
func DefaultTargets() []Target {
	return []Target{
		{
			Name:             "rhel8",
			URL:              "https://access.redhat.com/documentation/en-us/red_hat_enterprise_linux/8",
			SectionPattern:   "/en/documentation/red_hat_enterprise_linux/8/html/",
			DocumentSelector: DefaultDocumentSelector,
			OutputDir:        "documentsRelH8",
			StorePath:        "checksum_pdfRelH8.json",
			WriteMode:        PerDocumentImmediate,
			ResponseMode:     Synchronous,
		},
		{
			Name:             "rhel9",
			URL:              "https://access.redhat.com/documentation/en-us/red_hat_enterprise_linux/9",
			SectionPattern:   "/en/documentation/red_hat_enterprise_linux/9/html/",
			DocumentSelector: DefaultDocumentSelector,
			OutputDir:        "documentsRelH9",
			StorePath:        "checksum_pdfRelH9.json",
			WriteMode:        PerDocumentImmediate,
			ResponseMode:     FireAndForget,
		},
	}
}

func Default() *Config {
	cfg := &Config{Targets: DefaultTargets()}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every zero valued setting. Targets get an output directory and store
// path derived from their name when none is configured.
func (c *Config) ApplyDefaults() {
	if c.SessionFile == "" {
		c.SessionFile = DefaultSessionFile
	}
	if c.LogDir == "" {
		c.LogDir = DefaultLogDir
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.PageTimeout == 0 {
		c.PageTimeout = DefaultPageTimeout
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.RateLimit == "" {
		c.Server.RateLimit = DefaultRateLimit
	}
	if c.Mirror.Enabled() && c.Mirror.Region == "" {
		c.Mirror.Region = DefaultMirrorRegion
	}
	if len(c.Targets) == 0 {
		c.Targets = DefaultTargets()
	}

	for i := range c.Targets {
		t := &c.Targets[i]
		if t.DocumentSelector == "" {
			t.DocumentSelector = DefaultDocumentSelector
		}
		if t.OutputDir == "" && t.Name != "" {
			t.OutputDir = "documents_" + t.Name
		}
		if t.StorePath == "" && t.Name != "" {
			t.StorePath = "checksum_" + t.Name + ".json"
		}
		if t.WriteMode == "" {
			t.WriteMode = PerDocumentImmediate
		}
		if t.ResponseMode == "" {
			t.ResponseMode = Synchronous
		}
		t.Normalize()
	}
}

func (c *Config) Validate() error {
	if c.SessionFile == "" {
		return fmt.Errorf("`session_file` is required")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("`fetch_timeout` must be positive")
	}
	if c.PageTimeout <= 0 {
		return fmt.Errorf("`page_timeout` must be positive")
	}
	if c.Workers < 1 {
		return fmt.Errorf("`workers` must be at least 1")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server `addr` is required")
	}
	if _, err := limiter.NewRateFromFormatted(c.Server.RateLimit); err != nil {
		return fmt.Errorf("invalid server `rate_limit` %q: %w", c.Server.RateLimit, err)
	}
	if c.Mirror.Enabled() && c.Mirror.Endpoint != "" && !utils.IsValidURL(c.Mirror.Endpoint) {
		return fmt.Errorf("invalid mirror `endpoint` %q", c.Mirror.Endpoint)
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}

	names := make(map[string]struct{}, len(c.Targets))
	stores := make(map[string]string, len(c.Targets))
	for i := range c.Targets {
		t := &c.Targets[i]
		if err := t.Validate(); err != nil {
			return err
		}
		if _, ok := names[t.Name]; ok {
			return fmt.Errorf("duplicate target %q", t.Name)
		}
		names[t.Name] = struct{}{}
		if other, ok := stores[t.StorePath]; ok {
			return fmt.Errorf("targets %q and %q share store_path %q", other, t.Name, t.StorePath)
		}
		stores[t.StorePath] = t.Name
	}
	return nil
}

func (t *Target) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("target `name` is required")
	}
	if !targetNameRe.MatchString(t.Name) {
		return fmt.Errorf("invalid target name %q: use letters, digits, '-' or '_'", t.Name)
	}
	if !utils.IsValidURL(t.URL) {
		return fmt.Errorf("target %q: invalid `url` %q", t.Name, t.URL)
	}
	if strings.TrimSpace(t.SectionPattern) == "" {
		return fmt.Errorf("target %q: `section_pattern` is required", t.Name)
	}
	if t.OutputDir == "" {
		return fmt.Errorf("target %q: `output_dir` is required", t.Name)
	}
	if t.StorePath == "" {
		return fmt.Errorf("target %q: `store_path` is required", t.Name)
	}
	if _, err := ParseWriteMode(string(t.WriteMode)); err != nil {
		return fmt.Errorf("target %q: %w", t.Name, err)
	}
	if _, err := ParseResponseMode(string(t.ResponseMode)); err != nil {
		return fmt.Errorf("target %q: %w", t.Name, err)
	}
	return nil
}

// Target returns the configured target called name.
func (c *Config) Target(name string) (*Target, bool) {
	for i := range c.Targets {
		if c.Targets[i].Name == name {
			return &c.Targets[i], true
		}
	}
	return nil, false
}

func (c *Config) TargetNames() []string {
	names := make([]string, len(c.Targets))
	for i, t := range c.Targets {
		names[i] = t.Name
	}
	return names
}

// ResolvePaths makes every file system path absolute. Relative paths resolve against the
// working directory.
func (c *Config) ResolvePaths() error {
	var err error
	resolve := func(p *string) {
		if err != nil || *p == "" {
			return
		}
		*p, err = utils.ResolvePath(*p)
	}

	resolve(&c.SessionFile)
	resolve(&c.LogDir)
	resolve(&c.HistoryDB)
	for i := range c.Targets {
		resolve(&c.Targets[i].OutputDir)
		resolve(&c.Targets[i].StorePath)
	}
	return err
}
