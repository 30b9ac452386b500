package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/openmined/docsync/internal/utils"
	"gopkg.in/yaml.v3"
)

// yamlConfig mirrors Config with durations spelled the way viper reads them back.
type yamlConfig struct {
	SessionFile  string       `yaml:"session_file"`
	LogDir       string       `yaml:"log_dir"`
	FetchTimeout string       `yaml:"fetch_timeout"`
	PageTimeout  string       `yaml:"page_timeout"`
	Workers      int          `yaml:"workers"`
	HistoryDB    string       `yaml:"history_db"`
	Server       yamlServer   `yaml:"server"`
	Mirror       yamlMirror   `yaml:"mirror"`
	Targets      []yamlTarget `yaml:"targets"`
}

type yamlServer struct {
	Addr      string `yaml:"addr"`
	RateLimit string `yaml:"rate_limit"`
}

type yamlMirror struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
}

type yamlTarget struct {
	Name             string `yaml:"name"`
	URL              string `yaml:"url"`
	SectionPattern   string `yaml:"section_pattern"`
	DocumentSelector string `yaml:"document_selector"`
	OutputDir        string `yaml:"output_dir"`
	StorePath        string `yaml:"store_path"`
	WriteMode        string `yaml:"write_mode"`
	ResponseMode     string `yaml:"response_mode"`
}

func (c *Config) MarshalYAML() (any, error) {
	out := yamlConfig{
		SessionFile:  c.SessionFile,
		LogDir:       c.LogDir,
		FetchTimeout: c.FetchTimeout.String(),
		PageTimeout:  c.PageTimeout.String(),
		Workers:      c.Workers,
		HistoryDB:    c.HistoryDB,
		Server:       yamlServer(c.Server),
		Mirror:       yamlMirror(c.Mirror),
		Targets:      make([]yamlTarget, len(c.Targets)),
	}
	for i, t := range c.Targets {
		out.Targets[i] = yamlTarget{
			Name:             t.Name,
			URL:              t.URL,
			SectionPattern:   t.SectionPattern,
			DocumentSelector: t.DocumentSelector,
			OutputDir:        t.OutputDir,
			StorePath:        t.StorePath,
			WriteMode:        string(t.WriteMode),
			ResponseMode:     string(t.ResponseMode),
		}
	}
	return out, nil
}

// WriteYAML saves the configuration to path. Existing files are left alone unless force is set.
func (c *Config) WriteYAML(path string, force bool) error {
	if !force && utils.FileExists(path) {
		return fmt.Errorf("config %q already exists", path)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := utils.EnsureParent(path); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
