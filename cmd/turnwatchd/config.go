// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"io"
	"time"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/turnwatch/turnwatch/core/game"
	"github.com/turnwatch/turnwatch/domain/registry"
	"github.com/turnwatch/turnwatch/internal/client"
	"github.com/turnwatch/turnwatch/internal/worker/dispatcher"
	"github.com/turnwatch/turnwatch/internal/worker/poller"
)

const (
	defaultDatabase      = "turnwatch.db"
	defaultHTTPAddress   = "127.0.0.1:8080"
	defaultResultsBuffer = 64
	defaultDiffBuffer    = 16
	defaultLoggingConfig = "<root>=INFO"
	defaultLogMaxSize    = 300
	defaultLogMaxBackups = 2
)

// Config is the daemon configuration file.
type Config struct {
	Database             string         `yaml:"database"`
	HTTPAddress          string         `yaml:"http-address"`
	PollInterval         time.Duration  `yaml:"poll-interval"`
	FetchTimeout         time.Duration  `yaml:"fetch-timeout"`
	MaxConcurrentFetches int            `yaml:"max-concurrent-fetches"`
	ResultsBuffer        int            `yaml:"results-buffer"`
	DiffBuffer           int            `yaml:"diff-buffer"`
	WebhookURL           string         `yaml:"webhook-url"`
	DeliveryRate         float64        `yaml:"delivery-rate"`
	DeliveryBurst        int            `yaml:"delivery-burst"`
	LoggingConfig        string         `yaml:"logging-config"`
	LogFile              string         `yaml:"log-file"`
	LogFileMaxSize       int            `yaml:"log-file-max-size"`
	LogFileMaxBackups    int            `yaml:"log-file-max-backups"`
	Servers              []ServerConfig `yaml:"servers"`
	Registrations        []Registration `yaml:"registrations"`
}

// ServerConfig is a server to register on startup.
type ServerConfig struct {
	Label   string `yaml:"label"`
	Address string `yaml:"address"`
}

// Registration is a recipient to register on startup.
type Registration struct {
	Server      string `yaml:"server"`
	Participant int    `yaml:"participant"`
	Recipient   string `yaml:"recipient"`
	Name        string `yaml:"name"`
}

// ReadConfig parses a YAML configuration, fills in defaults and
// validates the result.
func ReadConfig(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.Annotate(err, "parsing config")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Trace(err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database == "" {
		c.Database = defaultDatabase
	}
	if c.HTTPAddress == "" {
		c.HTTPAddress = defaultHTTPAddress
	}
	if c.PollInterval == 0 {
		c.PollInterval = poller.DefaultInterval
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = client.DefaultTimeout
	}
	if c.MaxConcurrentFetches == 0 {
		c.MaxConcurrentFetches = poller.DefaultMaxConcurrentFetches
	}
	if c.ResultsBuffer == 0 {
		c.ResultsBuffer = defaultResultsBuffer
	}
	if c.DiffBuffer == 0 {
		c.DiffBuffer = defaultDiffBuffer
	}
	if c.DeliveryRate == 0 {
		c.DeliveryRate = float64(dispatcher.DefaultRateLimit)
	}
	if c.DeliveryBurst == 0 {
		c.DeliveryBurst = dispatcher.DefaultBurst
	}
	if c.LoggingConfig == "" {
		c.LoggingConfig = defaultLoggingConfig
	}
	if c.LogFileMaxSize == 0 {
		c.LogFileMaxSize = defaultLogMaxSize
	}
	if c.LogFileMaxBackups == 0 {
		c.LogFileMaxBackups = defaultLogMaxBackups
	}
}

// Validate ensures the configuration is usable.
func (c Config) Validate() error {
	if c.PollInterval < 0 {
		return errors.NotValidf("negative poll-interval")
	}
	if c.FetchTimeout < 0 {
		return errors.NotValidf("negative fetch-timeout")
	}
	if c.FetchTimeout >= c.PollInterval {
		return errors.NotValidf("fetch-timeout %v not shorter than poll-interval %v", c.FetchTimeout, c.PollInterval)
	}
	if c.MaxConcurrentFetches < 0 {
		return errors.NotValidf("negative max-concurrent-fetches")
	}
	if c.ResultsBuffer < 0 || c.DiffBuffer < 0 {
		return errors.NotValidf("negative buffer size")
	}
	if c.DeliveryRate < 0 || c.DeliveryBurst < 0 {
		return errors.NotValidf("negative delivery rate")
	}
	if c.LogFileMaxSize < 0 || c.LogFileMaxBackups < 0 {
		return errors.NotValidf("negative log file limits")
	}

	labels := set.NewStrings()
	for i, srv := range c.Servers {
		if srv.Label == "" || srv.Address == "" {
			return errors.NotValidf("server %d without label or address", i)
		}
		if labels.Contains(srv.Label) {
			return errors.NotValidf("duplicate server %q", srv.Label)
		}
		labels.Add(srv.Label)
	}
	for _, reg := range c.Registrations {
		if err := reg.registration().Validate(); err != nil {
			return errors.Annotatef(err, "registration for %q", reg.Server)
		}
	}
	return nil
}

func (s ServerConfig) server() game.Server {
	return game.Server{Label: s.Label, Address: s.Address}
}

func (r Registration) registration() registry.Registration {
	return registry.Registration{
		Label:           r.Server,
		ParticipantID:   r.Participant,
		Recipient:       r.Recipient,
		ParticipantName: r.Name,
	}
}
