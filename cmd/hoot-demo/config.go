package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/casualjim/hoot"
)

const (
	transportMemory = "memory"
	transportNATS   = "nats"
)

// Config drives the demo. Everything not set in the config file keeps its
// default.
type Config struct {
	Transport       string
	NATSURL         string
	SubjectPrefix   string
	LivenessTimeout time.Duration
	Top             string
	BrokerName      string
	HostBroker      bool
	Peers           []string
	MetricsAddr     string
	LogLevel        slog.Level
}

func DefaultConfig() Config {
	return Config{
		Transport:       transportMemory,
		SubjectPrefix:   "hoot.ctx",
		LivenessTimeout: 250 * time.Millisecond,
		Top:             "top",
		BrokerName:      hoot.BrokerName,
		HostBroker:      true,
		Peers:           []string{"alpha", "beta"},
		LogLevel:        slog.LevelInfo,
	}
}

type fileConfig struct {
	Transport       string   `toml:"transport"`
	NATSURL         string   `toml:"nats_url"`
	SubjectPrefix   string   `toml:"subject_prefix"`
	LivenessTimeout string   `toml:"liveness_timeout"`
	Top             string   `toml:"top"`
	BrokerName      string   `toml:"broker_name"`
	HostBroker      bool     `toml:"host_broker"`
	Peers           []string `toml:"peers"`
	MetricsAddr     string   `toml:"metrics_addr"`
	LogLevel        string   `toml:"log_level"`
}

func loadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load hoot config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load hoot config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("transport") {
		cfg.Transport = strings.ToLower(strings.TrimSpace(raw.Transport))
	}
	if meta.IsDefined("nats_url") {
		cfg.NATSURL = strings.TrimSpace(raw.NATSURL)
	}
	if meta.IsDefined("subject_prefix") {
		cfg.SubjectPrefix = strings.TrimSpace(raw.SubjectPrefix)
	}
	if meta.IsDefined("liveness_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.LivenessTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse liveness_timeout: %w", err)
		}
		cfg.LivenessTimeout = d
	}
	if meta.IsDefined("top") {
		cfg.Top = strings.TrimSpace(raw.Top)
	}
	if meta.IsDefined("broker_name") {
		cfg.BrokerName = strings.TrimSpace(raw.BrokerName)
	}
	if meta.IsDefined("host_broker") {
		cfg.HostBroker = raw.HostBroker
	}
	if meta.IsDefined("peers") {
		cfg.Peers = normalizePeers(raw.Peers)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("log_level") {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.TrimSpace(raw.LogLevel))); err != nil {
			return Config{}, fmt.Errorf("parse log_level: %w", err)
		}
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Transport != transportMemory && c.Transport != transportNATS {
		errs = append(errs, fmt.Errorf("transport must be %q or %q, got %q", transportMemory, transportNATS, c.Transport))
	}
	if c.Top == "" {
		errs = append(errs, errors.New("top is required"))
	}
	if c.BrokerName == "" {
		errs = append(errs, errors.New("broker_name is required"))
	}
	if c.LivenessTimeout <= 0 {
		errs = append(errs, errors.New("liveness_timeout must be positive"))
	}
	if len(c.Peers) == 0 {
		errs = append(errs, errors.New("at least one peer is required"))
	}
	return errors.Join(errs...)
}

func normalizePeers(in []string) []string {
	out := make([]string, 0, len(in))
	for _, name := range in {
		v := strings.TrimSpace(name)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
