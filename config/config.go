// Package config provides the configuration model of the validation engine.
//
// The configuration is immutable after loading: it is built once at process
// start and passed into the engine, which never mutates it.
package config

import (
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/zonecheck/zonecheck/log"
)

// Config is the top level configuration of the validation engine
type Config struct {
	// Upstreams are the DNS servers used to fetch DNSKEY, DS, RRSIG and TLSA records
	Upstreams []Upstream `yaml:"upstreams"`
	// QueryTimeout bounds a single upstream exchange
	QueryTimeout Duration `yaml:"queryTimeout" default:"5s"`
	// QueryAttempts bounds retries for a single query; only timeouts are retried
	QueryAttempts uint `yaml:"queryAttempts" default:"3"`
	// QueryRetryDelay is the fixed delay between retry attempts
	QueryRetryDelay Duration `yaml:"queryRetryDelay" default:"500ms"`
	// RequestDeadline bounds the total wall-clock time of one validation run
	RequestDeadline Duration `yaml:"requestDeadline" default:"30s"`
	// Clock skew tolerance in seconds for signature validity windows.
	// Matches Unbound/BIND defaults for real-world deployments.
	ClockSkewToleranceSec uint `yaml:"clockSkewToleranceSec" default:"3600"`
	// TrustAnchors are DNSKEY records in zone file format; empty means the
	// IANA root KSKs
	TrustAnchors []string `yaml:"trustAnchors"`
	// Source tags published analytics events (e.g. web, api, direct)
	Source string `yaml:"source" default:"api"`

	TLSA TLSA       `yaml:"tlsa"`
	Log  log.Config `yaml:"log"`
}

// TLSA is the configuration of the TLSA/DANE certificate binding check
type TLSA struct {
	// Port and Protocol select the _port._protocol prefix of the TLSA name
	Port     uint16 `yaml:"port" default:"443"`
	Protocol string `yaml:"protocol" default:"tcp"`
	// HandshakeTimeout bounds the TLS handshake; independent of the DNS deadline
	HandshakeTimeout Duration `yaml:"handshakeTimeout" default:"10s"`
}

// NewConfig creates a Config populated with defaults
func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("can't apply default values: %w", err)
	}

	return cfg, nil
}

// LoadConfig parses the configuration from a YAML file, applying defaults
// for everything the file leaves out
func LoadConfig(path string) (*Config, error) {
	cfg, err := NewConfig()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file: %w", err)
	}

	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("wrong file structure: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if !c.QueryTimeout.IsAboveZero() {
		return fmt.Errorf("queryTimeout must be above zero")
	}

	if c.QueryAttempts == 0 {
		return fmt.Errorf("queryAttempts must be at least 1")
	}

	if c.TLSA.Protocol != "tcp" && c.TLSA.Protocol != "udp" && c.TLSA.Protocol != "sctp" {
		return fmt.Errorf("unknown TLSA protocol '%s'", c.TLSA.Protocol)
	}

	return nil
}

// LogConfig logs the effective configuration
func (c *Config) LogConfig(logger *logrus.Entry) {
	logger.Infof("Upstreams = %d", len(c.Upstreams))

	for _, u := range c.Upstreams {
		logger.Infof("  - %s", u)
	}

	logger.Infof("Query timeout = %s, attempts = %d", c.QueryTimeout, c.QueryAttempts)
	logger.Infof("Request deadline = %s", c.RequestDeadline)
	logger.Infof("Clock skew tolerance = %d second(s)", c.ClockSkewToleranceSec)

	if len(c.TrustAnchors) > 0 {
		logger.Infof("Custom trust anchors = %d", len(c.TrustAnchors))
	} else {
		logger.Info("Using default root trust anchors")
	}

	logger.Infof("TLSA = _%d._%s, handshake timeout = %s", c.TLSA.Port, c.TLSA.Protocol, c.TLSA.HandshakeTimeout)
}
