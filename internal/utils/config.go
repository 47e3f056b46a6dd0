package utils

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/benmeehan/kiln-console/internal/constants"
	"github.com/benmeehan/kiln-console/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	Device struct {
		BaseURL        string        `yaml:"base_url"`        // Controller URL, e.g. http://kiln.local/cgi-bin
		EndpointSuffix string        `yaml:"endpoint_suffix"` // Appended to endpoint names, e.g. ".cgi"
		RequestTimeout time.Duration `yaml:"request_timeout"` // Per-request timeout
	} `yaml:"device"`

	Console struct {
		PollInterval time.Duration `yaml:"poll_interval"` // Status poll period
		FetchWorkers int           `yaml:"fetch_workers"` // Concurrent controller requests
		Viewport     struct {
			Width  int `yaml:"width"`  // Initial graph width in pixels
			Height int `yaml:"height"` // Initial graph height in pixels
		} `yaml:"viewport"`
	} `yaml:"console"`

	View struct {
		Enabled     bool   `yaml:"enabled"`      // Enable/disable the HTTP view
		Listen      string `yaml:"listen"`       // Listen address for the HTTP view
		HostMetrics bool   `yaml:"host_metrics"` // Export CPU, memory and disk usage on /metrics
		DiskPath    string `yaml:"disk_path"`    // Filesystem reported by the disk metric
	} `yaml:"view"`

	Mirror struct {
		Enabled       bool   `yaml:"enabled"`        // Enable/disable MQTT status mirroring
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID prefix
		Username      string `yaml:"username"`       // Optional broker username
		Password      string `yaml:"password"`       // Optional broker password
		CACertificate string `yaml:"ca_certificate"` // Optional path to the CA certificate
		Topic         string `yaml:"topic"`          // Topic prefix for status snapshots
		QOS           int    `yaml:"qos"`            // MQTT QoS level
		Buffer        int    `yaml:"buffer"`         // Pending snapshots before the oldest is dropped
	} `yaml:"mirror"`

	Logging struct {
		Level string `yaml:"level"` // zerolog level name
	} `yaml:"logging"`
}

// LoadConfig loads the YAML configuration from the specified file, fills in
// defaults and validates the result.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Device.RequestTimeout == 0 {
		c.Device.RequestTimeout = constants.DefaultRequestTimeout
	}
	if c.Console.PollInterval == 0 {
		c.Console.PollInterval = constants.DefaultPollInterval
	}
	if c.Console.FetchWorkers == 0 {
		c.Console.FetchWorkers = constants.DefaultFetchWorkers
	}
	if c.Console.Viewport.Width == 0 {
		c.Console.Viewport.Width = constants.DefaultViewportWidth
	}
	if c.Console.Viewport.Height == 0 {
		c.Console.Viewport.Height = constants.DefaultViewportHeight
	}
	if c.View.Listen == "" {
		c.View.Listen = constants.DefaultViewListen
	}
	if c.View.DiskPath == "" {
		c.View.DiskPath = "/"
	}
	if c.Mirror.Topic == "" {
		c.Mirror.Topic = constants.DefaultMirrorTopic
	}
	if c.Mirror.ClientID == "" {
		c.Mirror.ClientID = "kiln-console"
	}
	if c.Mirror.Buffer == 0 {
		c.Mirror.Buffer = constants.DefaultMirrorBuffer
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.Device.BaseURL == "" {
		errs = append(errs, errors.New("device.base_url is required"))
	} else if u, err := url.Parse(c.Device.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("device.base_url %q is not an absolute URL", c.Device.BaseURL))
	}
	if c.Console.PollInterval < 0 {
		errs = append(errs, errors.New("console.poll_interval must be positive"))
	}
	if c.Console.FetchWorkers < 0 {
		errs = append(errs, errors.New("console.fetch_workers must be positive"))
	}
	if c.Mirror.Enabled && c.Mirror.Broker == "" {
		errs = append(errs, errors.New("mirror.broker is required when mirror is enabled"))
	}
	if c.Mirror.QOS < 0 || c.Mirror.QOS > 2 {
		errs = append(errs, fmt.Errorf("mirror.qos %d out of range", c.Mirror.QOS))
	}
	return errors.Join(errs...)
}
