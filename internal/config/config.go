package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"smartclim/internal/smartclim"
	"smartclim/internal/util"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Adapter         string        `yaml:"adapter"`
	ManufacturerKey uint16        `yaml:"manufacturer_key"`
	ScanWindow      time.Duration `yaml:"scan_window"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	DedupCooldown   time.Duration `yaml:"dedup_cooldown"`
	StatusInterval  time.Duration `yaml:"status_interval"`
	BlueZCache      string        `yaml:"bluez_cache"`
	Devices         []Device      `yaml:"devices"`
	Database        string        `yaml:"database"`
	DataDir         string        `yaml:"data_dir"`
	Tag             string        `yaml:"tag"`
	MQTT            MQTT          `yaml:"mqtt"`
	GPS             GPS           `yaml:"gps"`
	Log             Log           `yaml:"log"`
}

type Device struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name"`
}

type MQTT struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
}

type GPS struct {
	Enabled    bool          `yaml:"enabled"`
	Device     string        `yaml:"device"`
	Baud       int           `yaml:"baud"`
	FixTimeout time.Duration `yaml:"fix_timeout"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

func Default() Config {
	return Config{
		Adapter:         "hci0",
		ManufacturerKey: smartclim.ManufacturerKey,
		ScanWindow:      10 * time.Second,
		PollInterval:    5 * time.Minute,
		ConnectTimeout:  15 * time.Second,
		DedupCooldown:   30 * time.Second,
		StatusInterval:  time.Minute,
		BlueZCache:      "auto",
		Database:        "smartclim.db",
		DataDir:         "data",
		MQTT: MQTT{
			Broker:      "tcp://localhost:1883",
			ClientID:    "smartclim",
			TopicPrefix: "smartclim",
			QoS:         1,
		},
		GPS: GPS{
			Baud:       9600,
			FixTimeout: 30 * time.Second,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
			File:   "smartclim.log",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, cfg.Validate()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Adapter) == "" {
		errs = append(errs, errors.New("adapter is required"))
	}
	if c.ScanWindow <= 0 {
		errs = append(errs, fmt.Errorf("scan_window must be positive, got %v", c.ScanWindow))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connect_timeout must be positive, got %v", c.ConnectTimeout))
	}
	if c.DedupCooldown < 0 {
		errs = append(errs, fmt.Errorf("dedup_cooldown must not be negative, got %v", c.DedupCooldown))
	}
	switch strings.ToLower(c.BlueZCache) {
	case "", "off", "auto", "force":
	default:
		errs = append(errs, fmt.Errorf("bluez_cache %q (allowed: off, auto, force)", c.BlueZCache))
	}

	seen := map[string]bool{}
	for i, d := range c.Devices {
		s, err := smartclim.NewSession(d.Address, d.Name)
		if err != nil {
			errs = append(errs, fmt.Errorf("devices[%d]: %w", i, err))
			continue
		}
		key := util.NormalizeMAC(s.Address())
		if seen[key] {
			errs = append(errs, fmt.Errorf("devices[%d]: duplicate address %s", i, s.Address()))
		}
		seen[key] = true
	}

	if c.MQTT.Enabled {
		if strings.TrimSpace(c.MQTT.Broker) == "" {
			errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
		}
		if c.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("mqtt.qos %d (allowed: 0, 1, 2)", c.MQTT.QoS))
		}
	}
	if c.GPS.Enabled && c.GPS.Baud <= 0 {
		errs = append(errs, fmt.Errorf("gps.baud must be positive, got %d", c.GPS.Baud))
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q (allowed: text, json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Sessions builds one session per configured device.
func (c Config) Sessions() ([]*smartclim.Session, error) {
	out := make([]*smartclim.Session, 0, len(c.Devices))
	for _, d := range c.Devices {
		s, err := smartclim.NewSession(d.Address, d.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// DeviceName returns the configured name for address, if any.
func (c Config) DeviceName(address string) string {
	for _, d := range c.Devices {
		if util.NormalizeMAC(d.Address) == util.NormalizeMAC(address) {
			return d.Name
		}
	}
	return ""
}

func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (allowed: debug, info, warn, error)", s)
	}
}
