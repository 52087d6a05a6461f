package gps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"smartclim/internal/util"
)

var ErrNoSerialDevice = errors.New("no gps serial device detected")

type Config struct {
	// Device is a serial path such as /dev/ttyUSB0. Empty means auto-detect.
	Device string
	Baud   int
	// FixTimeout is how long a fix counts as fresh.
	FixTimeout time.Duration
}

// Fix is a position snapshot. Cached is set when the fix is older than the
// freshness timeout.
type Fix struct {
	Lat    float64
	Lon    float64
	At     time.Time
	Cached bool
}

func (f Fix) String() string {
	if f.Cached {
		return fmt.Sprintf("(%f, %f)", f.Lat, f.Lon)
	}
	return fmt.Sprintf("%f, %f", f.Lat, f.Lon)
}

type State struct {
	mu sync.RWMutex

	log     *slog.Logger
	now     func() time.Time
	timeout time.Duration

	lat        float64
	lon        float64
	lastFix    time.Time
	lastPacket time.Time
	device     string
}

func NewState(timeout time.Duration, logger *slog.Logger) *State {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &State{timeout: timeout, log: logger, now: time.Now}
}

// FixSnapshot returns the last known fix. ok is false until one is received.
func (s *State) FixSnapshot() (Fix, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastFix.IsZero() {
		return Fix{}, false
	}
	return Fix{
		Lat:    s.lat,
		Lon:    s.lon,
		At:     s.lastFix,
		Cached: s.now().Sub(s.lastFix) > s.timeout,
	}, true
}

// GPSStringForRecord is the text stored alongside readings: "lat, lon" when
// fresh, "(lat, lon)" when cached, nil without any fix.
func (s *State) GPSStringForRecord() *string {
	f, ok := s.FixSnapshot()
	if !ok {
		return nil
	}
	v := f.String()
	return &v
}

func (s *State) Device() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.device
}

func (s *State) HasRecentPacket(maxAge time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastPacket.IsZero() {
		return false
	}
	return s.now().Sub(s.lastPacket) <= maxAge
}

// Start opens the serial receiver in the background. It returns an error only
// when no device is configured and none can be detected.
func (s *State) Start(ctx context.Context, cfg Config) error {
	cfg = normalizeConfig(cfg)
	if cfg.FixTimeout > 0 {
		s.mu.Lock()
		s.timeout = cfg.FixTimeout
		s.mu.Unlock()
	}
	if cfg.Device == "" {
		cfg.Device = GuessSerialDevice()
	}
	if cfg.Device == "" {
		return ErrNoSerialDevice
	}
	go s.runSerialLoop(ctx, cfg.Device, cfg.Baud)
	return nil
}

func normalizeConfig(cfg Config) Config {
	cfg.Device = strings.TrimSpace(cfg.Device)
	if strings.EqualFold(cfg.Device, "auto") {
		cfg.Device = ""
	}
	if cfg.Baud <= 0 {
		cfg.Baud = 9600
	}
	return cfg
}

func (s *State) updateFix(lat, lon float64) {
	s.mu.Lock()
	first := s.lastFix.IsZero()
	s.lat = lat
	s.lon = lon
	s.lastFix = s.now()
	s.mu.Unlock()

	if first {
		util.Linef("[GPS]", util.ColorGreen, "first fix %f, %f", lat, lon)
		s.log.Info("gps fix acquired", "lat", lat, "lon", lon)
	}
}

func (s *State) updatePacket() {
	s.mu.Lock()
	s.lastPacket = s.now()
	s.mu.Unlock()
}

func (s *State) setDevice(dev string) {
	s.mu.Lock()
	s.device = dev
	s.mu.Unlock()
}
