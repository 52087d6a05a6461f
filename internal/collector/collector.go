package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"smartclim/internal/bluetooth"
	"smartclim/internal/db"
	"smartclim/internal/gps"
	"smartclim/internal/ids"
	"smartclim/internal/sensorstate"
	"smartclim/internal/smartclim"
	"smartclim/internal/util"
)

var ErrDuplicate = errors.New("duplicate advertisement")

// Store persists devices and readings. *db.Store implements it.
type Store interface {
	SaveDevice(ctx context.Context, p db.SaveParams) error
	InsertReading(ctx context.Context, p db.ReadingParams) (int64, error)
}

// Sink receives every new sensor update. *mqtt.Publisher implements it.
type Sink interface {
	PublishUpdate(deviceID string, u sensorstate.SensorUpdate) error
}

// Locator supplies the position stored with readings. *gps.State implements it.
type Locator interface {
	FixSnapshot() (gps.Fix, bool)
}

type Options struct {
	Recognizer smartclim.Recognizer
	Adapter    string
	SessionID  int64
	Tag        string
	// Cooldown drops repeated identical payloads from one address.
	Cooldown time.Duration
	// Names maps an address to a configured display name.
	Names func(address string) string
}

// Deps are optional; nil members are skipped.
type Deps struct {
	Store   Store
	Sink    Sink
	Locator Locator
	Vendors *ids.Resolver
	Logger  *slog.Logger
}

type lastPayload struct {
	hex string
	at  time.Time
}

// Collector turns observations and polled readings into stored, published
// sensor updates, keeping one session per device.
type Collector struct {
	opts Options
	deps Deps
	log  *slog.Logger
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*smartclim.Session
	last     map[string]lastPayload
}

func New(opts Options, deps Deps) *Collector {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		opts:     opts,
		deps:     deps,
		log:      logger,
		now:      time.Now,
		sessions: map[string]*smartclim.Session{},
		last:     map[string]lastPayload{},
	}
}

// Adopt registers existing sessions, such as the configured poll targets.
func (c *Collector) Adopt(sessions ...*smartclim.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range sessions {
		c.sessions[util.NormalizeMAC(s.Address())] = s
	}
}

// Sessions returns the known sessions ordered by address.
func (c *Collector) Sessions() []*smartclim.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*smartclim.Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address() < out[j].Address() })
	return out
}

func (c *Collector) session(address, name string) (*smartclim.Session, error) {
	key := util.NormalizeMAC(address)

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[key]; ok {
		if name != "" && s.Name() == "" {
			s.SetName(name)
		}
		return s, nil
	}
	s, err := smartclim.NewSession(address, name)
	if err != nil {
		return nil, err
	}
	c.sessions[key] = s
	return s, nil
}

func (c *Collector) displayName(address, advertised string) string {
	if c.opts.Names != nil {
		if n := strings.TrimSpace(c.opts.Names(address)); n != "" {
			return n
		}
	}
	return strings.TrimSpace(advertised)
}

// isDuplicate records payload and reports whether the same bytes were seen
// from address within the cooldown.
func (c *Collector) isDuplicate(address string, payload []byte, at time.Time) bool {
	if c.opts.Cooldown <= 0 {
		return false
	}
	hex := util.BytesToHex(payload)
	key := util.NormalizeMAC(address)

	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.last[key]
	if ok && prev.hex == hex && at.Sub(prev.at) < c.opts.Cooldown {
		return true
	}
	c.last[key] = lastPayload{hex: hex, at: at}
	return false
}

// HandleObservation decodes one advertisement. Unrelated advertisements
// return smartclim.ErrUnsupported and repeats within the cooldown
// ErrDuplicate; both are normal while scanning.
func (c *Collector) HandleObservation(ctx context.Context, obs bluetooth.Observation) (smartclim.Event, error) {
	ev, err := c.opts.Recognizer.ParseAdvertisement(obs.Advertisement)
	if err != nil {
		return smartclim.Event{}, err
	}
	if ev.SeenAt.IsZero() {
		ev.SeenAt = c.now()
	}
	if c.isDuplicate(ev.Address, ev.Payload, ev.SeenAt) {
		return ev, ErrDuplicate
	}

	s, err := c.session(ev.Address, c.displayName(ev.Address, ev.Name))
	if err != nil {
		return ev, err
	}
	reading, err := s.Apply(ev.Payload, ev.Format, ev.SeenAt)
	if err != nil {
		return ev, err
	}
	ev.Name = s.Name()
	if u, ok := s.Update(); ok {
		ev.Update = u
	}

	rssi := ev.RSSI
	err = c.record(ctx, s, record{
		reading: reading,
		format:  ev.Format,
		at:      ev.SeenAt,
		rssi:    &rssi,
		raw:     ev.Payload,
		macType: obs.AddressType,
		macSub:  obs.AddressSubType,
		source:  obs.Source,
	})
	return ev, err
}

// RecordPoll stores and publishes the reading a session obtained over GATT.
func (c *Collector) RecordPoll(ctx context.Context, s *smartclim.Session, rssi *int) error {
	reading, ok := s.Reading()
	if !ok {
		return fmt.Errorf("%s: no reading to record", s.Address())
	}
	c.Adopt(s)
	return c.record(ctx, s, record{
		reading: reading,
		format:  smartclim.FormatDirect,
		at:      s.LastReadAt(),
		rssi:    rssi,
		source:  "gatt",
	})
}

type record struct {
	reading smartclim.SensorReading
	format  smartclim.Format
	at      time.Time
	rssi    *int
	raw     []byte
	macType string
	macSub  string
	source  string
}

func (c *Collector) record(ctx context.Context, s *smartclim.Session, r record) error {
	ts := util.FormatTimestamp(r.at)
	name := util.SafeName(s.Name())
	util.Linef("[READING]", util.ColorGreen, "%s (%s) %s", name, s.Address(), r.reading)

	var errs []error
	if c.deps.Store != nil {
		errs = append(errs, c.store(ctx, s, r, ts, name))
	}
	if c.deps.Sink != nil {
		if u, ok := s.Update(); ok {
			if err := c.deps.Sink.PublishUpdate(s.ID(), u); err != nil {
				errs = append(errs, fmt.Errorf("publish %s: %w", s.Address(), err))
			}
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		c.log.Warn("record reading", "address", s.Address(), "error", err)
	} else {
		c.log.Debug("reading recorded", "address", s.Address(), "format", r.format.String(),
			"temperature", r.reading.Temperature, "humidity", r.reading.Humidity, "battery", r.reading.Battery)
	}
	return err
}

func (c *Collector) store(ctx context.Context, s *smartclim.Session, r record, ts, name string) error {
	info := s.DeviceInfo()
	p := db.SaveParams{
		Name:         &name,
		MAC:          s.Address(),
		RSSI:         r.rssi,
		Timestamp:    &ts,
		Adapter:      optional(c.opts.Adapter),
		Source:       optional(r.source),
		MACType:      optional(r.macType),
		MACSubType:   optional(r.macSub),
		Manufacturer: optional(info.Manufacturer),
		Model:        optional(info.Model),
		Firmware:     optional(info.SWVersion),
		Tag:          optional(c.opts.Tag),
		Vendor:       optional(c.deps.Vendors.VendorForMAC(s.Address())),
	}
	if c.opts.SessionID > 0 {
		p.SessionID = &c.opts.SessionID
	}
	if err := c.deps.Store.SaveDevice(ctx, p); err != nil {
		return fmt.Errorf("save device %s: %w", s.Address(), err)
	}

	rp := db.ReadingParams{
		SessionID:   p.SessionID,
		MAC:         s.Address(),
		Timestamp:   ts,
		Format:      r.format.String(),
		Temperature: r.reading.Temperature,
		Humidity:    r.reading.Humidity,
		Battery:     r.reading.Battery,
		RSSI:        r.rssi,
	}
	if len(r.raw) > 0 {
		rp.Raw = optional(util.BytesToHex(r.raw))
	}
	if c.deps.Locator != nil {
		if f, ok := c.deps.Locator.FixSnapshot(); ok {
			lat, lon, text := f.Lat, f.Lon, f.String()
			rp.Lat, rp.Lon, rp.GPS = &lat, &lon, &text
		}
	}
	if _, err := c.deps.Store.InsertReading(ctx, rp); err != nil {
		return fmt.Errorf("insert reading %s: %w", s.Address(), err)
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
