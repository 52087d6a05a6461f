package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"smartclim/internal/bluetooth"
	"smartclim/internal/smartclim"
	"smartclim/internal/util"
)

var ErrNotSeen = errors.New("device not seen during scan")

// DefaultInfoMaxAge is how long cached manufacturer, model and firmware
// strings are trusted before they are read again.
const DefaultInfoMaxAge = 24 * time.Hour

// Link is an open GATT connection.
type Link interface {
	smartclim.CharacteristicReader
	Close() error
}

// Poller connects to configured sensors and reads their direct frames.
type Poller struct {
	Collector *Collector
	Sessions  []*smartclim.Session
	Window    time.Duration

	// Scan resolves nearby devices; Connect opens a link to one of them.
	Scan    func(ctx context.Context, window time.Duration) (map[string]bluetooth.Observation, error)
	Connect func(ctx context.Context, obs bluetooth.Observation) (Link, error)

	InfoMaxAge time.Duration
}

// Run polls every interval until ctx is done.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	for {
		if err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
			p.Collector.log.Warn("poll round", "error", err)
		}

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// RunOnce scans once and polls every session. Per-device failures are
// collected and do not stop the round.
func (p *Poller) RunOnce(ctx context.Context) error {
	seen, err := p.Scan(ctx, p.Window)
	if err != nil && len(seen) == 0 {
		return fmt.Errorf("scan: %w", err)
	}

	byAddr := make(map[string]bluetooth.Observation, len(seen))
	for addr, o := range seen {
		byAddr[util.NormalizeMAC(addr)] = o
	}

	var errs []error
	for _, s := range p.Sessions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		obs, ok := byAddr[util.NormalizeMAC(s.Address())]
		if !ok {
			util.Linef("[MISSING]", util.ColorYellow, "%s (%s)", util.SafeName(s.Name()), s.Address())
			errs = append(errs, fmt.Errorf("%s: %w", s.Address(), ErrNotSeen))
			continue
		}
		if err := p.pollOne(ctx, s, obs); err != nil {
			util.Linef("[ERROR]", util.ColorRed, "%s: %v", s.Address(), err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Poller) pollOne(ctx context.Context, s *smartclim.Session, obs bluetooth.Observation) error {
	util.Linef("[CONNECT]", util.ColorGray, "%s starting", s.Address())
	link, err := p.Connect(ctx, obs)
	if err != nil {
		return err
	}
	defer func() { _ = link.Close() }()

	now := p.Collector.now()
	maxAge := p.InfoMaxAge
	if maxAge <= 0 {
		maxAge = DefaultInfoMaxAge
	}
	if last := s.InfoRefreshedAt(); last.IsZero() || now.Sub(last) > maxAge {
		if err := s.RefreshInfo(ctx, link, now); err != nil {
			p.Collector.log.Debug("device info incomplete", "address", s.Address(), "error", err)
		}
	}

	if _, err := s.Poll(ctx, link, now); err != nil {
		return err
	}
	rssi := obs.RSSI
	return p.Collector.RecordPoll(ctx, s, &rssi)
}
