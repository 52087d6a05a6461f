package bluetooth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tg "tinygo.org/x/bluetooth"

	"smartclim/internal/smartclim"
)

var ErrScanStopTimeout = errors.New("scan stop timeout (bluez still discovering)")

const (
	scanSettle  = 150 * time.Millisecond
	stopTimeout = 8 * time.Second
)

// Observation is one advertisement plus what the transport knows about the
// sender's address.
type Observation struct {
	smartclim.Advertisement
	AddressType    string
	AddressSubType string
	Source         string

	addr        tg.Address
	connectable bool
}

// CanConnect reports whether the observation came from an LE scan on this
// adapter and can be handed to Connect.
func (o Observation) CanConnect() bool { return o.connectable }

// Scanner owns one adapter. BlueZ allows a single discovery session per
// adapter, so scans are serialized.
type Scanner struct {
	adapterID string
	adapter   *tg.Adapter

	mu      sync.Mutex
	enabled bool
}

func NewScanner(adapterID string) *Scanner {
	return &Scanner{adapterID: adapterID, adapter: tg.NewAdapter(adapterID)}
}

func (s *Scanner) AdapterID() string { return s.adapterID }

func (s *Scanner) Enable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		return nil
	}
	if err := s.adapter.Enable(); err != nil {
		return err
	}
	s.enabled = true
	return nil
}

// Listen scans until ctx is done and hands every advertisement to fn. fn runs
// on the scan goroutine and must not block for long.
func (s *Scanner) Listen(ctx context.Context, fn func(Observation)) error {
	if err := s.Enable(); err != nil {
		return err
	}
	return s.scan(ctx, 0, fn)
}

// ScanFor scans for d and returns the latest observation per address.
func (s *Scanner) ScanFor(ctx context.Context, d time.Duration) (map[string]Observation, error) {
	if err := s.Enable(); err != nil {
		return nil, err
	}
	results := map[string]Observation{}
	var mu sync.Mutex
	err := s.scan(ctx, d, func(o Observation) {
		mu.Lock()
		results[o.Address] = o
		mu.Unlock()
	})
	mu.Lock()
	defer mu.Unlock()
	return results, err
}

func (s *Scanner) scan(ctx context.Context, d time.Duration, fn func(Observation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A previous scan may still be considered active by BlueZ.
	_ = s.adapter.StopScan()
	time.Sleep(scanSettle)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.adapter.Scan(func(_ *tg.Adapter, res tg.ScanResult) {
			fn(observationFromScan(res, time.Now()))
		})
	}()

	var window <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		window = t.C
	}

	select {
	case <-ctx.Done():
		_ = s.adapter.StopScan()
		select {
		case <-errCh:
		case <-time.After(stopTimeout):
		}
		return ctx.Err()
	case <-window:
		_ = s.adapter.StopScan()
		select {
		case <-errCh:
		case <-time.After(stopTimeout):
			return ErrScanStopTimeout
		}
		time.Sleep(scanSettle)
		return nil
	case err := <-errCh:
		// Scan exited early (including InProgress).
		_ = s.adapter.StopScan()
		time.Sleep(scanSettle)
		return err
	}
}

func observationFromScan(res tg.ScanResult, at time.Time) Observation {
	md := smartclim.ManufacturerData{}
	for _, m := range res.ManufacturerData() {
		md[m.CompanyID] = append([]byte(nil), m.Data...)
	}
	name := res.LocalName()
	if raw := res.Bytes(); len(raw) > 0 {
		if len(md) == 0 {
			md = ManufacturerDataFromAD(raw)
		}
		if name == "" {
			name = LocalNameFromAD(raw)
		}
	}

	typ, sub := ClassifyAddress(res.Address)
	return Observation{
		Advertisement: smartclim.Advertisement{
			Address:          strings.ToUpper(res.Address.String()),
			LocalName:        strings.TrimSpace(name),
			RSSI:             int(res.RSSI),
			ManufacturerData: md,
			SeenAt:           at,
		},
		AddressType:    typ,
		AddressSubType: sub,
		Source:         "le",
		addr:           res.Address,
		connectable:    true,
	}
}
