package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tg "tinygo.org/x/bluetooth"
)

var (
	ErrNotConnectable         = errors.New("observation has no connectable address")
	ErrCharacteristicNotFound = errors.New("characteristic not found")
)

const (
	discoverTimeout = 8 * time.Second
	readBufferSize  = 512
)

// GATTReader is a connected device with its characteristics indexed by
// lower-case UUID. It satisfies smartclim.CharacteristicReader.
type GATTReader struct {
	address string
	dev     tg.Device

	mu    sync.Mutex
	chars map[string]tg.DeviceCharacteristic
}

// Connect opens a GATT connection to a device seen by this scanner and
// discovers its characteristics.
func (s *Scanner) Connect(ctx context.Context, obs Observation, timeout time.Duration) (*GATTReader, error) {
	if !obs.connectable {
		return nil, fmt.Errorf("%s: %w", obs.Address, ErrNotConnectable)
	}
	if err := s.Enable(); err != nil {
		return nil, err
	}

	type res struct {
		d tg.Device
		e error
	}
	ch := make(chan res, 1)
	go func() {
		params := tg.ConnectionParams{ConnectionTimeout: tg.NewDuration(timeout)}
		d, e := s.adapter.Connect(obs.addr, params)
		ch <- res{d: d, e: e}
	}()

	var dev tg.Device
	select {
	case r := <-ch:
		if r.e != nil {
			return nil, fmt.Errorf("connect %s: %w", obs.Address, r.e)
		}
		dev = r.d
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.e == nil {
				_ = r.d.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}

	// Give BlueZ a moment to populate services.
	time.Sleep(200 * time.Millisecond)

	services, err := discoverServicesWithTimeout(dev, discoverTimeout)
	if err != nil {
		_ = dev.Disconnect()
		return nil, fmt.Errorf("discover %s: %w", obs.Address, err)
	}

	g := &GATTReader{address: obs.Address, dev: dev, chars: map[string]tg.DeviceCharacteristic{}}
	for _, svc := range services {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			continue
		}
		for _, c := range chars {
			g.chars[strings.ToLower(c.UUID().String())] = c
		}
	}
	return g, nil
}

func (g *GATTReader) Address() string { return g.address }

// Characteristics lists the discovered characteristic UUIDs.
func (g *GATTReader) Characteristics() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.chars))
	for u := range g.chars {
		out = append(out, u)
	}
	return out
}

func (g *GATTReader) ReadCharacteristic(ctx context.Context, uuid string) ([]byte, error) {
	g.mu.Lock()
	c, ok := g.chars[strings.ToLower(uuid)]
	g.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s on %s: %w", uuid, g.address, ErrCharacteristicNotFound)
	}

	type res struct {
		b []byte
		e error
	}
	ch := make(chan res, 1)
	go func() {
		buf := make([]byte, readBufferSize)
		n, err := c.Read(buf)
		if err != nil {
			ch <- res{e: err}
			return
		}
		ch <- res{b: buf[:n]}
	}()

	select {
	case r := <-ch:
		if r.e != nil {
			return nil, fmt.Errorf("read %s: %w", uuid, r.e)
		}
		return r.b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *GATTReader) Close() error {
	return g.dev.Disconnect()
}

func discoverServicesWithTimeout(dev tg.Device, timeout time.Duration) ([]tg.DeviceService, error) {
	type res struct {
		s []tg.DeviceService
		e error
	}
	ch := make(chan res, 1)
	go func() {
		s, e := dev.DiscoverServices(nil)
		ch <- res{s: s, e: e}
	}()

	select {
	case r := <-ch:
		return r.s, r.e
	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout on DiscoverServices")
	}
}
