package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartclim/internal/bluetooth"
	"smartclim/internal/smartclim"
)

type fakeLink struct {
	values map[string][]byte
	reads  map[string]int
	closed bool
}

func (l *fakeLink) ReadCharacteristic(_ context.Context, uuid string) ([]byte, error) {
	if l.reads == nil {
		l.reads = map[string]int{}
	}
	l.reads[uuid]++
	v, ok := l.values[uuid]
	if !ok {
		return nil, errors.New("not found")
	}
	return v, nil
}

func (l *fakeLink) Close() error {
	l.closed = true
	return nil
}

func newTestPoller(t *testing.T, store *fakeStore, link *fakeLink, seen map[string]bluetooth.Observation) (*Poller, *smartclim.Session) {
	t.Helper()
	s, err := smartclim.NewSession("D0:5F:B8:51:9E:67", "Porch")
	require.NoError(t, err)

	c := New(Options{SessionID: 3}, Deps{Store: store, Logger: quietLogger()})
	c.now = func() time.Time { return time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC) }

	return &Poller{
		Collector: c,
		Sessions:  []*smartclim.Session{s},
		Window:    time.Second,
		Scan: func(context.Context, time.Duration) (map[string]bluetooth.Observation, error) {
			return seen, nil
		},
		Connect: func(context.Context, bluetooth.Observation) (Link, error) {
			return link, nil
		},
	}, s
}

func TestPollerRunOnce(t *testing.T) {
	store := &fakeStore{}
	link := &fakeLink{values: map[string][]byte{
		smartclim.SensorCharacteristicUUID:       frame(t, "00de00023b070000062e"),
		smartclim.ManufacturerNameCharacteristic: []byte("BeeWi\x00"),
		smartclim.ModelNumberCharacteristic:      []byte("BBW200"),
	}}
	seen := map[string]bluetooth.Observation{
		"d0-5f-b8-51-9e-67": observation(t, "D0:5F:B8:51:9E:67", "0500de00023b070000062e", time.Now()),
	}
	p, s := newTestPoller(t, store, link, seen)

	require.NoError(t, p.RunOnce(context.Background()))
	assert.True(t, link.closed)

	got, ok := s.Reading()
	require.True(t, ok)
	assert.Equal(t, smartclim.SensorReading{Temperature: 22.2, Humidity: 59, Battery: 46}, got)
	assert.Equal(t, "BeeWi", s.DeviceInfo().Manufacturer)
	assert.Equal(t, "BBW200", s.DeviceInfo().Model)

	require.Len(t, store.readings, 1)
	assert.Equal(t, "direct", store.readings[0].Format)
	assert.Equal(t, -68, *store.readings[0].RSSI)
	assert.Nil(t, store.readings[0].Raw)
	require.Len(t, store.devices, 1)
	assert.Equal(t, "gatt", *store.devices[0].Source)
	assert.Equal(t, "BeeWi", *store.devices[0].Manufacturer)

	// Device info is cached between rounds.
	require.NoError(t, p.RunOnce(context.Background()))
	assert.Equal(t, 1, link.reads[smartclim.ManufacturerNameCharacteristic])
	assert.Equal(t, 2, link.reads[smartclim.SensorCharacteristicUUID])
	assert.Len(t, store.readings, 2)

	assert.Len(t, p.Collector.Sessions(), 1)
}

func TestPollerRunOnceNotSeen(t *testing.T) {
	store := &fakeStore{}
	link := &fakeLink{}
	p, s := newTestPoller(t, store, link, map[string]bluetooth.Observation{})

	err := p.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrNotSeen)
	assert.Empty(t, link.reads)

	_, ok := s.Reading()
	assert.False(t, ok)
	assert.Empty(t, store.readings)
}

func TestPollerRunOnceBadFrame(t *testing.T) {
	store := &fakeStore{}
	link := &fakeLink{values: map[string][]byte{
		smartclim.SensorCharacteristicUUID: {0x00, 0x01},
	}}
	seen := map[string]bluetooth.Observation{
		"D0:5F:B8:51:9E:67": observation(t, "D0:5F:B8:51:9E:67", "0500de00023b070000062e", time.Now()),
	}
	p, _ := newTestPoller(t, store, link, seen)

	err := p.RunOnce(context.Background())
	assert.ErrorIs(t, err, smartclim.ErrMalformedFrame)
	assert.True(t, link.closed)
	assert.Empty(t, store.readings)
}

func TestPollerScanError(t *testing.T) {
	p, _ := newTestPoller(t, &fakeStore{}, &fakeLink{}, nil)
	p.Scan = func(context.Context, time.Duration) (map[string]bluetooth.Observation, error) {
		return nil, errors.New("adapter busy")
	}
	assert.ErrorContains(t, p.RunOnce(context.Background()), "adapter busy")
}
