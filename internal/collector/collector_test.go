package collector

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartclim/internal/bluetooth"
	"smartclim/internal/db"
	"smartclim/internal/gps"
	"smartclim/internal/sensorstate"
	"smartclim/internal/smartclim"
)

type fakeStore struct {
	mu       sync.Mutex
	devices  []db.SaveParams
	readings []db.ReadingParams
	err      error
}

func (f *fakeStore) SaveDevice(_ context.Context, p db.SaveParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = append(f.devices, p)
	return f.err
}

func (f *fakeStore) InsertReading(_ context.Context, p db.ReadingParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = append(f.readings, p)
	return int64(len(f.readings)), nil
}

type fakeSink struct {
	mu      sync.Mutex
	updates map[string][]sensorstate.SensorUpdate
}

func (f *fakeSink) PublishUpdate(id string, u sensorstate.SensorUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = map[string][]sensorstate.SensorUpdate{}
	}
	f.updates[id] = append(f.updates[id], u)
	return nil
}

type fixedLocator struct{ fix gps.Fix }

func (l fixedLocator) FixSnapshot() (gps.Fix, bool) { return l.fix, true }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func frame(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func observation(t *testing.T, addr, payload string, at time.Time) bluetooth.Observation {
	return bluetooth.Observation{
		Advertisement: smartclim.Advertisement{
			Address:          addr,
			LocalName:        "BeeWi SmartClim",
			RSSI:             -68,
			ManufacturerData: smartclim.ManufacturerData{smartclim.ManufacturerKey: frame(t, payload)},
			SeenAt:           at,
		},
		AddressType: bluetooth.AddressPublic,
		Source:      "le",
	}
}

func TestHandleObservation(t *testing.T) {
	store := &fakeStore{}
	sink := &fakeSink{}
	c := New(Options{
		Adapter:   "hci0",
		SessionID: 7,
		Cooldown:  30 * time.Second,
		Names: func(addr string) string {
			if addr == "D0:5F:B8:51:9E:67" {
				return "Kitchen"
			}
			return ""
		},
	}, Deps{
		Store:   store,
		Sink:    sink,
		Locator: fixedLocator{gps.Fix{Lat: 48.1, Lon: 11.5}},
		Logger:  quietLogger(),
	})

	t0 := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	ev, err := c.HandleObservation(context.Background(), observation(t, "d0:5f:b8:51:9e:67", "0500de00023b070000062e", t0))
	require.NoError(t, err)
	assert.Equal(t, "Kitchen", ev.Name)
	assert.Equal(t, smartclim.SensorReading{Temperature: 22.2, Humidity: 59, Battery: 46}, ev.Reading)
	assert.Equal(t, "Kitchen", ev.Update.Devices["d05fb8519e67"].Name)

	require.Len(t, store.devices, 1)
	d := store.devices[0]
	assert.Equal(t, "D0:5F:B8:51:9E:67", d.MAC)
	assert.Equal(t, "Kitchen", *d.Name)
	assert.Equal(t, int64(7), *d.SessionID)
	assert.Equal(t, "le", *d.Source)
	assert.Equal(t, bluetooth.AddressPublic, *d.MACType)
	assert.Nil(t, d.MACSubType)

	require.Len(t, store.readings, 1)
	r := store.readings[0]
	assert.Equal(t, "2024-01-01 08:00:00", r.Timestamp)
	assert.Equal(t, "advertisement", r.Format)
	assert.Equal(t, 22.2, r.Temperature)
	assert.Equal(t, -68, *r.RSSI)
	assert.Equal(t, 48.1, *r.Lat)
	assert.Equal(t, "05 00 de 00 02 3b 07 00 00 06 2e", *r.Raw)

	require.Len(t, sink.updates["d05fb8519e67"], 1)

	// Same bytes inside the cooldown.
	_, err = c.HandleObservation(context.Background(), observation(t, "D0:5F:B8:51:9E:67", "0500de00023b070000062e", t0.Add(10*time.Second)))
	assert.ErrorIs(t, err, ErrDuplicate)

	// New bytes are recorded right away.
	ev, err = c.HandleObservation(context.Background(), observation(t, "D0:5F:B8:51:9E:67", "0500EAFF0229070000062C", t0.Add(20*time.Second)))
	require.NoError(t, err)
	assert.Equal(t, -2.1, ev.Reading.Temperature)
	assert.Len(t, store.readings, 2)

	require.Len(t, c.Sessions(), 1)
	got, ok := c.Sessions()[0].Reading()
	require.True(t, ok)
	assert.Equal(t, smartclim.SensorReading{Temperature: -2.1, Humidity: 41, Battery: 44}, got)
}

func TestHandleObservationIgnoresOthers(t *testing.T) {
	store := &fakeStore{}
	c := New(Options{}, Deps{Store: store, Logger: quietLogger()})

	obs := observation(t, "AA:BB:CC:DD:EE:FF", "0500de00023b070000062e", time.Now())
	obs.ManufacturerData = smartclim.ManufacturerData{76: {0x02, 0x15}}
	_, err := c.HandleObservation(context.Background(), obs)
	assert.ErrorIs(t, err, smartclim.ErrUnsupported)

	// Right key, wrong size.
	obs = observation(t, "AA:BB:CC:DD:EE:FF", "0500de00023b07", time.Now())
	_, err = c.HandleObservation(context.Background(), obs)
	assert.ErrorIs(t, err, smartclim.ErrUnsupported)

	assert.Empty(t, store.devices)
	assert.Empty(t, c.Sessions())
}

func TestHandleObservationStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	sink := &fakeSink{}
	c := New(Options{}, Deps{Store: store, Sink: sink, Logger: quietLogger()})

	_, err := c.HandleObservation(context.Background(), observation(t, "D0:5F:B8:51:9E:67", "0500de00023b070000062e", time.Now()))
	assert.ErrorContains(t, err, "disk full")
	assert.Empty(t, store.readings)
	// Publishing does not depend on storage.
	assert.Len(t, sink.updates["d05fb8519e67"], 1)
}
