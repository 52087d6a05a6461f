package gps

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	rmcValid   = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"
	rmcVoid    = "$GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*7D"
	ggaValid   = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
	ggaNoFix   = "$GPGGA,123519,4807.038,N,01131.000,E,0,08,0.9,545.4,M,46.9,M,,*46"
	badSumLine = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*00"
)

func testState(now *time.Time) *State {
	s := NewState(10*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return *now }
	return s
}

func TestHandleLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		fix  bool
	}{
		{"rmc valid", rmcValid, true},
		{"rmc void", rmcVoid, false},
		{"gga valid", ggaValid, true},
		{"gga no fix", ggaNoFix, false},
		{"bad checksum", badSumLine, false},
		{"not nmea", "hello", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			s := testState(&now)
			s.handleLine(tt.line)

			f, ok := s.FixSnapshot()
			require.Equal(t, tt.fix, ok)
			if ok {
				assert.InDelta(t, 48.1173, f.Lat, 1e-4)
				assert.InDelta(t, 11.5167, f.Lon, 1e-4)
			}
		})
	}
}

func TestFixGoesStale(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := testState(&now)
	assert.Nil(t, s.GPSStringForRecord())

	s.handleLine(rmcValid)
	assert.True(t, s.HasRecentPacket(time.Second))
	require.NotNil(t, s.GPSStringForRecord())
	assert.Equal(t, "48.117300, 11.516667", *s.GPSStringForRecord())

	now = now.Add(time.Minute)
	f, ok := s.FixSnapshot()
	require.True(t, ok)
	assert.True(t, f.Cached)
	assert.Equal(t, "(48.117300, 11.516667)", *s.GPSStringForRecord())
	assert.False(t, s.HasRecentPacket(time.Second))
}

func TestConsume(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := testState(&now)

	err := s.consume(context.Background(), strings.NewReader(rmcVoid+"\r\n"+ggaValid+"\r\n"))
	assert.ErrorIs(t, err, errReaderStopped)
	_, ok := s.FixSnapshot()
	assert.True(t, ok)
}

func TestNormalizeConfig(t *testing.T) {
	cfg := normalizeConfig(Config{Device: " auto "})
	assert.Equal(t, "", cfg.Device)
	assert.Equal(t, 9600, cfg.Baud)
}
