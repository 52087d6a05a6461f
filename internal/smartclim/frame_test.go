package smartclim

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestDecodeVectors(t *testing.T) {
	tests := []struct {
		name   string
		frame  string
		format Format
		want   SensorReading
	}{
		{"advertisement", "0500de00023b070000062e", FormatAdvertisement, SensorReading{22.2, 59, 46}},
		{"direct", "00de00023b070000062e", FormatDirect, SensorReading{22.2, 59, 46}},
		{"low positive", "05003A000227070000062C", FormatAdvertisement, SensorReading{5.8, 39, 44}},
		{"minus 0.2", "0500FDFF0228070000062C", FormatAdvertisement, SensorReading{-0.2, 40, 44}},
		{"minus 2.1", "0500EAFF0229070000062C", FormatAdvertisement, SensorReading{-2.1, 41, 44}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(mustHex(t, tt.frame), tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeWrongLength(t *testing.T) {
	tests := []struct {
		name   string
		frame  string
		format Format
	}{
		{"empty direct", "", FormatDirect},
		{"advertisement as direct", "0500de00023b070000062e", FormatDirect},
		{"direct as advertisement", "00de00023b070000062e", FormatAdvertisement},
		{"twelve bytes", "0500de00023b070000062e00", FormatAdvertisement},
		{"short", "0500de", FormatAdvertisement},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(mustHex(t, tt.frame), tt.format)
			require.ErrorIs(t, err, ErrMalformedFrame)
			assert.Equal(t, SensorReading{}, got)

			var fe *FrameError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.format, fe.Format)
			assert.Equal(t, len(tt.frame)/2, fe.Got)
		})
	}
}

func TestDecodeUnknownFormat(t *testing.T) {
	_, err := Decode(mustHex(t, "00de00023b070000062e"), Format(7))
	assert.ErrorIs(t, err, ErrMalformedFrame)
	assert.Contains(t, err.Error(), "format(7)")
}

func TestDecodeIsIdempotent(t *testing.T) {
	buf := mustHex(t, "0500de00023b070000062e")
	first, err := Decode(buf, FormatAdvertisement)
	require.NoError(t, err)
	second, err := Decode(buf, FormatAdvertisement)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, mustHex(t, "0500de00023b070000062e"), buf, "decode must not modify its input")
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "direct", FormatDirect.String())
	assert.Equal(t, "advertisement", FormatAdvertisement.String())
}
