package smartclim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupported(t *testing.T) {
	adv := mustHex(t, "0500de00023b070000062e")
	direct := mustHex(t, "00de00023b070000062e")
	badMarker := mustHex(t, "0600de00023b070000062e")
	long := mustHex(t, "0500de00023b070000062e00")

	tests := []struct {
		name string
		md   ManufacturerData
		want bool
	}{
		{"advertisement frame", ManufacturerData{13: adv}, true},
		{"direct frame", ManufacturerData{13: direct}, true},
		{"nil", nil, false},
		{"empty", ManufacturerData{}, false},
		{"wrong key", ManufacturerData{76: adv}, false},
		{"wrong marker", ManufacturerData{13: badMarker}, false},
		{"length 12", ManufacturerData{13: long}, false},
		{"empty blob", ManufacturerData{13: {}}, false},
		{"other vendor alongside", ManufacturerData{76: long, 13: adv}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Supported(tt.md))
		})
	}
}

func TestRecognizerCustomKey(t *testing.T) {
	adv := mustHex(t, "0500de00023b070000062e")
	r := Recognizer{Key: 0x0500}
	assert.True(t, r.Supported(ManufacturerData{0x0500: adv}))
	assert.False(t, r.Supported(ManufacturerData{13: adv}))

	var zero Recognizer
	assert.True(t, zero.Supported(ManufacturerData{13: adv}))
}

func TestManufacturerPayload(t *testing.T) {
	adv := mustHex(t, "0500de00023b070000062e")

	got, err := ManufacturerPayload(ManufacturerData{13: adv})
	require.NoError(t, err)
	assert.Equal(t, adv, got)

	got[0] = 0xAA
	assert.Equal(t, byte(0x05), adv[0], "payload must be a copy")

	_, err = ManufacturerPayload(ManufacturerData{76: adv})
	assert.ErrorIs(t, err, ErrKeyNotFound)

	_, err = ManufacturerPayload(nil)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestFormatOf(t *testing.T) {
	var r Recognizer
	assert.Equal(t, FormatAdvertisement, r.FormatOf(mustHex(t, "0500de00023b070000062e")))
	assert.Equal(t, FormatDirect, r.FormatOf(mustHex(t, "00de00023b070000062e")))
}
