package bluetooth

import (
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartclim/internal/smartclim"
)

func TestManufacturerDataFromProps(t *testing.T) {
	frame := []byte{0x05, 0x00, 0xde, 0x00, 0x02, 0x3b, 0x07, 0x00, 0x00, 0x06, 0x2e}

	variants := map[string]dbus.Variant{
		"ManufacturerData": dbus.MakeVariant(map[uint16]dbus.Variant{
			13:  dbus.MakeVariant(frame),
			76:  dbus.MakeVariant([]byte{0x02, 0x15}),
			100: dbus.MakeVariant("not bytes"),
		}),
	}
	md := manufacturerDataFromProps(variants)
	require.Len(t, md, 2)
	assert.Equal(t, frame, md[13])

	raw := map[string]dbus.Variant{
		"ManufacturerData": dbus.MakeVariant(map[uint16][]byte{13: frame}),
	}
	assert.True(t, smartclim.Supported(manufacturerDataFromProps(raw)))

	assert.Empty(t, manufacturerDataFromProps(map[string]dbus.Variant{}))
}

func TestObservationsFromManaged(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	managed := managedObjects{
		"/org/bluez/hci0/dev_D0_5F_B8_51_9E_67": {
			device1Iface: {
				"Address":     dbus.MakeVariant("d0:5f:b8:51:9e:67"),
				"Alias":       dbus.MakeVariant("BeeWi SmartClim"),
				"RSSI":        dbus.MakeVariant(int16(-71)),
				"AddressType": dbus.MakeVariant("public"),
				"ManufacturerData": dbus.MakeVariant(map[uint16]dbus.Variant{
					13: dbus.MakeVariant([]byte{0x05, 0x00, 0xde, 0x00, 0x02, 0x3b, 0x07, 0x00, 0x00, 0x06, 0x2e}),
				}),
			},
		},
		"/org/bluez/hci0/dev_C1_00_00_00_00_01": {
			device1Iface: {
				"Address":     dbus.MakeVariant("C1:00:00:00:00:01"),
				"AddressType": dbus.MakeVariant("random"),
			},
		},
		"/org/bluez/hci1/dev_AA_BB_CC_DD_EE_FF": {
			device1Iface: {"Address": dbus.MakeVariant("AA:BB:CC:DD:EE:FF")},
		},
		"/org/bluez/hci0": {
			"org.bluez.Adapter1": {"Address": dbus.MakeVariant("00:11:22:33:44:55")},
		},
	}

	obs := observationsFromManaged(managed, "hci0", at)
	require.Len(t, obs, 2)

	assert.Equal(t, "C1:00:00:00:00:01", obs[0].Address)
	assert.Equal(t, AddressRandom, obs[0].AddressType)
	assert.Equal(t, "static_random", obs[0].AddressSubType)

	o := obs[1]
	assert.Equal(t, "D0:5F:B8:51:9E:67", o.Address)
	assert.Equal(t, "BeeWi SmartClim", o.LocalName)
	assert.Equal(t, -71, o.RSSI)
	assert.Equal(t, AddressPublic, o.AddressType)
	assert.Equal(t, "bluez", o.Source)
	assert.Equal(t, at, o.SeenAt)
	assert.False(t, o.CanConnect())

	ev, err := smartclim.ParseAdvertisement(o.Advertisement)
	require.NoError(t, err)
	assert.Equal(t, smartclim.SensorReading{Temperature: 22.2, Humidity: 59, Battery: 46}, ev.Reading)
}

func TestClassifyBlueZ(t *testing.T) {
	tests := []struct {
		addrType string
		mac      string
		typ      string
		sub      string
	}{
		{"public", "D0:5F:B8:51:9E:67", AddressPublic, ""},
		{"random", "3F:00:00:00:00:01", AddressRandom, "non_resolvable_private"},
		{"random", "4A:00:00:00:00:01", AddressRandom, "resolvable_private"},
		{"random", "8A:00:00:00:00:01", AddressRandom, "reserved"},
		{"Random", "FA:00:00:00:00:01", AddressRandom, "static_random"},
		{"random", "zz", AddressRandom, ""},
	}
	for _, tt := range tests {
		t.Run(tt.mac, func(t *testing.T) {
			typ, sub := ClassifyBlueZ(tt.addrType, tt.mac)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.sub, sub)
		})
	}
}
