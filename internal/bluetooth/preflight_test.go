package bluetooth

import (
	"sort"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func preflightObjects() managedObjects {
	return managedObjects{
		"/org/bluez/hci0": {
			"org.bluez.Adapter1": {"Powered": dbus.MakeVariant(true)},
		},
		"/org/bluez/hci1": {
			"org.bluez.Adapter1": {"Powered": dbus.MakeVariant(false)},
		},
		"/org/bluez/hci0/dev_A": {device1Iface: {}},
		"/org/bluez/hci0/dev_B": {device1Iface: {"Paired": dbus.MakeVariant(true)}},
		"/org/bluez/hci0/dev_C": {device1Iface: {"Connected": dbus.MakeVariant(true)}},
		"/org/bluez/hci1/dev_D": {device1Iface: {}},
	}
}

func TestCheckAdapter(t *testing.T) {
	m := preflightObjects()
	assert.NoError(t, checkAdapter(m, "hci0"))
	assert.ErrorIs(t, checkAdapter(m, "hci1"), ErrAdapterOff)
	assert.ErrorIs(t, checkAdapter(m, "hci9"), ErrAdapterNotFound)
}

func TestStalePaths(t *testing.T) {
	m := preflightObjects()
	sorted := func(p []dbus.ObjectPath) []dbus.ObjectPath {
		sort.Slice(p, func(i, j int) bool { return p[i] < p[j] })
		return p
	}

	assert.Empty(t, stalePaths(m, "hci0", CacheOff))
	assert.Equal(t, []dbus.ObjectPath{"/org/bluez/hci0/dev_A"}, sorted(stalePaths(m, "hci0", CacheAuto)))
	assert.Equal(t, []dbus.ObjectPath{"/org/bluez/hci0/dev_A", "/org/bluez/hci0/dev_B"}, sorted(stalePaths(m, "hci0", CacheForce)))
}

func TestParseCacheMode(t *testing.T) {
	m, err := ParseCacheMode("")
	require.NoError(t, err)
	assert.Equal(t, CacheAuto, m)

	m, err = ParseCacheMode(" Force ")
	require.NoError(t, err)
	assert.Equal(t, CacheForce, m)

	_, err = ParseCacheMode("sometimes")
	assert.Error(t, err)
}
