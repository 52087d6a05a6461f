package bluetooth

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"smartclim/internal/smartclim"
)

const (
	bluezService = "org.bluez"
	device1Iface = "org.bluez.Device1"
)

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// ScanBlueZ runs an LE discovery window through BlueZ over D-Bus and returns
// every device BlueZ knows on the adapter afterwards.
func ScanBlueZ(ctx context.Context, adapterID string, window time.Duration) ([]Observation, error) {
	if window <= 0 {
		window = 5 * time.Second
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}

	adapterObj := conn.Object(bluezService, dbus.ObjectPath("/org/bluez/"+adapterID))

	// Restrict discovery to LE and keep duplicates so RSSI and data refresh.
	_ = adapterObj.CallWithContext(ctx, "org.bluez.Adapter1.SetDiscoveryFilter", 0, map[string]dbus.Variant{
		"Transport":     dbus.MakeVariant("le"),
		"DuplicateData": dbus.MakeVariant(true),
	}).Err

	// InProgress means someone else is discovering; the snapshot is still useful.
	_ = adapterObj.CallWithContext(ctx, "org.bluez.Adapter1.StartDiscovery", 0).Err

	select {
	case <-ctx.Done():
		_ = adapterObj.Call("org.bluez.Adapter1.StopDiscovery", 0).Err
		return nil, ctx.Err()
	case <-time.After(window):
	}

	_ = adapterObj.CallWithContext(ctx, "org.bluez.Adapter1.StopDiscovery", 0).Err
	_ = adapterObj.CallWithContext(ctx, "org.bluez.Adapter1.SetDiscoveryFilter", 0, map[string]dbus.Variant{}).Err

	return snapshotWithConn(ctx, conn, adapterID)
}

// SnapshotBlueZ returns the devices BlueZ currently caches for the adapter
// without starting discovery.
func SnapshotBlueZ(ctx context.Context, adapterID string) ([]Observation, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	return snapshotWithConn(ctx, conn, adapterID)
}

func snapshotWithConn(ctx context.Context, conn *dbus.Conn, adapterID string) ([]Observation, error) {
	managed, err := getManagedObjects(ctx, conn)
	if err != nil {
		return nil, err
	}
	return observationsFromManaged(managed, adapterID, time.Now()), nil
}

func observationsFromManaged(managed managedObjects, adapterID string, at time.Time) []Observation {
	adapterPrefix := "/org/bluez/" + adapterID + "/dev_"
	out := make([]Observation, 0, len(managed))

	for path, ifaces := range managed {
		if !strings.HasPrefix(string(path), adapterPrefix) {
			continue
		}
		dev1, ok := ifaces[device1Iface]
		if !ok {
			continue
		}

		addr, _ := getString(dev1, "Address")
		addr = strings.ToUpper(strings.TrimSpace(addr))
		if addr == "" {
			continue
		}

		name, _ := getString(dev1, "Name")
		if name == "" {
			name, _ = getString(dev1, "Alias")
		}
		rssi := 0
		if v := getInt16AsIntPtr(dev1, "RSSI"); v != nil {
			rssi = *v
		}
		addrType, _ := getString(dev1, "AddressType")
		typ, sub := ClassifyBlueZ(addrType, addr)

		out = append(out, Observation{
			Advertisement: smartclim.Advertisement{
				Address:          addr,
				LocalName:        strings.TrimSpace(name),
				RSSI:             rssi,
				ManufacturerData: manufacturerDataFromProps(dev1),
				SeenAt:           at,
			},
			AddressType:    typ,
			AddressSubType: sub,
			Source:         "bluez",
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// manufacturerDataFromProps reads Device1.ManufacturerData, which BlueZ sends
// as a{qv} and some bindings decode as a{qay}.
func manufacturerDataFromProps(props map[string]dbus.Variant) smartclim.ManufacturerData {
	md := smartclim.ManufacturerData{}
	v, ok := props["ManufacturerData"]
	if !ok {
		return md
	}
	switch mm := v.Value().(type) {
	case map[uint16][]byte:
		for k, b := range mm {
			md[k] = append([]byte(nil), b...)
		}
	case map[uint16]dbus.Variant:
		for k, vv := range mm {
			if b, ok := vv.Value().([]byte); ok {
				md[k] = append([]byte(nil), b...)
			}
		}
	}
	return md
}

func getString(props map[string]dbus.Variant, key string) (string, bool) {
	v, ok := props[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value().(string)
	if !ok {
		return "", false
	}
	return s, true
}

func getInt16AsIntPtr(props map[string]dbus.Variant, key string) *int {
	v, ok := props[key]
	if !ok {
		return nil
	}
	switch x := v.Value().(type) {
	case int16:
		vv := int(x)
		return &vv
	case int32:
		vv := int(x)
		return &vv
	case int:
		vv := x
		return &vv
	default:
		return nil
	}
}
