package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

var (
	ErrAdapterNotFound = errors.New("adapter not found")
	ErrAdapterOff      = errors.New("adapter not powered")
)

// CacheMode controls which cached BlueZ device objects are removed before a
// run. BlueZ keeps the last ManufacturerData of every device it has seen, so
// a stale object would otherwise be reported as a fresh reading.
type CacheMode string

const (
	CacheOff   CacheMode = "off"
	CacheAuto  CacheMode = "auto"
	CacheForce CacheMode = "force"
)

func ParseCacheMode(s string) (CacheMode, error) {
	switch m := CacheMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return CacheAuto, nil
	case CacheOff, CacheAuto, CacheForce:
		return m, nil
	default:
		return "", fmt.Errorf("unknown cache mode %q", s)
	}
}

type PreflightOptions struct {
	CacheMode CacheMode
}

// Preflight checks that BlueZ exposes a powered adapter and clears cached
// devices according to opt. It returns the number of removed device objects.
func Preflight(ctx context.Context, adapterID string, opt PreflightOptions) (int, error) {
	adapterID = strings.TrimSpace(adapterID)

	conn, err := dbus.SystemBus()
	if err != nil {
		return 0, err
	}

	managed, err := getManagedObjects(ctx, conn)
	if err != nil {
		return 0, err
	}

	if err := checkAdapter(managed, adapterID); err != nil {
		return 0, err
	}

	if opt.CacheMode == "" {
		opt.CacheMode = CacheAuto
	}
	adapterObj := conn.Object(bluezService, dbus.ObjectPath("/org/bluez/"+adapterID))
	removed := 0
	for _, path := range stalePaths(managed, adapterID, opt.CacheMode) {
		if err := adapterObj.CallWithContext(ctx, "org.bluez.Adapter1.RemoveDevice", 0, path).Err; err == nil {
			removed++
		}
	}
	return removed, nil
}

func checkAdapter(managed managedObjects, adapterID string) error {
	ifaces, ok := managed[dbus.ObjectPath("/org/bluez/"+adapterID)]
	if !ok {
		return fmt.Errorf("%s: %w", adapterID, ErrAdapterNotFound)
	}
	a1, ok := ifaces[adapter1Iface]
	if !ok {
		return fmt.Errorf("%s: %w", adapterID, ErrAdapterNotFound)
	}
	if p := getBoolPtr(a1, "Powered"); p != nil && !*p {
		return fmt.Errorf("%s: %w", adapterID, ErrAdapterOff)
	}
	return nil
}

func stalePaths(managed managedObjects, adapterID string, mode CacheMode) []dbus.ObjectPath {
	if mode == CacheOff {
		return nil
	}
	adapterPrefix := "/org/bluez/" + adapterID + "/dev_"
	var out []dbus.ObjectPath
	for path, ifaces := range managed {
		if !strings.HasPrefix(string(path), adapterPrefix) {
			continue
		}
		dev1, ok := ifaces[device1Iface]
		if !ok {
			continue
		}
		// Never remove connected devices.
		if c := getBoolPtr(dev1, "Connected"); c != nil && *c {
			continue
		}
		if mode == CacheAuto {
			paired := getBoolPtr(dev1, "Paired")
			trusted := getBoolPtr(dev1, "Trusted")
			if (paired != nil && *paired) || (trusted != nil && *trusted) {
				continue
			}
		}
		out = append(out, path)
	}
	return out
}

func getBoolPtr(props map[string]dbus.Variant, key string) *bool {
	v, ok := props[key]
	if !ok {
		return nil
	}
	b, ok := v.Value().(bool)
	if !ok {
		return nil
	}
	return &b
}
