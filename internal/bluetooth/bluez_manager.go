package bluetooth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"smartclim/internal/util"
)

const adapter1Iface = "org.bluez.Adapter1"

// AdapterFunc runs against one adapter until ctx is cancelled, either by the
// caller or because the adapter went away.
type AdapterFunc func(ctx context.Context, adapterID string) error

// SuperviseAdapter keeps run going on adapterID across hot-plug. When the
// adapter disappears run's context is cancelled; when it comes back, possibly
// under a new hciN name, run is started again. Returns when ctx is done.
func SuperviseAdapter(ctx context.Context, adapterID string, logger *slog.Logger, run AdapterFunc) error {
	if logger == nil {
		logger = slog.Default()
	}
	adapterID = strings.TrimSpace(adapterID)

	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	managed := func() managedObjects {
		m, err := getManagedObjects(ctx, conn)
		if err != nil {
			return nil
		}
		return m
	}

	// The controller address lets us follow the adapter if it is renamed
	// after a replug, e.g. hci1 coming back as hci2.
	knownAddr := adapterAddress(managed(), adapterID)

	var wasPresent bool
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		m := managed()
		present := adapterPresent(m, adapterID)
		if !present && knownAddr != "" {
			if newID := findAdapterByAddress(m, knownAddr); newID != "" && newID != adapterID {
				util.Linef("[ADAPTER]", util.ColorYellow, "%s remapped to %s (addr=%s)", adapterID, newID, knownAddr)
				logger.Info("adapter remapped", "from", adapterID, "to", newID, "address", knownAddr)
				adapterID = newID
				present = true
			}
		}
		if present != wasPresent {
			if present {
				util.Linef("[ADAPTER]", util.ColorGreen, "%s connected", adapterID)
				logger.Info("adapter connected", "adapter", adapterID)
				if knownAddr == "" {
					knownAddr = adapterAddress(m, adapterID)
				}
				backoff = time.Second
			} else {
				util.Linef("[ADAPTER]", util.ColorYellow, "%s disconnected", adapterID)
				logger.Warn("adapter disconnected", "adapter", adapterID)
			}
			wasPresent = present
		}
		if !present {
			if !sleepCtx(ctx, 2*time.Second) {
				return ctx.Err()
			}
			continue
		}

		_ = setAdapterPowered(ctx, conn, adapterID)

		workerCtx, cancel := context.WithCancel(ctx)
		monDone := make(chan struct{})
		go func(id string) {
			defer close(monDone)
			t := time.NewTicker(2 * time.Second)
			defer t.Stop()
			for {
				select {
				case <-workerCtx.Done():
					return
				case <-t.C:
					m, err := getManagedObjects(workerCtx, conn)
					if err == nil && !adapterPresent(m, id) {
						cancel()
						return
					}
				}
			}
		}(adapterID)

		if err := run(workerCtx, adapterID); err != nil && workerCtx.Err() == nil {
			logger.Warn("adapter worker stopped", "adapter", adapterID, "error", err)
		}
		cancel()
		<-monDone

		if !sleepCtx(ctx, backoff) {
			return ctx.Err()
		}
		if backoff < 8*time.Second {
			backoff *= 2
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func getManagedObjects(ctx context.Context, conn *dbus.Conn) (managedObjects, error) {
	call := conn.Object(bluezService, dbus.ObjectPath("/")).
		CallWithContext(ctx, "org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0)
	if call.Err != nil {
		return nil, call.Err
	}
	var m managedObjects
	if err := call.Store(&m); err != nil {
		return nil, err
	}
	return m, nil
}

func adapterPresent(m managedObjects, adapterID string) bool {
	ifaces, ok := m[dbus.ObjectPath("/org/bluez/"+strings.TrimSpace(adapterID))]
	if !ok {
		return false
	}
	_, ok = ifaces[adapter1Iface]
	return ok
}

func adapterAddress(m managedObjects, adapterID string) string {
	ad, ok := m[dbus.ObjectPath("/org/bluez/"+strings.TrimSpace(adapterID))][adapter1Iface]
	if !ok {
		return ""
	}
	s, _ := getString(ad, "Address")
	return util.NormalizeMAC(s)
}

// findAdapterByAddress returns the adapter ID (hciN) owning controller addr.
func findAdapterByAddress(m managedObjects, addr string) string {
	addr = util.NormalizeMAC(addr)
	if addr == "" {
		return ""
	}
	for path, ifaces := range m {
		ad, ok := ifaces[adapter1Iface]
		if !ok {
			continue
		}
		if s, _ := getString(ad, "Address"); util.NormalizeMAC(s) != addr {
			continue
		}
		if id, ok := strings.CutPrefix(string(path), "/org/bluez/"); ok && !strings.Contains(id, "/") {
			return id
		}
	}
	return ""
}

func setAdapterPowered(ctx context.Context, conn *dbus.Conn, adapterID string) error {
	obj := conn.Object(bluezService, dbus.ObjectPath("/org/bluez/"+strings.TrimSpace(adapterID)))
	return obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.Set", 0,
		adapter1Iface, "Powered", dbus.MakeVariant(true)).Err
}
