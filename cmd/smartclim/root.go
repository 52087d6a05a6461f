package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"smartclim/internal/bluetooth"
	"smartclim/internal/collector"
	"smartclim/internal/config"
	"smartclim/internal/db"
	"smartclim/internal/gps"
	"smartclim/internal/ids"
	"smartclim/internal/logging"
	"smartclim/internal/mqtt"
	"smartclim/internal/smartclim"
	"smartclim/internal/status"
	"smartclim/internal/util"
)

var (
	configPath string
	adapterID  string
	dbPath     string
	logLevel   string
	tag        string
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "smartclim",
	Short: "BeeWi SmartClim collector",
	Long: `smartclim reads BeeWi SmartClim temperature and humidity sensors over
Bluetooth LE, stores readings in SQLite and optionally publishes them to MQTT.

Readings come from advertisements (scan, bluez) or from active GATT
connections to the configured devices (poll).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		util.SetConsole(os.Stdout, noColor)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&adapterID, "adapter", "a", "", "Bluetooth adapter (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&tag, "tag", "", "Tag stored with new devices (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable ANSI colours on the console")
}

// loadConfig reads the config file and applies the persistent flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if s := strings.TrimSpace(adapterID); s != "" {
		cfg.Adapter = s
	}
	if s := strings.TrimSpace(dbPath); s != "" {
		cfg.Database = s
	}
	if s := strings.TrimSpace(logLevel); s != "" {
		cfg.Log.Level = s
	}
	if s := strings.TrimSpace(tag); s != "" {
		cfg.Tag = s
	}
	return cfg, cfg.Validate()
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// runtime holds everything a collecting command shares.
type runtime struct {
	cfg       config.Config
	log       *slog.Logger
	store     *db.Store
	gps       *gps.State
	publisher *mqtt.Publisher
	vendors   *ids.Resolver
	sessionID int64

	closers []func()
}

// setup opens the log, database, GPS receiver and MQTT publisher and records
// a scan session for mode. Optional parts that fail are logged and skipped.
func setup(ctx context.Context, mode string) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, logCloser, err := logging.New(cfg.Log, "smartclim")
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	slog.SetDefault(logger)

	rt := &runtime{cfg: cfg, log: logger}
	rt.closers = append(rt.closers, func() { _ = logCloser.Close() })

	rt.store, err = db.Open(cfg.Database)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("open database %s: %w", cfg.Database, err)
	}
	rt.closers = append(rt.closers, func() { _ = rt.store.Close() })

	rt.vendors, err = ids.Load(cfg.DataDir, "")
	if err != nil {
		logger.Warn("load data files", "dir", cfg.DataDir, "error", err)
	}

	if cfg.GPS.Enabled {
		st := gps.NewState(cfg.GPS.FixTimeout, logger)
		err := st.Start(ctx, gps.Config{Device: cfg.GPS.Device, Baud: cfg.GPS.Baud, FixTimeout: cfg.GPS.FixTimeout})
		if err != nil {
			util.Linef("[GPS]", util.ColorYellow, "disabled: %v", err)
		} else {
			util.Linef("[GPS]", util.ColorGray, "reading %s", st.Device())
			rt.gps = st
		}
	}

	if cfg.MQTT.Enabled {
		pub := mqtt.NewPublisher(cfg.MQTT, logger)
		if err := pub.Connect(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				rt.close()
				return nil, err
			}
			util.Linef("[MQTT]", util.ColorYellow, "%s unavailable: %v", cfg.MQTT.Broker, err)
		} else {
			util.Linef("[MQTT]", util.ColorGray, "connected to %s", cfg.MQTT.Broker)
		}
		// The client keeps reconnecting in the background.
		rt.publisher = pub
		rt.closers = append(rt.closers, pub.Disconnect)
	}

	var tagPtr, gpsStart *string
	if cfg.Tag != "" {
		tagPtr = &cfg.Tag
	}
	if rt.gps != nil {
		gpsStart = rt.gps.GPSStringForRecord()
	}
	rt.sessionID, err = rt.store.CreateSession(ctx, cfg.Adapter, mode, tagPtr, gpsStart)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("create scan session: %w", err)
	}
	id := rt.sessionID
	rt.closers = append(rt.closers, func() {
		if err := rt.store.EndSession(context.Background(), id); err != nil {
			logger.Warn("end scan session", "id", id, "error", err)
		}
	})
	util.Linef("[SESSION]", util.ColorGray, "id=%d adapter=%s mode=%s", rt.sessionID, cfg.Adapter, mode)
	logger.Info("session started", "id", rt.sessionID, "adapter", cfg.Adapter, "mode", mode)
	return rt, nil
}

// close releases resources in reverse order of acquisition.
func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func printLogo(w io.Writer) {
	fmt.Fprintln(w, `
  ___                    _     ___ _ _
 / __|_ __  __ _ _ _ _ _| |_  / __| (_)_ __
 \__ \ '  \/ _' | '_|  _|  _|| (__| | | '  \
 |___/_|_|_\__,_|_|  \__|\__| \___|_|_|_|_|_|`)
}

// newCollector wires the runtime into a collector. Interface members are only
// set when present so nil checks inside the collector hold.
func (rt *runtime) newCollector() *collector.Collector {
	deps := collector.Deps{Store: rt.store, Vendors: rt.vendors, Logger: rt.log}
	if rt.publisher != nil {
		deps.Sink = rt.publisher
	}
	if rt.gps != nil {
		deps.Locator = rt.gps
	}
	return collector.New(collector.Options{
		Recognizer: smartclim.Recognizer{Key: rt.cfg.ManufacturerKey},
		Adapter:    rt.cfg.Adapter,
		SessionID:  rt.sessionID,
		Tag:        rt.cfg.Tag,
		Cooldown:   rt.cfg.DedupCooldown,
		Names:      rt.cfg.DeviceName,
	}, deps)
}

func (rt *runtime) startStatus(ctx context.Context, c *collector.Collector) {
	go status.Run(ctx, rt.cfg.StatusInterval, status.Provider{
		GPS:      rt.gps,
		Store:    rt.store,
		Sessions: c.Sessions,
		Stale:    3 * rt.cfg.PollInterval,
	})
}

// preflight checks the adapter and clears BlueZ's device cache as configured.
func (rt *runtime) preflight(ctx context.Context) error {
	mode, err := bluetooth.ParseCacheMode(rt.cfg.BlueZCache)
	if err != nil {
		return err
	}
	removed, err := bluetooth.Preflight(ctx, rt.cfg.Adapter, bluetooth.PreflightOptions{CacheMode: mode})
	if err != nil {
		return fmt.Errorf("preflight %s: %w", rt.cfg.Adapter, err)
	}
	if removed > 0 {
		util.Linef("[PREFLIGHT]", util.ColorGray, "removed %d cached devices from %s", removed, rt.cfg.Adapter)
	}
	return nil
}
