package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"smartclim/internal/bluetooth"
	"smartclim/internal/collector"
	"smartclim/internal/smartclim"
	"smartclim/internal/util"
)

var (
	skipPreflight bool
	snapshotOnly  bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Record readings from SmartClim advertisements",
	Long: `Listen for LE advertisements on the adapter and record every SmartClim
frame found in the manufacturer data. Runs until interrupted.`,
	RunE: runScan,
}

var bluezCmd = &cobra.Command{
	Use:   "bluez",
	Short: "Record readings from BlueZ discovery windows over D-Bus",
	Long: `Run repeated discovery windows through BlueZ and record the SmartClim
frames BlueZ reports for each device. Useful when another process owns the
adapter's scan or when the LE scanner is unavailable.`,
	RunE: runBlueZ,
}

func init() {
	scanCmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Do not check the adapter or clear the BlueZ cache")
	bluezCmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Do not check the adapter or clear the BlueZ cache")
	bluezCmd.Flags().BoolVar(&snapshotOnly, "snapshot", false, "Read what BlueZ already knows without starting discovery")
	rootCmd.AddCommand(scanCmd, bluezCmd)
}

// quiet reports errors that are routine while scanning.
func quiet(err error) bool {
	return errors.Is(err, smartclim.ErrUnsupported) || errors.Is(err, collector.ErrDuplicate)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	printLogo(cmd.OutOrStdout())
	rt, err := setup(ctx, "scan")
	if err != nil {
		return err
	}
	defer rt.close()

	if !skipPreflight {
		if err := rt.preflight(ctx); err != nil {
			return err
		}
	}

	c := rt.newCollector()
	sessions, err := rt.cfg.Sessions()
	if err != nil {
		return err
	}
	c.Adopt(sessions...)
	rt.startStatus(ctx, c)

	// The scan callback must return quickly; storage happens on a worker.
	// The queue is never closed: tinygo may still deliver a result after a
	// stop that timed out.
	queue := make(chan bluetooth.Observation, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case obs := <-queue:
				if _, err := c.HandleObservation(ctx, obs); err != nil && !quiet(err) {
					rt.log.Debug("observation", "address", obs.Address, "error", err)
				}
			}
		}
	}()

	rec := smartclim.Recognizer{Key: rt.cfg.ManufacturerKey}
	scanner := bluetooth.NewScanner(rt.cfg.Adapter)
	util.Linef("[SCAN]", util.ColorGray, "listening on %s", rt.cfg.Adapter)
	err = scanner.Listen(ctx, func(obs bluetooth.Observation) {
		if !rec.Supported(obs.ManufacturerData) {
			return
		}
		select {
		case queue <- obs:
		case <-ctx.Done():
		default:
			rt.log.Warn("observation queue full, dropping", "address", obs.Address)
		}
	})
	interrupted := ctx.Err() != nil
	cancel()
	<-done

	if interrupted {
		util.Line("[EXIT]", util.ColorGray, "stopping")
		return nil
	}
	return err
}

func runBlueZ(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	printLogo(cmd.OutOrStdout())
	rt, err := setup(ctx, "bluez")
	if err != nil {
		return err
	}
	defer rt.close()

	if !skipPreflight && !snapshotOnly {
		if err := rt.preflight(ctx); err != nil {
			return err
		}
	}

	c := rt.newCollector()
	sessions, err := rt.cfg.Sessions()
	if err != nil {
		return err
	}
	c.Adopt(sessions...)
	rt.startStatus(ctx, c)

	window := rt.cfg.ScanWindow
	err = bluetooth.SuperviseAdapter(ctx, rt.cfg.Adapter, rt.log, func(ctx context.Context, adapter string) error {
		for {
			var obs []bluetooth.Observation
			var err error
			if snapshotOnly {
				obs, err = bluetooth.SnapshotBlueZ(ctx, adapter)
			} else {
				obs, err = bluetooth.ScanBlueZ(ctx, adapter, window)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				util.Linef("[ERROR]", util.ColorRed, "bluez discovery on %s: %v", adapter, err)
			}

			recorded := 0
			for _, o := range obs {
				if _, err := c.HandleObservation(ctx, o); err != nil {
					if !quiet(err) {
						rt.log.Debug("observation", "address", o.Address, "error", err)
					}
					continue
				}
				recorded++
			}
			rt.log.Debug("bluez window", "adapter", adapter, "devices", len(obs), "recorded", recorded)

			// ScanBlueZ already waited a window; snapshots and failed scans
			// wait here so the cache can refresh.
			if snapshotOnly || err != nil {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(window):
				}
			}
		}
	})
	if ctx.Err() != nil {
		util.Line("[EXIT]", util.ColorGray, "stopping")
		return nil
	}
	return err
}

