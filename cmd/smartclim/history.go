package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"smartclim/internal/db"
	"smartclim/internal/util"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [address]",
	Short: "Show stored devices or the readings of one device",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Readings to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := db.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	if len(args) == 1 {
		if !util.IsMACAddress(args[0]) {
			return fmt.Errorf("%q is not a device address", args[0])
		}
		readings, err := store.Readings(ctx, args[0], historyLimit)
		if err != nil {
			return err
		}
		for _, r := range readings {
			fmt.Fprintf(w, "%s %-13s %5.1f°C %3d%% battery %3d%%\n", r.Timestamp, r.Format, r.Temperature, r.Humidity, r.Battery)
		}
		return nil
	}

	devices, err := store.Devices(ctx)
	if err != nil {
		return err
	}
	for _, d := range devices {
		line := fmt.Sprintf("%s %-20s seen %d times, last %s", d.MAC, util.SafeName(d.Name), d.DetectionCount, d.LastSeen)
		r, err := store.LatestReading(ctx, d.MAC)
		switch {
		case err == nil:
			line += fmt.Sprintf(", %.1f°C %d%% battery %d%%", r.Temperature, r.Humidity, r.Battery)
		case !errors.Is(err, db.ErrNoReading):
			return err
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
