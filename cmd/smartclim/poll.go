package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"smartclim/internal/bluetooth"
	"smartclim/internal/collector"
	"smartclim/internal/util"
)

var (
	pollOnce    bool
	pollVerbose bool
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Connect to configured sensors and read them over GATT",
	Long: `Every poll interval, scan briefly to locate the devices listed in the
config, connect to each one and read its sensor characteristic. Device
information (manufacturer, model, firmware) is read on the first connection
and refreshed daily.`,
	RunE: runPoll,
}

func init() {
	pollCmd.Flags().BoolVar(&pollOnce, "once", false, "Poll every device once and exit")
	pollCmd.Flags().BoolVarP(&pollVerbose, "verbose", "v", false, "List discovered characteristics on connect")
	rootCmd.AddCommand(pollCmd)
}

func runPoll(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	rt, err := setup(ctx, "poll")
	if err != nil {
		return err
	}
	defer rt.close()

	sessions, err := rt.cfg.Sessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return errors.New("no devices configured; add them under devices: in the config file")
	}

	if err := rt.preflight(ctx); err != nil {
		return err
	}

	c := rt.newCollector()
	c.Adopt(sessions...)

	scanner := bluetooth.NewScanner(rt.cfg.Adapter)
	p := &collector.Poller{
		Collector: c,
		Sessions:  sessions,
		Window:    rt.cfg.ScanWindow,
		Scan:      scanner.ScanFor,
		Connect: func(ctx context.Context, obs bluetooth.Observation) (collector.Link, error) {
			link, err := scanner.Connect(ctx, obs, rt.cfg.ConnectTimeout)
			if err != nil {
				return nil, err
			}
			if pollVerbose {
				for _, ch := range link.Characteristics() {
					util.Linef("[GATT]", util.ColorGray, "%s %s", obs.Address, rt.vendors.AnnotateCharacteristic(ch))
				}
			}
			return link, nil
		},
	}

	if pollOnce {
		return p.RunOnce(ctx)
	}

	rt.startStatus(ctx, c)
	util.Linef("[POLL]", util.ColorGray, "%d devices every %s", len(sessions), rt.cfg.PollInterval)
	if err := p.Run(ctx, rt.cfg.PollInterval); err != nil && ctx.Err() == nil {
		return err
	}
	util.Line("[EXIT]", util.ColorGray, "stopping")
	return nil
}
