package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"smartclim/internal/bluetooth"
	"smartclim/internal/gps"
)

var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "List Bluetooth controllers and serial ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()

		ifaces, err := bluetooth.GetBluetoothInterfaces()
		if err != nil {
			fmt.Fprintf(w, "Bluetooth: hciconfig failed: %v\n", err)
		} else {
			fmt.Fprintln(w, "Bluetooth interfaces:")
			for i, inf := range ifaces {
				state := "down"
				if inf.Up {
					state = "up"
				}
				fmt.Fprintf(w, "%d: %s %s (%s, %s)\n", i, inf.ID, inf.Address, inf.BusInfo, state)
			}
		}

		ports, err := gps.ListSerialPorts()
		if err != nil {
			return fmt.Errorf("list serial ports: %w", err)
		}
		fmt.Fprintln(w, "Serial ports:")
		for i, p := range ports {
			if p.USB {
				fmt.Fprintf(w, "%d: %s (USB %s)\n", i, p.Name, p.Product)
				continue
			}
			fmt.Fprintf(w, "%d: %s\n", i, p.Name)
		}
		if g := gps.GuessSerialDevice(); g != "" {
			fmt.Fprintf(w, "GPS auto-detect would use %s\n", g)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(adaptersCmd)
}
