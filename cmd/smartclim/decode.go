package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"smartclim/internal/bluetooth"
	"smartclim/internal/sensorstate"
	"smartclim/internal/smartclim"
	"smartclim/internal/util"
)

var (
	decodeFormat  string
	decodeAddress string
	decodeAD      bool
	decodeKey     uint16
)

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Decode a SmartClim frame given as hex",
	Long: `Decode one frame without touching the adapter, e.g.

  smartclim decode 0500de00023b070000062e
  smartclim decode --format direct "00 de 00 02 3b 07 00 00 06 2e"
  smartclim decode --ad 0201060eff0d000500de00023b070000062e

With --format auto the layout follows the frame length. With --ad the input is
a whole advertising payload; its elements are listed and the manufacturer
data is checked the same way the scanner checks it.`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().StringVarP(&decodeFormat, "format", "f", "auto", "auto|direct|advertisement")
	decodeCmd.Flags().BoolVar(&decodeAD, "ad", false, "Input is a raw advertising payload")
	decodeCmd.Flags().Uint16Var(&decodeKey, "key", 0, "Manufacturer key for --ad (0 = manufacturer_key from config)")
	decodeCmd.Flags().StringVar(&decodeAddress, "address", "00:00:00:00:00:00", "Device address used for the update keys")
	rootCmd.AddCommand(decodeCmd)
}

func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(strings.TrimSpace(s))
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}

func parseFormat(s string, buf []byte) (smartclim.Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return smartclim.Recognizer{}.FormatOf(buf), nil
	case "direct":
		return smartclim.FormatDirect, nil
	case "advertisement", "adv":
		return smartclim.FormatAdvertisement, nil
	default:
		return 0, fmt.Errorf("unknown format %q (allowed: auto, direct, advertisement)", s)
	}
}

func runDecode(cmd *cobra.Command, args []string) error {
	buf, err := parseHex(args[0])
	if err != nil {
		return fmt.Errorf("hex: %w", err)
	}
	if decodeAD {
		key := decodeKey
		if key == 0 {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			key = cfg.ManufacturerKey
		}
		return decodeAdvertisement(cmd.OutOrStdout(), buf, smartclim.Recognizer{Key: key})
	}
	format, err := parseFormat(decodeFormat, buf)
	if err != nil {
		return err
	}
	s, err := smartclim.NewSession(decodeAddress, "")
	if err != nil {
		return err
	}

	r, err := smartclim.Decode(buf, format)
	if err != nil {
		return err
	}
	u := smartclim.ToSensorUpdate(r, s.ID(), sensorstate.SensorDeviceInfo{})
	out, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s: %s\n", format, r)
	fmt.Fprintln(w, string(out))
	return nil
}

func decodeAdvertisement(w io.Writer, raw []byte, rec smartclim.Recognizer) error {
	for _, s := range bluetooth.ParseADStructures(raw) {
		fmt.Fprintf(w, "0x%02x %-28s %s\n", s.Type, s.Name(), util.BytesToHex(s.Data))
	}
	if tx, ok := bluetooth.TxPowerFromAD(raw); ok {
		fmt.Fprintf(w, "tx power: %d dBm\n", tx)
	}

	ev, err := rec.ParseAdvertisement(smartclim.Advertisement{
		Address:          decodeAddress,
		LocalName:        bluetooth.LocalNameFromAD(raw),
		ManufacturerData: bluetooth.ManufacturerDataFromAD(raw),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s: %s\n", util.SafeName(ev.Name), ev.Format, ev.Reading)
	return nil
}
