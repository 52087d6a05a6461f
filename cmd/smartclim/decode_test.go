package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartclim/internal/smartclim"
)

func TestParseHex(t *testing.T) {
	b, err := parseHex("0x05 00:de-00")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x05, 0x00, 0xde, 0x00}, b)

	_, err = parseHex("zz")
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := parseFormat("auto", make([]byte, 11))
	require.NoError(t, err)
	assert.Equal(t, smartclim.FormatAdvertisement, f)

	f, err = parseFormat("", make([]byte, 10))
	require.NoError(t, err)
	assert.Equal(t, smartclim.FormatDirect, f)

	_, err = parseFormat("gatt", nil)
	assert.Error(t, err)
}

func TestDecodeCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"decode", "--address", "D0:5F:B8:51:9E:67", "0500FDFF0228070000062C"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "advertisement: temperature=-0.2 humidity=40% battery=44%")
	assert.Contains(t, out.String(), `"temperature@d05fb8519e67"`)
}

func TestDecodeCommandAdvertisement(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"decode", "--ad", "--address", "D0:5F:B8:51:9E:67",
		sampleAdvertisement})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		decodeAD = false
		configPath = ""
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Manufacturer Specific Data")
	assert.Contains(t, out.String(), "SmartClim advertisement: temperature=22.2 humidity=59% battery=46%")
}

const sampleAdvertisement = "020106" + "0a09536d617274436c696d" + "0eff0d00" + "0500de00023b070000062e"

func TestDecodeAdvertisementKey(t *testing.T) {
	// Same frame under vendor key 0x0042.
	raw := "020106" + "0eff4200" + "0500de00023b070000062e"

	cfgFile := filepath.Join(t.TempDir(), "smartclim.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("manufacturer_key: 66\n"), 0o644))
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		decodeAD = false
		decodeKey = 0
		configPath = ""
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)

	// Default key 13 does not match.
	rootCmd.SetArgs([]string{"decode", "--ad", raw})
	assert.ErrorIs(t, rootCmd.Execute(), smartclim.ErrUnsupported)

	// Key taken from the config file.
	rootCmd.SetArgs([]string{"decode", "--ad", "--config", cfgFile, raw})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "advertisement: temperature=22.2 humidity=59% battery=46%")

	// An explicit --key wins over the config.
	rootCmd.SetArgs([]string{"decode", "--ad", "--config", cfgFile, "--key", "13", sampleAdvertisement})
	require.NoError(t, rootCmd.Execute())
}
