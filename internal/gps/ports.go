package gps

import (
	"os"
	"path/filepath"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Port is a serial device candidate.
type Port struct {
	Name    string
	USB     bool
	Product string
}

// ListSerialPorts returns serial devices, with USB details when the
// enumerator can provide them.
func ListSerialPorts() ([]Port, error) {
	detailed, err := enumerator.GetDetailedPortsList()
	if err == nil && len(detailed) > 0 {
		out := make([]Port, 0, len(detailed))
		for _, p := range detailed {
			out = append(out, Port{Name: p.Name, USB: p.IsUSB, Product: p.Product})
		}
		return out, nil
	}

	names, err2 := serial.GetPortsList()
	if err2 != nil {
		if err != nil {
			return nil, err
		}
		return nil, err2
	}
	out := make([]Port, 0, len(names))
	for _, n := range names {
		out = append(out, Port{Name: n})
	}
	return out, nil
}

// GuessSerialDevice returns a likely GPS receiver path or "".
func GuessSerialDevice() string {
	// Stable symlinks first.
	if matches, _ := filepath.Glob("/dev/serial/by-id/*"); len(matches) > 0 {
		return matches[0]
	}

	if ports, _ := ListSerialPorts(); len(ports) > 0 {
		for _, p := range ports {
			if p.USB {
				return p.Name
			}
		}
		return ports[0].Name
	}

	for _, c := range []string{"/dev/ttyACM0", "/dev/ttyUSB0", "/dev/ttyAMA0"} {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}
