package gps

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	"go.bug.st/serial"

	"smartclim/internal/util"
)

var errReaderStopped = errors.New("serial reader stopped")

func (s *State) runSerialLoop(ctx context.Context, dev string, baud int) {
	connected := false
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !connected {
			util.Linef("[GPS]", util.ColorGray, "opening serial %s (%d baud)", dev, baud)
			s.log.Info("gps opening serial", "device", dev, "baud", baud)
		}
		connected = true
		s.setDevice(dev)
		if err := s.readSerial(ctx, dev, baud); err != nil {
			connected = false
			if ctx.Err() != nil {
				return
			}
			util.Linef("[GPS]", util.ColorYellow, "serial disconnected: %v", err)
			s.log.Warn("gps serial disconnected", "device", dev, "err", err)

			// The device may come back under another name after a replug.
			if guessed := GuessSerialDevice(); guessed != "" && guessed != dev {
				s.log.Info("gps serial device changed", "device", guessed)
				dev = guessed
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
	}
}

func (s *State) readSerial(ctx context.Context, dev string, baud int) error {
	port, err := serial.Open(dev, &serial.Mode{BaudRate: baud})
	if err != nil {
		return err
	}
	defer port.Close()

	// Unblock the read when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { _ = port.Close() })
	defer stop()

	return s.consume(ctx, port)
}

// consume feeds NMEA lines from r into the state until r ends.
func (s *State) consume(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.handleLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errReaderStopped
}

func (s *State) handleLine(line string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return
	}
	s.updatePacket()

	sent, err := nmea.Parse(line)
	if err != nil {
		return
	}

	switch v := sent.(type) {
	case nmea.RMC:
		if strings.EqualFold(v.Validity, "A") {
			s.updateFix(v.Latitude, v.Longitude)
		}
	case nmea.GGA:
		// FixQuality "0" means invalid.
		if v.FixQuality != "0" && (v.Latitude != 0 || v.Longitude != 0) {
			s.updateFix(v.Latitude, v.Longitude)
		}
	case nmea.GLL:
		if strings.EqualFold(v.Validity, "A") {
			s.updateFix(v.Latitude, v.Longitude)
		}
	}
}
