package smartclim

import (
	"errors"
	"fmt"
)

// Format selects the frame layout handed to Decode.
type Format int

const (
	// FormatDirect is the 10-byte frame read from the sensor characteristic
	// over an active connection.
	FormatDirect Format = iota
	// FormatAdvertisement is the 11-byte frame carried in manufacturer data,
	// prefixed with AdvertisementMarker.
	FormatAdvertisement
)

const (
	DirectFrameLen        = 10
	AdvertisementFrameLen = 11

	// AdvertisementMarker is the leading byte of advertisement frames.
	AdvertisementMarker = 0x05
)

func (f Format) String() string {
	switch f {
	case FormatDirect:
		return "direct"
	case FormatAdvertisement:
		return "advertisement"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// layout returns the expected frame length and the offset of the first
// measurement field.
func (f Format) layout() (length int, offset int, ok bool) {
	switch f {
	case FormatDirect:
		return DirectFrameLen, 0, true
	case FormatAdvertisement:
		return AdvertisementFrameLen, 1, true
	default:
		return 0, 0, false
	}
}

var ErrMalformedFrame = errors.New("malformed frame")

// FrameError reports a buffer whose length does not match its format.
type FrameError struct {
	Format Format
	Want   int
	Got    int
}

func (e *FrameError) Error() string {
	if e.Want == 0 {
		return fmt.Sprintf("malformed frame: unknown %s", e.Format)
	}
	return fmt.Sprintf("malformed frame: %s frame needs %d bytes, got %d", e.Format, e.Want, e.Got)
}

func (e *FrameError) Unwrap() error { return ErrMalformedFrame }

// SensorReading is one decoded snapshot.
type SensorReading struct {
	Temperature float64 `json:"temperature"`
	Humidity    int     `json:"humidity"`
	Battery     int     `json:"battery"`
}

func (r SensorReading) String() string {
	return fmt.Sprintf("temperature=%.1f humidity=%d%% battery=%d%%", r.Temperature, r.Humidity, r.Battery)
}

// Decode extracts a reading from buf laid out as format.
//
// Temperature is carried in tenths of a degree. The device does not send a
// 16-bit word: the value is the sum of the two bytes, and a high byte of 0xFF
// marks a negative value whose magnitude is 0xFF minus the low byte.
func Decode(buf []byte, format Format) (SensorReading, error) {
	want, off, ok := format.layout()
	if !ok {
		return SensorReading{}, &FrameError{Format: format}
	}
	if len(buf) != want {
		return SensorReading{}, &FrameError{Format: format, Want: want, Got: len(buf)}
	}

	return SensorReading{
		Temperature: float64(tenths(buf[off+1], buf[off+2])) / 10.0,
		Humidity:    int(buf[off+4]),
		Battery:     int(buf[off+9]),
	}, nil
}

func tenths(lo, hi byte) int {
	if hi == 0xFF {
		return int(lo) - int(hi)
	}
	return int(lo) + int(hi)
}
