package smartclim

import (
	"errors"
	"fmt"
)

// ManufacturerKey is the manufacturer-data key the sensor advertises under.
const ManufacturerKey uint16 = 13

var ErrKeyNotFound = errors.New("manufacturer key not found")

// ManufacturerData maps a vendor identifier to its advertised payload.
type ManufacturerData map[uint16][]byte

// Recognizer matches advertisements against one expected vendor key.
// The zero value uses ManufacturerKey.
type Recognizer struct {
	Key uint16
}

var defaultRecognizer = Recognizer{Key: ManufacturerKey}

func (r Recognizer) key() uint16 {
	if r.Key == 0 {
		return ManufacturerKey
	}
	return r.Key
}

// Supported reports whether md carries a SmartClim frame. It never fails:
// anything it cannot recognize is simply unsupported.
func (r Recognizer) Supported(md ManufacturerData) bool {
	if len(md) == 0 {
		return false
	}
	data, ok := md[r.key()]
	if !ok {
		return false
	}
	switch len(data) {
	case DirectFrameLen:
		return true
	case AdvertisementFrameLen:
		return data[0] == AdvertisementMarker
	default:
		return false
	}
}

// Payload returns a copy of the blob stored under the expected key.
func (r Recognizer) Payload(md ManufacturerData) ([]byte, error) {
	data, ok := md[r.key()]
	if !ok {
		return nil, fmt.Errorf("key %d: %w", r.key(), ErrKeyNotFound)
	}
	return append([]byte(nil), data...), nil
}

// FormatOf returns the frame layout of a supported payload.
func (r Recognizer) FormatOf(payload []byte) Format {
	if len(payload) == AdvertisementFrameLen {
		return FormatAdvertisement
	}
	return FormatDirect
}

// Supported checks md against the default manufacturer key.
func Supported(md ManufacturerData) bool {
	return defaultRecognizer.Supported(md)
}

// ManufacturerPayload returns the blob stored under the default manufacturer key.
func ManufacturerPayload(md ManufacturerData) ([]byte, error) {
	return defaultRecognizer.Payload(md)
}
