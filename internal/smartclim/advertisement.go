package smartclim

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"smartclim/internal/sensorstate"
)

var ErrUnsupported = errors.New("unsupported advertisement")

// Advertisement is what a transport observed for one device in one scan.
type Advertisement struct {
	Address          string
	LocalName        string
	RSSI             int
	ManufacturerData ManufacturerData
	SeenAt           time.Time
}

// Event is a decoded advertisement.
type Event struct {
	Address string
	Name    string
	RSSI    int
	SeenAt  time.Time
	Format  Format
	Payload []byte
	Reading SensorReading
	Update  sensorstate.SensorUpdate
}

// DeviceID derives the stable device scope used for sensor keys from an
// address: lower-case hex without separators.
func DeviceID(address string) string {
	id := strings.ToLower(strings.TrimSpace(address))
	id = strings.ReplaceAll(id, ":", "")
	id = strings.ReplaceAll(id, "-", "")
	return id
}

// ParseAdvertisement recognizes and decodes adv. Unrelated advertisements
// return ErrUnsupported.
func (r Recognizer) ParseAdvertisement(adv Advertisement) (Event, error) {
	if !r.Supported(adv.ManufacturerData) {
		return Event{}, ErrUnsupported
	}
	payload, err := r.Payload(adv.ManufacturerData)
	if err != nil {
		return Event{}, err
	}
	format := r.FormatOf(payload)
	reading, err := Decode(payload, format)
	if err != nil {
		return Event{}, fmt.Errorf("decode %s: %w", adv.Address, err)
	}

	name := strings.TrimSpace(adv.LocalName)
	return Event{
		Address: strings.ToUpper(strings.TrimSpace(adv.Address)),
		Name:    name,
		RSSI:    adv.RSSI,
		SeenAt:  adv.SeenAt,
		Format:  format,
		Payload: payload,
		Reading: reading,
		Update:  ToSensorUpdate(reading, DeviceID(adv.Address), sensorstate.SensorDeviceInfo{Name: name}),
	}, nil
}

// ParseAdvertisement uses the default manufacturer key.
func ParseAdvertisement(adv Advertisement) (Event, error) {
	return defaultRecognizer.ParseAdvertisement(adv)
}
