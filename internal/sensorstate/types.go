// Package sensorstate is a small generic model for sensor entities: which
// values a device exposes, how they are classified, and their latest values.
package sensorstate

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// DeviceClass classifies a value for downstream consumers.
type DeviceClass string

const (
	DeviceClassTemperature DeviceClass = "temperature"
	DeviceClassHumidity    DeviceClass = "humidity"
	DeviceClassBattery     DeviceClass = "battery"
)

// Units are unit-of-measurement strings.
type Units string

const (
	UnitCelsius    Units = "°C"
	UnitPercentage Units = "%"
)

var ErrBadDeviceKey = errors.New("bad device key")

// DeviceKey identifies one value of one device. DeviceID may be empty for
// single-device updates.
type DeviceKey struct {
	Key      string `json:"key"`
	DeviceID string `json:"device_id,omitempty"`
}

func (k DeviceKey) String() string {
	if k.DeviceID == "" {
		return k.Key
	}
	return k.Key + "@" + k.DeviceID
}

// MarshalText lets DeviceKey be used as a JSON object key.
func (k DeviceKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *DeviceKey) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return ErrBadDeviceKey
	}
	key, dev, _ := strings.Cut(s, "@")
	if key == "" {
		return ErrBadDeviceKey
	}
	k.Key = key
	k.DeviceID = dev
	return nil
}

type deviceKeyObject struct {
	Key      string `json:"key"`
	DeviceID string `json:"device_id,omitempty"`
}

// MarshalJSON writes the object form for field values. Map keys keep the
// "key@device" text form.
func (k DeviceKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(deviceKeyObject(k))
}

// UnmarshalJSON accepts the object form and, for older payloads, the text form.
func (k *DeviceKey) UnmarshalJSON(b []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(b), []byte(`"`)) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		return k.UnmarshalText([]byte(s))
	}
	var o deviceKeyObject
	if err := json.Unmarshal(b, &o); err != nil {
		return err
	}
	if strings.TrimSpace(o.Key) == "" {
		return ErrBadDeviceKey
	}
	*k = DeviceKey(o)
	return nil
}

// SensorDescription is the static part of an entity.
type SensorDescription struct {
	DeviceKey   DeviceKey   `json:"device_key"`
	DeviceClass DeviceClass `json:"device_class"`
	Unit        Units       `json:"unit,omitempty"`
}

// SensorValue is the latest value of an entity.
type SensorValue struct {
	DeviceKey DeviceKey `json:"device_key"`
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
}

// SensorDeviceInfo describes the physical device.
type SensorDeviceInfo struct {
	Name         string `json:"name,omitempty"`
	Model        string `json:"model,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	SWVersion    string `json:"sw_version,omitempty"`
	HWVersion    string `json:"hw_version,omitempty"`
}

// SensorUpdate is a self-contained snapshot handed to consumers.
type SensorUpdate struct {
	Title        string                          `json:"title,omitempty"`
	Devices      map[string]SensorDeviceInfo     `json:"devices"`
	Descriptions map[DeviceKey]SensorDescription `json:"entity_descriptions"`
	Values       map[DeviceKey]SensorValue       `json:"entity_values"`
}

// Value returns the value stored under key.
func (u SensorUpdate) Value(key DeviceKey) (SensorValue, bool) {
	v, ok := u.Values[key]
	return v, ok
}
