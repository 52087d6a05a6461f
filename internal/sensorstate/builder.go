package sensorstate

import "sync"

// Builder accumulates device info and values and produces SensorUpdate
// snapshots. It is safe for concurrent use.
type Builder struct {
	mu sync.Mutex

	title        string
	devices      map[string]SensorDeviceInfo
	descriptions map[DeviceKey]SensorDescription
	values       map[DeviceKey]SensorValue
}

func NewBuilder() *Builder {
	return &Builder{
		devices:      map[string]SensorDeviceInfo{},
		descriptions: map[DeviceKey]SensorDescription{},
		values:       map[DeviceKey]SensorValue{},
	}
}

func (b *Builder) SetTitle(title string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.title = title
}

// SetDeviceInfo stores info for deviceID; empty fields keep what was there.
func (b *Builder) SetDeviceInfo(deviceID string, info SensorDeviceInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.devices[deviceID]
	if info.Name != "" {
		cur.Name = info.Name
	}
	if info.Model != "" {
		cur.Model = info.Model
	}
	if info.Manufacturer != "" {
		cur.Manufacturer = info.Manufacturer
	}
	if info.SWVersion != "" {
		cur.SWVersion = info.SWVersion
	}
	if info.HWVersion != "" {
		cur.HWVersion = info.HWVersion
	}
	b.devices[deviceID] = cur
}

// UpdateSensor sets description and value for one key.
func (b *Builder) UpdateSensor(key DeviceKey, class DeviceClass, unit Units, name string, value float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.descriptions[key] = SensorDescription{DeviceKey: key, DeviceClass: class, Unit: unit}
	b.values[key] = SensorValue{DeviceKey: key, Name: name, Value: value}
}

// Update returns a snapshot; later builder changes do not affect it.
func (b *Builder) Update() SensorUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := SensorUpdate{
		Title:        b.title,
		Devices:      make(map[string]SensorDeviceInfo, len(b.devices)),
		Descriptions: make(map[DeviceKey]SensorDescription, len(b.descriptions)),
		Values:       make(map[DeviceKey]SensorValue, len(b.values)),
	}
	for k, v := range b.devices {
		out.Devices[k] = v
	}
	for k, v := range b.descriptions {
		out.Descriptions[k] = v
	}
	for k, v := range b.values {
		out.Values[k] = v
	}
	return out
}
