package smartclim

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"smartclim/internal/sensorstate"
	"smartclim/internal/util"
)

// GATT characteristics read from a connected sensor.
const (
	SensorCharacteristicUUID       = "a8b3fb43-4834-4051-89d0-3de95cddd318"
	ManufacturerNameCharacteristic = "00002a29-0000-1000-8000-00805f9b34fb"
	ModelNumberCharacteristic      = "00002a24-0000-1000-8000-00805f9b34fb"
	FirmwareRevisionCharacteristic = "00002a26-0000-1000-8000-00805f9b34fb"
)

var ErrInvalidAddress = errors.New("invalid device address")

// CharacteristicReader reads one GATT characteristic value by UUID from a
// connected device.
type CharacteristicReader interface {
	ReadCharacteristic(ctx context.Context, uuid string) ([]byte, error)
}

// Session is the per-device record kept by a collector. Only successful
// decodes replace the stored reading.
type Session struct {
	address string
	id      string

	mu         sync.Mutex
	name       string
	reading    SensorReading
	hasReading bool
	lastReadAt time.Time
	info       sensorstate.SensorDeviceInfo
	infoAt     time.Time
}

// NewSession validates address, which must be a MAC (AA:BB:CC:DD:EE:FF) or,
// on platforms that hide MACs, a UUID.
func NewSession(address, name string) (*Session, error) {
	address = strings.TrimSpace(address)
	if !validAddress(address) {
		return nil, fmt.Errorf("%q: %w", address, ErrInvalidAddress)
	}
	address = strings.ToUpper(address)
	return &Session{
		address: address,
		id:      DeviceID(address),
		name:    strings.TrimSpace(name),
	}, nil
}

func validAddress(s string) bool {
	if util.IsMACAddress(s) {
		return true
	}
	// Canonical 8-4-4-4-12 form only.
	if len(s) != 36 || strings.Count(s, "-") != 4 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func (s *Session) Address() string { return s.address }
func (s *Session) ID() string      { return s.id }

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// SetName replaces the display name when name is not empty.
func (s *Session) SetName(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

// Apply decodes buf and, on success, records it as the latest reading at at.
func (s *Session) Apply(buf []byte, format Format, at time.Time) (SensorReading, error) {
	r, err := Decode(buf, format)
	if err != nil {
		return SensorReading{}, err
	}
	s.mu.Lock()
	s.reading = r
	s.hasReading = true
	s.lastReadAt = at
	s.mu.Unlock()
	return r, nil
}

// Poll reads the sensor characteristic through r and applies it.
func (s *Session) Poll(ctx context.Context, r CharacteristicReader, at time.Time) (SensorReading, error) {
	buf, err := r.ReadCharacteristic(ctx, SensorCharacteristicUUID)
	if err != nil {
		return SensorReading{}, fmt.Errorf("read sensor characteristic %s: %w", s.address, err)
	}
	return s.Apply(buf, FormatDirect, at)
}

// RefreshInfo reads the device information strings. Values that could be
// read are cached even when others fail.
func (s *Session) RefreshInfo(ctx context.Context, r CharacteristicReader, at time.Time) error {
	var errs []error
	read := func(char string) string {
		b, err := r.ReadCharacteristic(ctx, char)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", char, err))
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(string(b), "\x00"))
	}

	manufacturer := read(ManufacturerNameCharacteristic)
	model := read(ModelNumberCharacteristic)
	firmware := read(FirmwareRevisionCharacteristic)

	s.mu.Lock()
	if manufacturer != "" {
		s.info.Manufacturer = manufacturer
	}
	if model != "" {
		s.info.Model = model
	}
	if firmware != "" {
		s.info.SWVersion = firmware
	}
	if len(errs) < 3 {
		s.infoAt = at
	}
	s.mu.Unlock()

	return errors.Join(errs...)
}

// Reading returns the latest reading; ok is false until a decode succeeded.
func (s *Session) Reading() (r SensorReading, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reading, s.hasReading
}

func (s *Session) LastReadAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReadAt
}

// InfoRefreshedAt is zero until RefreshInfo read at least one string.
func (s *Session) InfoRefreshedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoAt
}

func (s *Session) DeviceInfo() sensorstate.SensorDeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.info
	info.Name = s.name
	return info
}

// Update projects the latest reading; ok is false until a decode succeeded.
func (s *Session) Update() (sensorstate.SensorUpdate, bool) {
	r, ok := s.Reading()
	if !ok {
		return sensorstate.SensorUpdate{}, false
	}
	return ToSensorUpdate(r, s.id, s.DeviceInfo()), true
}
