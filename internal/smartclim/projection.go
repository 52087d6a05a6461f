package smartclim

import "smartclim/internal/sensorstate"

const (
	KeyTemperature = "temperature"
	KeyHumidity    = "humidity"
	KeyBattery     = "battery"
)

const (
	Manufacturer = "BeeWi"
	Model        = "SmartClim"
)

// ToSensorUpdate projects r into the generic sensor model. The three keys are
// always present together, scoped to deviceID.
func ToSensorUpdate(r SensorReading, deviceID string, info sensorstate.SensorDeviceInfo) sensorstate.SensorUpdate {
	if info.Manufacturer == "" {
		info.Manufacturer = Manufacturer
	}
	if info.Model == "" {
		info.Model = Model
	}

	b := sensorstate.NewBuilder()
	title := info.Name
	if title == "" {
		title = Model + " " + deviceID
	}
	b.SetTitle(title)
	b.SetDeviceInfo(deviceID, info)

	b.UpdateSensor(sensorstate.DeviceKey{Key: KeyTemperature, DeviceID: deviceID},
		sensorstate.DeviceClassTemperature, sensorstate.UnitCelsius, "Temperature", r.Temperature)
	b.UpdateSensor(sensorstate.DeviceKey{Key: KeyHumidity, DeviceID: deviceID},
		sensorstate.DeviceClassHumidity, sensorstate.UnitPercentage, "Humidity", float64(r.Humidity))
	b.UpdateSensor(sensorstate.DeviceKey{Key: KeyBattery, DeviceID: deviceID},
		sensorstate.DeviceClassBattery, sensorstate.UnitPercentage, "Battery", float64(r.Battery))

	return b.Update()
}
