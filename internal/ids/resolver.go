package ids

import (
	"strings"

	"smartclim/internal/smartclim"
)

// Resolver names MAC vendors by OUI and GATT characteristics by UUID. A nil
// Resolver answers every lookup with "".
type Resolver struct {
	vendors   map[string]string
	charNames map[string]string
}

func newResolver() *Resolver {
	return &Resolver{
		vendors: map[string]string{},
		charNames: map[string]string{
			smartclim.SensorCharacteristicUUID:       "SmartClim Sensor Frame",
			smartclim.ManufacturerNameCharacteristic: "Manufacturer Name String",
			smartclim.ModelNumberCharacteristic:      "Model Number String",
			smartclim.FirmwareRevisionCharacteristic: "Firmware Revision String",
		},
	}
}

func (r *Resolver) VendorForMAC(mac string) string {
	if r == nil {
		return ""
	}
	oui := macToOUI(mac)
	if oui == "" {
		return ""
	}
	return r.vendors[oui]
}

func (r *Resolver) CharacteristicName(uuid128 string) string {
	if r == nil {
		return ""
	}
	return r.charNames[strings.ToLower(strings.TrimSpace(uuid128))]
}

// AnnotateCharacteristic returns "uuid (Name)" when the name is known.
func (r *Resolver) AnnotateCharacteristic(uuid128 string) string {
	name := r.CharacteristicName(uuid128)
	if name == "" {
		return uuid128
	}
	return uuid128 + " (" + name + ")"
}

func macToOUI(mac string) string {
	parts := strings.FieldsFunc(strings.TrimSpace(mac), func(r rune) bool {
		return r == ':' || r == '-'
	})
	if len(parts) < 3 {
		return ""
	}
	oui := strings.ToUpper(parts[0] + parts[1] + parts[2])
	if len(oui) != 6 {
		return ""
	}
	return oui
}
