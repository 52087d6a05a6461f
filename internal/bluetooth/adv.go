package bluetooth

import (
	"encoding/binary"

	"smartclim/internal/smartclim"
)

// AD types used when walking raw advertising payloads.
const (
	adTypeShortName    = 0x08
	adTypeCompleteName = 0x09
	adTypeTxPower      = 0x0A
	adTypeManufacturer = 0xFF
)

// ADStructure is one length-type-value element of an advertising payload.
type ADStructure struct {
	Type byte
	Data []byte
}

func (s ADStructure) Name() string {
	return adTypeName(s.Type)
}

// ParseADStructures splits a raw advertising payload. Parsing stops at a zero
// length or at an element that would run past the end of adv.
func ParseADStructures(adv []byte) []ADStructure {
	var out []ADStructure
	for i := 0; i < len(adv); {
		l := int(adv[i])
		if l == 0 {
			break
		}
		if i+1+l > len(adv) {
			break
		}
		out = append(out, ADStructure{
			Type: adv[i+1],
			Data: append([]byte(nil), adv[i+2:i+1+l]...),
		})
		i += 1 + l
	}
	return out
}

// ManufacturerDataFromAD collects manufacturer-specific elements keyed by
// their little-endian company identifier. A later element with the same key
// replaces an earlier one.
func ManufacturerDataFromAD(adv []byte) smartclim.ManufacturerData {
	md := smartclim.ManufacturerData{}
	for _, s := range ParseADStructures(adv) {
		if s.Type != adTypeManufacturer || len(s.Data) < 2 {
			continue
		}
		md[binary.LittleEndian.Uint16(s.Data[:2])] = s.Data[2:]
	}
	return md
}

// LocalNameFromAD returns the complete local name, falling back to the
// shortened one.
func LocalNameFromAD(adv []byte) string {
	short := ""
	for _, s := range ParseADStructures(adv) {
		switch s.Type {
		case adTypeCompleteName:
			return safeASCII(s.Data)
		case adTypeShortName:
			short = safeASCII(s.Data)
		}
	}
	return short
}

// TxPowerFromAD returns the advertised Tx power level in dBm.
func TxPowerFromAD(adv []byte) (int, bool) {
	for _, s := range ParseADStructures(adv) {
		if s.Type == adTypeTxPower && len(s.Data) >= 1 {
			return int(int8(s.Data[0])), true
		}
	}
	return 0, false
}

func adTypeName(t byte) string {
	switch t {
	case 0x01:
		return "Flags"
	case 0x02:
		return "Incomplete List of 16-bit Service Class UUIDs"
	case 0x03:
		return "Complete List of 16-bit Service Class UUIDs"
	case 0x06:
		return "Incomplete List of 128-bit Service Class UUIDs"
	case 0x07:
		return "Complete List of 128-bit Service Class UUIDs"
	case adTypeShortName:
		return "Shortened Local Name"
	case adTypeCompleteName:
		return "Complete Local Name"
	case adTypeTxPower:
		return "Tx Power Level"
	case 0x16:
		return "Service Data - 16-bit UUID"
	case adTypeManufacturer:
		return "Manufacturer Specific Data"
	default:
		return ""
	}
}

func safeASCII(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return ""
		}
	}
	return string(b)
}
