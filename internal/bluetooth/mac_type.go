package bluetooth

import (
	"strconv"
	"strings"

	tg "tinygo.org/x/bluetooth"
)

const (
	AddressPublic = "public_or_unknown"
	AddressRandom = "random"
)

// ClassifyAddress returns the address type and, for random addresses, the
// subtype taken from the two most significant bits.
func ClassifyAddress(addr tg.Address) (typ string, sub string) {
	return classifyMAC(addr.IsRandom(), addr.String())
}

// ClassifyBlueZ classifies using the Device1 AddressType property.
func ClassifyBlueZ(addressType, mac string) (typ string, sub string) {
	return classifyMAC(strings.EqualFold(addressType, "random"), mac)
}

func classifyMAC(random bool, mac string) (string, string) {
	if !random {
		return AddressPublic, ""
	}
	first, _, _ := strings.Cut(mac, ":")
	b, err := strconv.ParseUint(first, 16, 8)
	if err != nil || len(first) != 2 {
		return AddressRandom, ""
	}
	switch (b >> 6) & 0x03 {
	case 0:
		return AddressRandom, "non_resolvable_private"
	case 1:
		return AddressRandom, "resolvable_private"
	case 2:
		return AddressRandom, "reserved"
	default:
		return AddressRandom, "static_random"
	}
}
