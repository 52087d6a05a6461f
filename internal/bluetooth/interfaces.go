package bluetooth

import (
	"bytes"
	"os/exec"
	"regexp"
	"strings"
)

type InterfaceInfo struct {
	ID      string
	BusInfo string
	Address string
	Up      bool
}

var (
	ifaceLineRe = regexp.MustCompile(`^(hci\d+):.*`)
	busRe       = regexp.MustCompile(`Bus:\s*(USB|UART|PCI|SDIO|Virtual)`)
	bdAddrRe    = regexp.MustCompile(`BD Address:\s*([0-9A-Fa-f:]{17})`)
)

// GetBluetoothInterfaces lists local controllers using hciconfig.
func GetBluetoothInterfaces() ([]InterfaceInfo, error) {
	out, err := exec.Command("hciconfig").CombinedOutput()
	if err != nil {
		return nil, err
	}
	return parseHciconfig(out), nil
}

func parseHciconfig(out []byte) []InterfaceInfo {
	var list []InterfaceInfo
	var cur *InterfaceInfo

	flush := func() {
		if cur == nil {
			return
		}
		if cur.BusInfo == "" {
			cur.BusInfo = "Unknown"
		}
		list = append(list, *cur)
		cur = nil
	}

	for _, raw := range bytes.Split(out, []byte{'\n'}) {
		line := strings.TrimSpace(string(bytes.TrimRight(raw, "\r")))
		if line == "" {
			flush()
			continue
		}

		if m := ifaceLineRe.FindStringSubmatch(line); m != nil {
			flush()
			cur = &InterfaceInfo{ID: m[1]}
		}
		if cur == nil {
			continue
		}
		if bm := busRe.FindStringSubmatch(line); bm != nil && cur.BusInfo == "" {
			cur.BusInfo = bm[1]
		}
		if am := bdAddrRe.FindStringSubmatch(line); am != nil {
			cur.Address = strings.ToUpper(am[1])
		}
		if strings.HasPrefix(line, "UP ") || line == "UP" {
			cur.Up = true
		}
	}
	flush()

	return list
}
