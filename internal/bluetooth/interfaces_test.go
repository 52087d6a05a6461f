package bluetooth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hciconfigOutput = `hci1:	Type: Primary  Bus: USB
	BD Address: 00:1a:7d:da:71:13  ACL MTU: 310:10  SCO MTU: 64:8
	DOWN
	RX bytes:0 acl:0 sco:0 events:0 errors:0

hci0:	Type: Primary  Bus: UART
	BD Address: B8:27:EB:12:34:56  ACL MTU: 1021:8  SCO MTU: 64:1
	UP RUNNING
	RX bytes:1520 acl:0 sco:0 events:88 errors:0
`

func TestParseHciconfig(t *testing.T) {
	list := parseHciconfig([]byte(hciconfigOutput))
	require.Len(t, list, 2)

	assert.Equal(t, InterfaceInfo{ID: "hci1", BusInfo: "USB", Address: "00:1A:7D:DA:71:13"}, list[0])
	assert.Equal(t, InterfaceInfo{ID: "hci0", BusInfo: "UART", Address: "B8:27:EB:12:34:56", Up: true}, list[1])
}

func TestParseHciconfigEmpty(t *testing.T) {
	assert.Empty(t, parseHciconfig(nil))
}
