package util

import (
	"regexp"
	"strings"
	"time"
)

var (
	macRe = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)
)

const TimestampLayout = "2006-01-02 15:04:05"

func IsMACAddress(s string) bool {
	return macRe.MatchString(strings.TrimSpace(s))
}

// NormalizeMAC upper-cases a MAC and uses ':' separators.
func NormalizeMAC(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "-", ":")
}

func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

func NowTimestamp() string {
	return FormatTimestamp(time.Now())
}

func BytesToHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 0, len(b)*3-1)
	for i, v := range b {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, hexdigits[v>>4], hexdigits[v&0x0f])
	}
	return string(out)
}

func SafeName(localName string) string {
	name := strings.TrimSpace(localName)
	if name == "" {
		return "Unknown"
	}
	if IsMACAddress(name) {
		return "Unknown"
	}
	return name
}
