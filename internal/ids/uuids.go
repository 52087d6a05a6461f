package ids

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var ErrBadUUID = errors.New("bad uuid")

type uuidFile struct {
	UUIDs []uuidEntry `yaml:"uuids"`
}

type uuidEntry struct {
	UUID any    `yaml:"uuid"`
	Name string `yaml:"name"`
}

// LoadUUIDYaml reads a Bluetooth SIG assigned-numbers YAML file and returns
// names keyed by canonical 128-bit lower-case UUID.
func LoadUUIDYaml(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseUUIDYaml(b)
}

func parseUUIDYaml(b []byte) (map[string]string, error) {
	var f uuidFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(f.UUIDs))
	for _, e := range f.UUIDs {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		u, err := normalizeUUID(uuidValueString(e.UUID))
		if err != nil {
			continue
		}
		out[u] = name
	}
	return out, nil
}

// yaml decodes bare 0x2A29 as an int.
func uuidValueString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case int:
		return fmt.Sprintf("0x%X", t)
	case uint64:
		return fmt.Sprintf("0x%X", t)
	default:
		return ""
	}
}

// normalizeUUID expands 16/32-bit SIG short forms onto the base UUID.
func normalizeUUID(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	short := strings.TrimPrefix(s, "0x")
	if short != "" && len(short) <= 8 && !strings.Contains(short, "-") {
		v, err := strconv.ParseUint(short, 16, 32)
		if err != nil {
			return "", fmt.Errorf("%q: %w", s, ErrBadUUID)
		}
		return fmt.Sprintf("%08x-0000-1000-8000-00805f9b34fb", v), nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%q: %w", s, ErrBadUUID)
	}
	return u.String(), nil
}
