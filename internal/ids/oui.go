package ids

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"
)

// LoadOUI reads vendor names keyed by OUI (6 upper-case hex digits) from an
// IEEE registry CSV (Registry, Assignment, Organization Name, ...).
func LoadOUI(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseOUI(f)
}

func parseOUI(in io.Reader) (map[string]string, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1

	// Header.
	if _, err := r.Read(); err != nil {
		return nil, err
	}

	out := make(map[string]string, 1024)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 3 {
			continue
		}
		assignment := compactHex(rec[1])
		org := strings.TrimSpace(rec[2])
		if len(assignment) != 6 || org == "" {
			continue
		}
		out[assignment] = org
	}
	return out, nil
}

func compactHex(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, ":", "")
}
