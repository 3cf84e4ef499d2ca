package identity

import (
	"bufio"
	"encoding/csv"
	"os"
	"strings"

	"github.com/Napageneral/unify/internal/normalize"
)

// LoadVCard parses a vCard 3.0/4.0 file's TEL/EMAIL properties into a
// handle -> display-name map, keyed off each card's FN property. It is
// a deliberately small parser: no vCard library dependency, matching
// the predecessor's own "no third-party deps" choice for this one
// concern.
func LoadVCard(path string) (map[string]string, error) {
	mapping := make(map[string]string)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return mapping, nil
		}
		return nil, err
	}
	defer f.Close()

	var name string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "FN:"):
			_, value, _ := strings.Cut(line, ":")
			name = strings.TrimSpace(value)
		case strings.HasPrefix(upper, "TEL") || strings.HasPrefix(upper, "EMAIL"):
			if idx := strings.Index(line, ":"); idx >= 0 {
				handle := strings.TrimSpace(line[idx+1:])
				if handle != "" && name != "" {
					mapping[handle] = name
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return mapping, nil
}

// LoadCSV parses a CSV contact export into a handle -> display-name
// map. It accepts either a simple "name,handle" header, or Google
// Contacts' export shape ("Name", "Phone 1 - Value", "E-mail 1 -
// Value").
func LoadCSV(path string) (map[string]string, error) {
	mapping := make(map[string]string)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return mapping, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return mapping, nil
	}

	nameCol := -1
	handleCols := []int{}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name":
			nameCol = i
		case "handle":
			handleCols = append(handleCols, i)
		default:
			lower := strings.ToLower(h)
			if strings.Contains(lower, "phone") && strings.Contains(lower, "value") {
				handleCols = append(handleCols, i)
			}
			if strings.Contains(lower, "e-mail") && strings.Contains(lower, "value") {
				handleCols = append(handleCols, i)
			}
		}
	}
	if nameCol < 0 {
		return mapping, nil
	}

	for {
		row, err := r.Read()
		if err != nil {
			break
		}
		if nameCol >= len(row) {
			continue
		}
		name := strings.TrimSpace(row[nameCol])
		if name == "" {
			continue
		}
		for _, col := range handleCols {
			if col >= len(row) {
				continue
			}
			handle := strings.TrimSpace(row[col])
			if handle != "" {
				mapping[handle] = name
			}
		}
	}
	return mapping, nil
}

// PlatformLookup resolves a raw handle to a display name using a
// platform-specific contacts source (production: macOS Contacts via
// osascript). It is a pluggable collaborator rather than a hard
// dependency: the actual lookup mechanism is an external integration
// point, not something this library owns.
type PlatformLookup func(handle string) (displayName string, ok bool)

// aggregateByDisplayName groups a handle->name map by name, returning
// each name's full handle set in canonical form. Two raw handles
// ("410-925-6693" and "+14109256693") registered to the same display
// name in a contact source become one handle set.
func aggregateByDisplayName(byHandle map[string]string) map[string][]string {
	byName := make(map[string][]string)
	for handle, name := range byHandle {
		canonical := normalize.NormalizeHandleForMatching(handle)
		byName[name] = append(byName[name], canonical)
	}
	return byName
}
