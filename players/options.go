package players

import "strings"

// modKeys are the options describing installed mods and the loaded map.
var modKeys = map[string]bool{"Mods": true, "WorkshopItems": true, "Map": true}

// Options is the parsed output of the options command.
type Options struct {
	// Options holds every "key=value" line except the mod related ones.
	Options map[string]string `json:"options"`
	// Mods holds Mods, WorkshopItems and Map.
	Mods map[string]string `json:"mods"`
	Raw  string            `json:"raw"`
}

// ParseOptions splits "* Key=Value" lines. Values may contain '='; only the
// first one separates key and value. Lines without '=' are skipped.
func ParseOptions(resp string) Options {
	opts := Options{
		Options: make(map[string]string),
		Mods:    make(map[string]string),
		Raw:     resp,
	}

	for _, line := range strings.Split(resp, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(strings.TrimPrefix(key, "* "))
		value = strings.TrimSpace(value)
		if modKeys[key] {
			opts.Mods[key] = value
			continue
		}

		opts.Options[key] = value
	}

	return opts
}
