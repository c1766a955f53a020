package utils

import (
	"fmt"
	"strings"
)

// ParseKeyValues parses repeated "key=value" pairs into a map. An entry
// without an equals sign or with an empty key is an error.
func ParseKeyValues(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid key=value pair: %q", pair)
		}
		out[key] = value
	}
	return out, nil
}
