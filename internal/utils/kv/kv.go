package kv

import (
	"fmt"
	"maps"
	"os"
	"regexp"
	"strings"
)

var keyRegexp = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// ParseSpecs parses KEY=VALUE specs into a map, later entries override earlier
// ones. A bare KEY takes its value from the environment variable with the same
// name, so secrets don't need to be written on the command line.
func ParseSpecs(specs []string) (map[string]string, error) {
	out := make(map[string]string, len(specs))

	for _, spec := range specs {
		if spec == "" {
			return nil, fmt.Errorf("key value spec cannot be empty")
		}

		if key, value, ok := strings.Cut(spec, "="); ok {
			if !isValidKey(key) {
				return nil, fmt.Errorf("invalid key %q", key)
			}

			out[key] = value
			continue
		}

		if !isValidKey(spec) {
			return nil, fmt.Errorf("invalid key %q", spec)
		}

		value, ok := os.LookupEnv(spec)
		if !ok {
			return nil, fmt.Errorf("environment variable %q is not set", spec)
		}

		out[spec] = value
	}

	return out, nil
}

// MergeMaps returns a new map with base values overridden by override ones.
func MergeMaps(base map[string]string, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}

	merged := make(map[string]string, len(base)+len(override))
	maps.Copy(merged, base)
	maps.Copy(merged, override)

	return merged
}

func isValidKey(k string) bool {
	return keyRegexp.MatchString(k)
}
