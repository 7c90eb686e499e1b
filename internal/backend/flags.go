package backend

import (
	"fmt"
	"sort"
	"strings"
)

// normalizeKey canonicalizes a backend argument key: leading dashes are
// stripped and snake_case becomes kebab-case, so "--tp_size", "tp_size", and
// "tp-size" all name the same flag.
func normalizeKey(key string) string {
	key = strings.TrimLeft(key, "-")
	return strings.ReplaceAll(key, "_", "-")
}

// composeFlags renders user-supplied arguments as command-line flags in
// sorted key order. Boolean true becomes a bare flag, false is omitted, and
// list values expand positionally after their flag. Keys colliding with the
// reserved (auto-derived) set fail with ConflictingFlagError.
func composeFlags(args map[string]any, reserved map[string]bool) ([]string, error) {
	normalized := make(map[string]any, len(args))
	for key, value := range args {
		canon := normalizeKey(key)
		if reserved[canon] {
			return nil, &ConflictingFlagError{Key: key}
		}
		normalized[canon] = value
	}

	keys := make([]string, 0, len(normalized))
	for key := range normalized {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var flags []string
	for _, key := range keys {
		switch value := normalized[key].(type) {
		case bool:
			if value {
				flags = append(flags, "--"+key)
			}
		case []any:
			flags = append(flags, "--"+key)
			for _, item := range value {
				flags = append(flags, fmt.Sprint(item))
			}
		case []string:
			flags = append(flags, "--"+key)
			flags = append(flags, value...)
		default:
			flags = append(flags, "--"+key, fmt.Sprint(value))
		}
	}
	return flags, nil
}

// reservedSet builds the reserved-key lookup from canonical flag names.
func reservedSet(keys ...string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, key := range keys {
		set[key] = true
	}
	return set
}
