// Package cliargs parses the positional-free key=value command line shared
// by the server, client and bot binaries.
package cliargs

import "strings"

// Parse turns tokens of the form key=value into a map. Tokens without '='
// are ignored; a later duplicate key overrides an earlier one. Values may
// contain '=' (only the first one splits).
func Parse(args []string) map[string]string {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			continue
		}
		out[key] = value
	}
	return out
}

// Get returns the value for key, or fallback when absent.
func Get(m map[string]string, key, fallback string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return fallback
}
