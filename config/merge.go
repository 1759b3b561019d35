package config

import "strings"

// Merge folds src into dst with the same rules the Manager applies between
// sources.
func Merge(dst, src map[string]any) { mergeMaps(dst, src) }

// mergeMaps folds src into dst. Keys are compared case-insensitively and
// stored lowercased so that a file's "readTimeout" and an environment
// variable's "readtimeout" address the same value. Nested maps merge
// recursively; anything else in src replaces dst.
func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		key := strings.ToLower(k)
		if mv, ok := v.(map[string]any); ok {
			existing, ok := dst[key].(map[string]any)
			if !ok {
				existing = map[string]any{}
				dst[key] = existing
			}
			mergeMaps(existing, mv)
			continue
		}
		dst[key] = v
	}
}
