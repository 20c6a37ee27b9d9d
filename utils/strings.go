// utils/strings.go
package utils

import "strings"

// CleanString cleans a string to avoid common sources of weirdness:
// lowercase, alphanumeric chars only, spaces removed. Used both for
// datalake directory names and cache keys, so two spellings that clean
// identically collide (accepted risk).
func CleanString(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
