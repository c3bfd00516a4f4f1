package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

// CacheKey joins parts with "|" and returns the hex MD5 of the result.
func CacheKey(parts ...string) string {
	hash := md5.Sum([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%x", hash)
}

// Preview shortens s to n runes for log lines, appending "..." when cut.
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
