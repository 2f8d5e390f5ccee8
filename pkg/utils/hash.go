package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

// CacheKey hashes the joined parts into a stable key for redis lookups.
func CacheKey(parts ...string) string {
	hash := md5.Sum([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%x", hash)
}
