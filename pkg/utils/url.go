package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// HashURL creates a SHA256 hash of a URL string.
// This is useful for creating consistent, safe keys for Redis.
func HashURL(rawURL string) string {
	h := sha256.New()
	h.Write([]byte(rawURL))
	return hex.EncodeToString(h.Sum(nil))
}

// ToAbsoluteURL resolves a possibly relative href against base.
func ToAbsoluteURL(base *url.URL, relative string) (*url.URL, error) {
	relURL, err := url.Parse(strings.TrimSpace(relative))
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(relURL), nil
}

// HasHTTPScheme reports whether raw starts with http:// or https://.
func HasHTTPScheme(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// EnsureScheme prefixes https:// when raw has no http(s) scheme.
func EnsureScheme(raw string) string {
	if HasHTTPScheme(raw) {
		return raw
	}
	return "https://" + raw
}

// CacheKey normalizes a website value for cache lookups: trimmed, lower-cased,
// without scheme and trailing slash.
func CacheKey(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.TrimPrefix(key, "https://")
	key = strings.TrimPrefix(key, "http://")
	return strings.TrimRight(key, "/")
}
