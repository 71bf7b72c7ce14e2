// Package fingerprint derives content digests used to detect playlist
// changes and to namespace cache keys.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ShortLen is the number of hex characters embedded in cache keys
const ShortLen = 16

// Of returns the hex sha256 digest of content
func Of(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// OfString is Of for strings
func OfString(s string) string {
	return Of([]byte(s))
}

// Short truncates a digest for use inside keys
func Short(fp string) string {
	if len(fp) <= ShortLen {
		return fp
	}
	return fp[:ShortLen]
}

// Key joins a kind, the short form of fp and any further parts with ':'
func Key(kind, fp string, parts ...string) string {
	segs := make([]string, 0, len(parts)+2)
	segs = append(segs, kind, Short(fp))
	segs = append(segs, parts...)
	return strings.Join(segs, ":")
}
