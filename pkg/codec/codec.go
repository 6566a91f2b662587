// Package codec implements Cubicler's function-name mangling scheme:
// encoding a (server identifier, server primary string) pair plus a raw
// function name into a collision-resistant, agent-safe tool name, and
// decoding it back (spec §4.1).
package codec

import (
	"crypto/sha256"
	"encoding/binary"
	"strconv"
	"strings"
	"unicode"

	"github.com/cubicler/cubicler/pkg/cubicerrors"
)

const hashLength = 6

// Hash computes the 6-character lowercase base36 hash of a server's
// identifier and primary string (its URL for http/sse/auto transports, or
// its command for stdio). The hash is stable for identical inputs and
// independent of any declaration order.
func Hash(identifier, primaryString string) string {
	sum := sha256.Sum256([]byte(identifier + "\x00" + primaryString))
	n := binary.BigEndian.Uint32(sum[:4])
	s := strconv.FormatUint(uint64(n), 36)
	if len(s) > hashLength {
		s = s[len(s)-hashLength:]
	}
	for len(s) < hashLength {
		s = "0" + s
	}
	return s
}

// Encode produces the agent-facing tool name for a function exposed by a
// server: "{hash6}_{snake_case(functionName)}".
func Encode(identifier, primaryString, functionName string) string {
	return Hash(identifier, primaryString) + "_" + SnakeCase(functionName)
}

// Decode splits a mangled tool name back into its hash and function parts.
// The hash must be exactly 6 characters of [0-9a-z]; the function part must
// be non-empty. Any other shape fails with InvalidNameError, never falling
// back to a dotted "server.function" interpretation (spec §9, Open Question).
func Decode(toolName string) (hash, function string, err error) {
	idx := strings.Index(toolName, "_")
	if idx != hashLength {
		return "", "", &cubicerrors.InvalidNameError{Name: toolName}
	}

	hash = toolName[:idx]
	function = toolName[idx+1:]

	if !isBase36(hash) {
		return "", "", &cubicerrors.InvalidNameError{Name: toolName}
	}
	if function == "" {
		return "", "", &cubicerrors.InvalidNameError{Name: toolName}
	}

	return hash, function, nil
}

func isBase36(s string) bool {
	if len(s) != hashLength {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}

// SnakeCase lowercases a camelCase/PascalCase identifier and splits it into
// underscore-joined words at every lower→upper boundary.
func SnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				if unicode.IsLower(prev) || unicode.IsDigit(prev) {
					b.WriteByte('_')
				} else if unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
