// Package strings provides the text helpers used when building searchable
// documents: rune-safe truncation, multi-separator splitting, keyword
// matching and pooled joining.
package strings

import (
	"strings"
	"sync"
	"unicode/utf8"
)

var builderPool = sync.Pool{
	New: func() interface{} {
		return &strings.Builder{}
	},
}

// Truncate shortens s to at most maxRunes runes. Invalid UTF-8 is counted byte by byte.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if len(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i]
		}
		n++
	}
	return s
}

// RuneLen returns the number of runes in s
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// SplitAny splits s on any of the separator characters, trims each part
// and drops empty parts.
func SplitAny(s, separators string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(separators, r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// ContainsAny reports whether s contains any of the substrings
func ContainsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// JoinLimited joins the non-empty parts with sep and truncates the result to maxRunes
func JoinLimited(parts []string, sep string, maxRunes int) string {
	b := builderPool.Get().(*strings.Builder)
	defer func() {
		b.Reset()
		builderPool.Put(b)
	}()

	for _, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(p)
		// every rune takes at least one byte, so this bounds the rune count too
		if b.Len() > maxRunes*utf8.UTFMax {
			break
		}
	}
	return Truncate(b.String(), maxRunes)
}
