package survey

import (
	"regexp"
	"strings"
)

var multiSep = regexp.MustCompile(`\s*;\s*`)

// SplitMulti splits a multi-value cell on semicolons, trimming each item and
// dropping empties and duplicates. First occurrence order is preserved.
func SplitMulti(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return Dedupe(multiSep.Split(s, -1))
}

// JoinMulti renders a list the way SplitMulti reads it.
func JoinMulti(values []string) string {
	return strings.Join(values, "; ")
}

// Dedupe trims values and removes empties and exact duplicates.
func Dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// IsTruthy reports whether s is one of "1", "true", "yes", "y" (any case).
func IsTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

// IsFalsy reports whether s is one of "0", "false", "no", "n" (any case).
func IsFalsy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "false", "no", "n":
		return true
	}
	return false
}

// NormalizeOption maps a raw cell to an option code of f. Codes pass
// unchanged; labels and codes match case-insensitively. Bool fields also
// accept the truthy and falsy spellings.
func NormalizeOption(f Field, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if f.HasOption(raw) {
		return raw, true
	}
	for _, o := range f.Options {
		if strings.EqualFold(o.Label, raw) || strings.EqualFold(o.Code, raw) {
			return o.Code, true
		}
	}
	if f.Kind == KindBool {
		if IsTruthy(raw) {
			return "yes", true
		}
		if IsFalsy(raw) {
			return "no", true
		}
	}
	return "", false
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CollapseSpace trims s and collapses runs of whitespace to a single space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FullNameKey returns the normalized "first middle last extension" key used
// for duplicate detection.
func FullNameKey(r Record) string {
	parts := []string{
		r.Get(FieldFirstName),
		r.Get(FieldMiddleName),
		r.Get(FieldLastName),
		r.Get(FieldNameExtension),
	}
	return strings.ToLower(CollapseSpace(strings.Join(parts, " ")))
}
