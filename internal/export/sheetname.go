package export

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxSheetNameLen is the xlsx limit on sheet name length in characters.
const MaxSheetNameLen = 31

const fallbackSheetName = "Report"

var sheetNameReplacer = strings.NewReplacer(
	":", "-", `\`, "-", "/", "-", "?", "", "*", "", "[", "(", "]", ")",
)

// sheetNamer hands out unique, valid sheet names. Collisions get a " (n)"
// suffix that still fits inside the length cap. Names compare
// case-insensitively, as spreadsheet applications do.
type sheetNamer struct {
	used map[string]struct{}
}

func newSheetNamer(reserved ...string) *sheetNamer {
	n := &sheetNamer{used: make(map[string]struct{})}
	for _, r := range reserved {
		n.used[strings.ToLower(r)] = struct{}{}
	}
	return n
}

func (n *sheetNamer) next(raw string) string {
	base := SanitizeSheetName(raw)
	if n.take(base) {
		return base
	}
	for i := 2; ; i++ {
		suffix := " (" + strconv.Itoa(i) + ")"
		candidate := truncateRunes(base, MaxSheetNameLen-utf8.RuneCountInString(suffix)) + suffix
		if n.take(candidate) {
			return candidate
		}
	}
}

func (n *sheetNamer) take(name string) bool {
	key := strings.ToLower(name)
	if _, ok := n.used[key]; ok {
		return false
	}
	n.used[key] = struct{}{}
	return true
}

// SanitizeSheetName strips characters xlsx forbids in sheet names and caps
// the length.
func SanitizeSheetName(raw string) string {
	name := strings.TrimSpace(sheetNameReplacer.Replace(raw))
	name = strings.Trim(name, "'")
	name = truncateRunes(name, MaxSheetNameLen)
	name = strings.TrimSpace(name)
	if name == "" {
		return fallbackSheetName
	}
	return name
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
