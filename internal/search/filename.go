package search

import (
	"regexp"
	"strings"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SafeFilename normalizes a user-supplied file name the way common web
// frameworks do before touching the filesystem: path separators become
// spaces, whitespace runs become "_", anything outside [A-Za-z0-9_.-] is
// dropped and leading or trailing "." and "_" are trimmed.
//
// Callers treat a name as acceptable only when SafeFilename returns it
// unchanged.
func SafeFilename(name string) string {
	name = strings.NewReplacer("/", " ", `\`, " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}

// IsSafeFilename reports whether name survives SafeFilename untouched.
func IsSafeFilename(name string) bool {
	s := SafeFilename(name)
	return s != "" && s == name
}
