package catalog

import (
	"strings"
	"unicode"
)

// unsafeIDChars are stripped from derived ids; they are either reserved in
// URLs or awkward in HTML id attributes.
const unsafeIDChars = "<>#\"%{}|\\^~[]`;/?:@=&"

// Sanitize turns free text into an id: trimmed, lower-cased, URL-reserved
// characters removed and whitespace runs collapsed to a single underscore.
func Sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		switch {
		case strings.ContainsRune(unsafeIDChars, r):
			continue
		case unicode.IsSpace(r):
			if !inSpace {
				b.WriteByte('_')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// DeriveID builds the id of a record that does not declare one.
func DeriveID(publisher, name string) string {
	if strings.TrimSpace(publisher) == "" {
		return Sanitize(name)
	}
	return Sanitize(publisher + "-" + name)
}
