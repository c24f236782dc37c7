package attach

import "regexp"

// MaxFilenameLength is the longest name, in characters, Sanitize returns.
const MaxFilenameLength = 100

var unsafeRun = regexp.MustCompile(`[<>:;"/\\|?*]+`)

// Sanitize replaces each run of characters that are unsafe in file names
// with a single underscore and caps the result at MaxFilenameLength
// characters.
func Sanitize(name string) string {
	safe := unsafeRun.ReplaceAllString(name, "_")
	runes := []rune(safe)
	if len(runes) > MaxFilenameLength {
		return string(runes[:MaxFilenameLength])
	}
	return safe
}
