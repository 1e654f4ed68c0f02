// Package naming derives submission identifiers, drive folder names and safe
// upload filenames.
package naming

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
	"time"
)

const (
	// Prefix starts every readable identifier.
	Prefix = "GBS"
	// SuffixLen is the number of random characters closing an identifier.
	SuffixLen = 6
	// MaxLabelLen bounds the sanitized label appended to folder names.
	MaxLabelLen = 60

	stampLayout    = "20060102150405"
	suffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var (
	labelUnsafe    = regexp.MustCompile(`[^\w. ]`)
	filenameUnsafe = regexp.MustCompile(`[^\w.\- ]`)
)

// NewIdentifier returns PREFIX_<yyyymmddhhmmss>_<SUFFIX> for t in UTC. The
// suffix is freshly random on every call, so two submissions landing in the
// same second still get distinct identifiers with high probability.
func NewIdentifier(t time.Time) string {
	return Prefix + "_" + t.UTC().Format(stampLayout) + "_" + randomSuffix(SuffixLen)
}

// SanitizeLabel trims a free-text label, drops every character outside word
// characters, dot and space, and truncates the result to MaxLabelLen runes.
func SanitizeLabel(label string) string {
	clean := labelUnsafe.ReplaceAllString(strings.TrimSpace(label), "")
	clean = strings.TrimSpace(clean)
	if r := []rune(clean); len(r) > MaxLabelLen {
		clean = strings.TrimSpace(string(r[:MaxLabelLen]))
	}
	return clean
}

// FolderName appends the sanitized label to id with an underscore. Spaces in
// the label become underscores so the folder's web link stays readable.
func FolderName(id, label string) string {
	clean := SanitizeLabel(label)
	if clean == "" {
		return id
	}
	return id + "_" + strings.ReplaceAll(clean, " ", "_")
}

// SanitizeFilename keeps word characters, dot, hyphen and space. A name that
// sanitizes to nothing becomes "file".
func SanitizeFilename(name string) string {
	clean := strings.TrimSpace(filenameUnsafe.ReplaceAllString(name, ""))
	if clean == "" || strings.Trim(clean, ".") == "" {
		return "file"
	}
	return clean
}

func randomSuffix(n int) string {
	max := big.NewInt(int64(len(suffixAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms; keep the
			// identifier well-formed regardless.
			idx = big.NewInt(time.Now().UnixNano() % int64(len(suffixAlphabet)))
		}
		buf[i] = suffixAlphabet[idx.Int64()]
	}
	return string(buf)
}
