package registry

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugBase = 48

// Slugify folds name to a lowercase ASCII, dash-separated identifier.
// Diacritics are stripped; anything else non-alphanumeric becomes a dash.
func Slugify(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}

	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlugBase {
		slug = strings.TrimRight(slug[:maxSlugBase], "-")
	}
	if slug == "" {
		return "probe"
	}
	return slug
}

// newSlug appends a 6-character random hex suffix to Slugify(name).
func newSlug(name string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return Slugify(name) + "-" + suffix
}
