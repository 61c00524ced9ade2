package patterns

import "golang.org/x/text/unicode/norm"

// Normalize applies Unicode NFKC so compatibility characters collapse to
// their canonical forms before extraction. Full-width digits, ligatures and
// styled letters are a common obfuscation in scam texts.
func Normalize(text string) string {
	return norm.NFKC.String(text)
}
