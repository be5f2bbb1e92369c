package token

import "regexp"

const (
	minTokenLength = 50
	previewLength  = 20
)

var tokenAlphabet = regexp.MustCompile(`^[A-Za-z0-9+/=_.-]+$`)

// Info summarizes a token without exposing it.
type Info struct {
	HasToken   bool
	Length     int
	LooksValid bool
	// Preview holds the first characters of the token, safe for logs.
	Preview string
}

// Inspect describes tok for diagnostics. LooksValid only checks the
// alphabet and length; it says nothing about the signature.
func Inspect(tok string) Info {
	info := Info{
		HasToken: tok != "",
		Length:   len(tok),
	}
	if !info.HasToken {
		return info
	}

	info.LooksValid = len(tok) > minTokenLength && tokenAlphabet.MatchString(tok)
	preview := tok
	if len(preview) > previewLength {
		preview = preview[:previewLength]
	}
	info.Preview = preview + "..."
	return info
}
