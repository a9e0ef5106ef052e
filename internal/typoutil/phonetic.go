package typoutil

import "strings"

// soundexCodes maps consonants to their Soundex class. Vowels and h, w, y have no class.
var soundexCodes = [26]byte{
	'a' - 'a': 0, 'b' - 'a': '1', 'c' - 'a': '2', 'd' - 'a': '3', 'e' - 'a': 0, 'f' - 'a': '1',
	'g' - 'a': '2', 'h' - 'a': 0, 'i' - 'a': 0, 'j' - 'a': '2', 'k' - 'a': '2', 'l' - 'a': '4',
	'm' - 'a': '5', 'n' - 'a': '5', 'o' - 'a': 0, 'p' - 'a': '1', 'q' - 'a': '2', 'r' - 'a': '6',
	's' - 'a': '2', 't' - 'a': '3', 'u' - 'a': 0, 'v' - 'a': '1', 'w' - 'a': 0, 'x' - 'a': '2',
	'y' - 'a': 0, 'z' - 'a': '5',
}

// PhoneticCode returns the consonant skeleton of a lowercase alphabetic token: its first letter
// followed by the Soundex class of each later consonant. Vowels and h, w, y are dropped, adjacent
// consonants of the same class collapse (h and w do not separate them, vowels do), and the code is
// not truncated. Tokens containing anything other than a-z have no code ("").
func PhoneticCode(token string) string {
	if !IsAlphabetic(token) {
		return ""
	}

	var sb strings.Builder
	sb.Grow(len(token))
	sb.WriteByte(token[0])

	last := soundexCodes[token[0]-'a']
	for i := 1; i < len(token); i++ {
		c := token[i]
		code := soundexCodes[c-'a']
		switch {
		case code == 0 && (c == 'h' || c == 'w'):
			// transparent: keeps the previous class
		case code == 0:
			last = 0
		case code != last:
			sb.WriteByte(code)
			last = code
		}
	}
	return sb.String()
}

// IsAlphabetic reports whether token consists of a-z only.
func IsAlphabetic(token string) bool {
	if token == "" {
		return false
	}
	for i := 0; i < len(token); i++ {
		if token[i] < 'a' || token[i] > 'z' {
			return false
		}
	}
	return true
}
