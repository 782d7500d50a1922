package chain

import "strings"

// nameCharmap is the base32 alphabet used for on-chain account and action
// names. Index 0 is the padding character.
const nameCharmap = ".12345abcdefghijklmnopqrstuvwxyz"

// charToSymbol maps a name character to its 5-bit symbol. Characters outside
// the alphabet map to 0, matching the chain's permissive encoder.
func charToSymbol(c byte) uint64 {
	switch {
	case c >= 'a' && c <= 'z':
		return uint64(c-'a') + 6
	case c >= '1' && c <= '5':
		return uint64(c-'1') + 1
	default:
		return 0
	}
}

// StringToName encodes a name string into its packed uint64 representation.
// Names longer than 13 characters are truncated; the 13th character only
// contributes 4 bits.
func StringToName(s string) uint64 {
	var name uint64
	for i := 0; i < len(s) && i <= 12; i++ {
		if i < 12 {
			name |= (charToSymbol(s[i]) & 0x1f) << uint(64-5*(i+1))
		} else {
			name |= charToSymbol(s[i]) & 0x0f
		}
	}
	return name
}

// NameToString decodes a packed uint64 name back into its string form,
// trimming trailing padding.
func NameToString(value uint64) string {
	str := []byte(".............")
	tmp := value
	for i := 0; i <= 12; i++ {
		var c byte
		if i == 0 {
			c = nameCharmap[tmp&0x0f]
			tmp >>= 4
		} else {
			c = nameCharmap[tmp&0x1f]
			tmp >>= 5
		}
		str[12-i] = c
	}
	return strings.TrimRight(string(str), ".")
}
