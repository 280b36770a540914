// Package text holds the string escaping used to build the canonical
// serialization an event id is computed over.
package text

// EscapeString appends s to dst as a quoted JSON string using the minimal
// escaping the event id hash requires: quote, backslash and the control
// characters, with everything else (including non-ASCII UTF-8) copied raw.
func EscapeString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			// quotation mark
			dst = append(dst, '\\', '"')
		case c == '\\':
			// reverse solidus
			dst = append(dst, '\\', '\\')
		case c >= 0x20:
			// default, rest below are control chars
			dst = append(dst, c)
		case c == 0x08:
			dst = append(dst, '\\', 'b')
		case c == 0x09:
			dst = append(dst, '\\', 't')
		case c == 0x0a:
			dst = append(dst, '\\', 'n')
		case c == 0x0c:
			dst = append(dst, '\\', 'f')
		case c == 0x0d:
			dst = append(dst, '\\', 'r')
		default:
			dst = append(dst, '\\', 'u', '0', '0', hexDigit[c>>4], hexDigit[c&0xf])
		}
	}
	dst = append(dst, '"')
	return dst
}

const hexDigit = "0123456789abcdef"

// EscapeStrings appends a JSON array of escaped strings.
func EscapeStrings(dst []byte, ss []string) []byte {
	dst = append(dst, '[')
	for i, s := range ss {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = EscapeString(dst, s)
	}
	return append(dst, ']')
}
