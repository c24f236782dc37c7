// Package rfc2047 decodes "=?charset?encoding?text?=" encoded words found
// in legacy header fields such as attachment filenames.
//
// Only UTF-8 and single-byte charsets with B or Q encoding are handled.
// Decoding is best effort: anything that does not decode is returned as it
// appeared in the input.
package rfc2047

import (
	"encoding/base64"
	"regexp"
	"strings"
)

var encodedWord = regexp.MustCompile(`=\?([^?\s]+)\?([^?\s]+)\?([^?]*)\?=`)

// Decode replaces every encoded word in s with its decoded text, keeps the
// literal text between them, and trims surrounding whitespace.
func Decode(s string) string {
	decoded := encodedWord.ReplaceAllStringFunc(s, func(token string) string {
		m := encodedWord.FindStringSubmatch(token)
		if m == nil {
			return token
		}
		text, ok := decodeWord(m[1], m[2], m[3])
		if !ok {
			return token
		}
		return text
	})
	return strings.TrimSpace(decoded)
}

func decodeWord(charset, encoding, payload string) (string, bool) {
	var raw []byte
	switch strings.ToUpper(encoding) {
	case "B":
		b, err := decodeBase64(payload)
		if err != nil {
			return "", false
		}
		raw = b
	case "Q":
		raw = decodeQ(payload)
	default:
		return "", false
	}

	if strings.EqualFold(charset, "utf-8") {
		return string(raw), true
	}
	return singleByte(raw), true
}

func decodeBase64(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if b, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
}

// decodeQ turns each =XX escape into its byte and leaves everything else
// as is. A malformed escape is kept literally.
func decodeQ(payload string) []byte {
	out := make([]byte, 0, len(payload))
	for i := 0; i < len(payload); i++ {
		c := payload[i]
		if c == '=' && i+2 < len(payload) && isHex(payload[i+1]) && isHex(payload[i+2]) {
			out = append(out, unhex(payload[i+1])<<4|unhex(payload[i+2]))
			i += 2
			continue
		}
		out = append(out, c)
	}
	return out
}

func singleByte(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
