// Package b64 moves digest bytes to and from base64 text.
//
// Encoding follows RFC 4648: the standard alphabet, or the URL and filename safe
// alphabet of section 5, with or without trailing padding. Decoding accepts both
// alphabets interchangeably so text produced by either variant round-trips.
package b64

import (
	"encoding/base64"
	"strings"
)

var urlToStd = strings.NewReplacer("-", "+", "_", "/")

// Encode returns the base64 text for b.
func Encode(b []byte, urlSafe, includePadding bool) string {
	switch {
	case urlSafe && includePadding:
		return base64.URLEncoding.EncodeToString(b)
	case urlSafe:
		return base64.RawURLEncoding.EncodeToString(b)
	case includePadding:
		return base64.StdEncoding.EncodeToString(b)
	default:
		return base64.RawStdEncoding.EncodeToString(b)
	}
}

// EncodeStd is Encode with the standard alphabet and padding.
func EncodeStd(b []byte) string {
	return Encode(b, false, true)
}

// Decode parses base64 text in either alphabet.
//
// When enforcePadding is false, missing padding is restored from the text length
// before decoding. Malformed or blank input reports ok == false.
func Decode(text string, enforcePadding bool) (b []byte, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	text = urlToStd.Replace(text)
	if !enforcePadding {
		switch len(text) % 4 {
		case 2:
			text += "=="
		case 3:
			text += "="
		}
	}
	out, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, false
	}
	return out, true
}
