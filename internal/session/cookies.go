package session

import (
	"strings"
)

// Pair is one name=value pair taken from a Set-Cookie header.
type Pair struct {
	Name  string
	Value string
}

// cookieAttributes are Set-Cookie attribute names; they never become jar entries.
var cookieAttributes = map[string]struct{}{
	"path":        {},
	"domain":      {},
	"expires":     {},
	"max-age":     {},
	"samesite":    {},
	"secure":      {},
	"httponly":    {},
	"priority":    {},
	"partitioned": {},
}

// ParseSetCookie returns the name=value pairs of a Set-Cookie header value in order.
// Several cookies folded into one comma-joined header are split apart without
// breaking the comma inside an Expires date.
func ParseSetCookie(header string) []Pair {
	var pairs []Pair
	for _, cookie := range splitCookies(header) {
		for _, segment := range strings.Split(cookie, ";") {
			name, value, ok := strings.Cut(strings.TrimSpace(segment), "=")
			if !ok {
				// Flag attributes like "Secure" carry no value.
				continue
			}
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if _, attr := cookieAttributes[strings.ToLower(name)]; attr {
				continue
			}
			pairs = append(pairs, Pair{Name: name, Value: strings.Trim(strings.TrimSpace(value), `"`)})
		}
	}
	return pairs
}

// splitCookies splits a comma-joined header. A comma only starts a new cookie when
// the text after it looks like "token=" before the next ';' or ','.
func splitCookies(header string) []string {
	parts := strings.Split(header, ",")
	var cookies []string
	for _, part := range parts {
		if len(cookies) > 0 && !startsCookie(part) {
			cookies[len(cookies)-1] += "," + part
			continue
		}
		cookies = append(cookies, part)
	}
	return cookies
}

func startsCookie(s string) bool {
	s = strings.TrimSpace(s)
	end := strings.IndexAny(s, ";,")
	if end >= 0 {
		s = s[:end]
	}
	name, _, ok := strings.Cut(s, "=")
	if !ok {
		return false
	}
	name = strings.TrimSpace(name)
	return name != "" && !strings.ContainsAny(name, " \t")
}
