package player

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/nadzzz/islandgreet/internal/greeting"
)

// ShareURL builds the deep link that replays the greeting for name.
func ShareURL(origin string, flavor greeting.Flavor, name string) string {
	return strings.TrimRight(origin, "/") + "/" + flavor.PathSegment() + "/" + EncodeURIComponent(name)
}

// EncodeURIComponent percent-encodes s the way browsers encode a single URI
// component: everything except A-Z a-z 0-9 and -_.!~*'() is escaped as
// UTF-8 bytes.
func EncodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

// DecodeURIComponent reverses EncodeURIComponent. Malformed escapes yield
// the input unchanged.
func DecodeURIComponent(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// ParseShareURL extracts the flavor and name from a share link such as
// https://islandgreet.example/bomboclaat/Mary%20Jane. Only the last two
// path segments are considered. The name is decoded leniently, so a link
// with a stray '%' still resolves.
func ParseShareURL(raw string) (greeting.Flavor, string, error) {
	path := raw
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if _, rest, ok := strings.Cut(path, "://"); ok {
		path = ""
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			path = rest[i:]
		}
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 {
		return "", "", fmt.Errorf("share url %q has no name segment", raw)
	}

	flavor, err := greeting.ParseFlavor(segments[len(segments)-2])
	if err != nil {
		return "", "", err
	}
	name := greeting.TrimName(DecodeURIComponent(segments[len(segments)-1]))
	if name == "" {
		return "", "", fmt.Errorf("share url %q has an empty name", raw)
	}
	return flavor, name, nil
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}
