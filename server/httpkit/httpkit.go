package httpkit

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseBool implements the query-string boolean convention: "true" is
// true, anything else is false.
func ParseBool(s string) bool {
	return s == "true"
}

func asciiFallback(name string) string {
	b := &strings.Builder{}
	for _, r := range name {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ContentDisposition builds the header with both the ASCII filename and
// the RFC 5987 UTF-8 parameter.
func ContentDisposition(filename string, inline bool) string {
	kind := "attachment"
	if inline {
		kind = "inline"
	}
	return fmt.Sprintf(`%s; filename="%s"; filename*=UTF-8''%s`, kind, asciiFallback(filename), url.PathEscape(filename))
}
