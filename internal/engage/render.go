package engage

import (
	"strings"

	"github.com/bluesky-social/skyengage/internal/graph"
)

// Render substitutes {handle}, {displayName} and {did} in tmpl with values from p.
//
// Unknown placeholders render as empty strings. "{{" and "}}" produce literal braces, and a '{' with no closing brace is copied through unchanged.
func Render(tmpl string, p graph.Profile) string {
	var sb strings.Builder
	sb.Grow(len(tmpl))
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				sb.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				sb.WriteString(tmpl[i:])
				return sb.String()
			}
			sb.WriteString(placeholder(tmpl[i+1:i+1+end], p))
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				i++
			}
			sb.WriteByte('}')
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func placeholder(name string, p graph.Profile) string {
	switch name {
	case "handle":
		return p.Handle
	case "displayName":
		return p.DisplayName
	case "did":
		return p.DID
	default:
		return ""
	}
}
