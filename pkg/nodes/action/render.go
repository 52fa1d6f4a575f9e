package action

import (
	"fmt"
	"strings"

	"github.com/cascadehq/cascade/pkg/conditions"
)

// Render substitutes {{dotted.path}} placeholders with values from the
// scope. Unresolved placeholders are left in place so broken references stay
// visible in the delivered message instead of silently disappearing.
func Render(text string, scope map[string]any) string {
	if !strings.Contains(text, "{{") {
		return text
	}

	var out strings.Builder

	for {
		start := strings.Index(text, "{{")
		if start < 0 {
			out.WriteString(text)

			break
		}

		end := strings.Index(text[start:], "}}")
		if end < 0 {
			out.WriteString(text)

			break
		}

		end += start

		out.WriteString(text[:start])

		path := strings.TrimSpace(text[start+2 : end])

		if value, ok := conditions.Lookup(scope, path); ok {
			out.WriteString(stringify(value))
		} else {
			out.WriteString(text[start : end+2])
		}

		text = text[end+2:]
	}

	return out.String()
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		// Decoded JSON integers render without a trailing ".0".
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}

		return fmt.Sprintf("%g", v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
