package atclient

import (
	"fmt"
	"net/url"
	"strconv"
)

// ParseParams converts query arguments to URL values. Nil values and empty strings are dropped; string slices become repeated keys.
func ParseParams(raw map[string]any) (url.Values, error) {
	out := url.Values{}
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
		case string:
			if val != "" {
				out.Set(k, val)
			}
		case []string:
			for _, s := range val {
				out.Add(k, s)
			}
		case int:
			out.Set(k, strconv.Itoa(val))
		case int64:
			out.Set(k, strconv.FormatInt(val, 10))
		case bool:
			out.Set(k, strconv.FormatBool(val))
		case fmt.Stringer:
			out.Set(k, val.String())
		default:
			return nil, fmt.Errorf("unsupported type for query param %q: %T", k, v)
		}
	}
	return out, nil
}
