package wizard

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// FormData is the wizard form, field name to value. The shape is defined by each wizard.
type FormData map[string]any

// String returns the field as a trimmed string, empty if missing.
func (f FormData) String(field string) string {
	v, ok := f[field]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Int returns the field as an integer. ok is false when the field is missing
// or it can't be represented as an integer.
func (f FormData) Int(field string) (n int, ok bool) {
	v, exists := f[field]
	if !exists || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		return int(t), true
	case string:
		if strings.TrimSpace(t) == "" {
			return 0, false
		}
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// StringMap returns the field as a map of strings. Accepts map values and
// "k=v,k2=v2" strings.
func (f FormData) StringMap(field string) map[string]string {
	v, ok := f[field]
	if !ok || v == nil {
		return nil
	}

	out := map[string]string{}
	switch t := v.(type) {
	case map[string]string:
		maps.Copy(out, t)
	case map[string]any:
		for k, v := range t {
			out[k] = fmt.Sprint(v)
		}
	case string:
		for _, kv := range strings.Split(t, ",") {
			kv = strings.TrimSpace(kv)
			if kv == "" {
				continue
			}
			k, v, _ := strings.Cut(kv, "=")
			out[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Has reports if the field is set to a non blank value.
func (f FormData) Has(field string) bool {
	return f.String(field) != ""
}

func (f FormData) clone() FormData {
	if f == nil {
		return FormData{}
	}
	return maps.Clone(f)
}
