package wizard

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"sort"
	"strings"
)

// FieldErrors maps a field name to the message shown to the user.
type FieldErrors map[string]string

// Fields returns the field names with errors, sorted.
func (f FieldErrors) Fields() []string {
	fields := make([]string, 0, len(f))
	for k := range f {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

func (f FieldErrors) String() string {
	parts := make([]string, 0, len(f))
	for _, k := range f.Fields() {
		parts = append(parts, fmt.Sprintf("%s: %s", k, f[k]))
	}
	return strings.Join(parts, "; ")
}

// FieldErrorsError is an error that carries field errors. When a submit handler
// returns it (or wraps it), the wizard shows the fields as the session errors.
type FieldErrorsError struct {
	Fields FieldErrors
}

func (e *FieldErrorsError) Error() string {
	return fmt.Sprintf("invalid fields: %s", e.Fields)
}

// Rule checks one field of the form. It returns an empty message when the form is valid.
type Rule struct {
	Field string
	Check func(data FormData) string
}

// Gate validates the wizard form step by step. It is pure, it doesn't mutate the
// form and doesn't do any IO, so it can be called before every step transition.
type Gate struct {
	steps [][]Rule
}

// NewGate returns a gate with the rules of each step, indexed by step.
func NewGate(steps ...[]Rule) Gate {
	return Gate{steps: steps}
}

// Validate returns the errors of the step. Steps without rules are always valid.
// Only the first failing rule of each field is reported.
func (g Gate) Validate(step int, data FormData) FieldErrors {
	errs := FieldErrors{}
	if step < 0 || step >= len(g.steps) {
		return errs
	}

	for _, r := range g.steps[step] {
		if _, ok := errs[r.Field]; ok {
			continue
		}
		if msg := r.Check(data); msg != "" {
			errs[r.Field] = msg
		}
	}

	return errs
}

// ValidateAll validates every step up to (and including) the last one, merged.
func (g Gate) ValidateAll(data FormData) FieldErrors {
	errs := FieldErrors{}
	for i := len(g.steps) - 1; i >= 0; i-- {
		maps.Copy(errs, g.Validate(i, data))
	}
	return errs
}

// FirstInvalidStep returns the first step with errors, or -1 if all are valid.
func (g Gate) FirstInvalidStep(data FormData) int {
	for i := range g.steps {
		if len(g.Validate(i, data)) > 0 {
			return i
		}
	}
	return -1
}

// Required fails when the field is missing or blank.
func Required(field, msg string) Rule {
	return Rule{Field: field, Check: func(data FormData) string {
		if !data.Has(field) {
			return msg
		}
		return ""
	}}
}

// OneOf fails when the field is set and is not one of the values.
func OneOf(field, msg string, values ...string) Rule {
	return Rule{Field: field, Check: func(data FormData) string {
		v := data.String(field)
		if v == "" || slices.Contains(values, v) {
			return ""
		}
		return msg
	}}
}

// PositiveInt fails when the field is set and is not a positive integer.
func PositiveInt(field, msg string) Rule {
	return Rule{Field: field, Check: func(data FormData) string {
		if !data.Has(field) {
			return ""
		}
		n, ok := data.Int(field)
		if !ok || n <= 0 {
			return msg
		}
		return ""
	}}
}

// HTTPURL fails when the field is set and is not an absolute http(s) URL.
func HTTPURL(field, msg string) Rule {
	return Rule{Field: field, Check: func(data FormData) string {
		v := data.String(field)
		if v == "" {
			return ""
		}
		u, err := url.Parse(v)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return msg
		}
		return ""
	}}
}

// When only applies the rule if cond is true for the form.
func When(cond func(data FormData) bool, r Rule) Rule {
	return Rule{Field: r.Field, Check: func(data FormData) string {
		if !cond(data) {
			return ""
		}
		return r.Check(data)
	}}
}

// FieldEquals is a condition for When that checks a field value.
func FieldEquals(field, value string) func(data FormData) bool {
	return func(data FormData) bool { return data.String(field) == value }
}
