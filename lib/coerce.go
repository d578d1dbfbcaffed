package dbq

import "strings"

// ConvertNulls maps the empty-string sentinel to a true SQL NULL before the
// value is bound to a statement parameter. Every other value, including zero,
// false, and non-empty strings, passes through unchanged.
func ConvertNulls(v any) any {
	if s, ok := v.(string); ok && s == "" {
		return nil
	}
	return v
}

// TrimValue removes leading and trailing whitespace from string values.
// Nil and non-string values pass through unchanged.
func TrimValue(v any) any {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return v
}

// coerceArgs applies null coercion to every scalar before positional binding.
func coerceArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = ConvertNulls(a)
	}
	return out
}
