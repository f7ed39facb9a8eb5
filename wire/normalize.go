package wire

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CamelKey turns an underscore-delimited key into its word-capitalised form
// ("read_at" -> "readAt"). Leading underscores are kept as they are.
func CamelKey(k string) string {
	if !strings.Contains(k, "_") {
		return k
	}

	lead := len(k) - len(strings.TrimLeft(k, "_"))
	parts := strings.Split(k[lead:], "_")
	title := cases.Title(language.Und, cases.NoLower)

	var b strings.Builder
	b.Grow(len(k))
	b.WriteString(k[:lead])
	for i, p := range parts {
		if i == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(title.String(p))
	}
	return b.String()
}

// SnakeKey is the inverse of CamelKey ("imageUrl" -> "image_url").
func SnakeKey(k string) string {
	if strings.IndexFunc(k, unicode.IsUpper) < 0 {
		return k
	}

	var b strings.Builder
	b.Grow(len(k) + 4)
	for i, r := range k {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ToCamel rewrites every mapping key in v with CamelKey. Sequences are walked,
// every other value is returned untouched.
func ToCamel(v any) any {
	return rekey(v, CamelKey)
}

// ToSnake rewrites every mapping key in v with SnakeKey.
func ToSnake(v any) any {
	return rekey(v, SnakeKey)
}

func rekey(v any, key func(string) string) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[key(k)] = rekey(val, key)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = rekey(val, key)
		}
		return out
	default:
		return v
	}
}
