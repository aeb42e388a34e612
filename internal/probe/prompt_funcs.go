package probe

import (
	"strings"
	"text/template"
)

// PromptFuncs returns the helpers available to prompt templates. All of
// them are pure and safe for concurrent rendering.
//
//	{{upper .Locale}}         "us" -> "US"
//	{{add .N 1}}              one extra slot
//	{{quote .Entity}}         JSON-safe string literal
//	{{default "US" .Locale}}  fallback for empty fields
func PromptFuncs() template.FuncMap {
	return template.FuncMap{
		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },

		"lower": strings.ToLower,
		"upper": strings.ToUpper,
		"trim":  strings.TrimSpace,
		"join":  strings.Join,

		"replace": func(s, old, new string) string {
			return strings.ReplaceAll(s, old, new)
		},
		// truncate cuts s to length bytes, ending in "..." when there is room.
		"truncate": func(s string, length int) string {
			if length <= 0 {
				return ""
			}
			if len(s) <= length {
				return s
			}
			if length > 3 {
				return s[:length-3] + "..."
			}
			return s[:length]
		},
		"quote": func(s string) string {
			r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
			return `"` + r.Replace(s) + `"`
		},
		"default": func(def, s string) string {
			if strings.TrimSpace(s) == "" {
				return def
			}
			return s
		},
	}
}
