package util

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/oliveagle/jsonpath"
)

var placeholder = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)

// Render substitutes every {{name}} placeholder with the matching variable.
// Dotted names walk nested maps. Unknown variables render as the empty string.
func Render(template string, vars map[string]any) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	return placeholder.ReplaceAllStringFunc(template, func(token string) string {
		name := placeholder.FindStringSubmatch(token)[1]
		value, ok := Lookup(vars, name)
		if !ok {
			return ""
		}
		return Stringify(value)
	})
}

// Lookup resolves a variable name, following dots into nested maps.
func Lookup(vars map[string]any, name string) (any, bool) {
	if name == "" || vars == nil {
		return nil, false
	}
	if v, ok := vars[name]; ok {
		return v, true
	}
	if !strings.Contains(name, ".") {
		return nil, false
	}
	v, err := jsonpath.JsonPathLookup(vars, "$."+name)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Stringify renders a variable value the way it appears in outbound text.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
	return fmt.Sprint(value)
}
