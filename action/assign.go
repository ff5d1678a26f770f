package action

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/mohitkumar/chatflow/util"
)

var scriptPattern = regexp.MustCompile(`^\$\{([\s\S]*)\}$`)

// ScriptTimeout bounds the run time of a ${expr} evaluation.
var ScriptTimeout = time.Second

// Assign evaluates a save_variable value of the form name=value. The value is
// rendered with {{}} templates, or when wrapped as ${expr} it is evaluated as
// JavaScript with $ bound to the variables.
func Assign(actionValue string, vars map[string]any) (string, any, error) {
	name, raw, ok := strings.Cut(actionValue, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", nil, fmt.Errorf("save_variable expects name=value, got %q", actionValue)
	}
	raw = strings.TrimSpace(raw)
	if m := scriptPattern.FindStringSubmatch(raw); m != nil {
		val, err := evalScript(m[1], vars)
		if err != nil {
			return "", nil, err
		}
		return name, val, nil
	}
	return name, util.Render(raw, vars), nil
}

func evalScript(expression string, vars map[string]any) (any, error) {
	data, err := json.Marshal(vars)
	if err != nil {
		return nil, err
	}
	vm := goja.New()
	timer := time.AfterFunc(ScriptTimeout, func() {
		vm.Interrupt(fmt.Sprintf("script exceeded %s", ScriptTimeout))
	})
	defer timer.Stop()
	if _, err := vm.RunString(fmt.Sprintf("var $ = %s;", data)); err != nil {
		return nil, fmt.Errorf("error executing javascript %w", err)
	}
	val, err := vm.RunString(expression)
	if err != nil {
		return nil, fmt.Errorf("error executing javascript %w", err)
	}
	// round trip through json so stored values look like decoded variables
	res, err := json.Marshal(val.Export())
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(res, &out); err != nil {
		return nil, err
	}
	return out, nil
}
