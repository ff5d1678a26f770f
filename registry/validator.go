package registry

import (
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// entries of a button or list node
	v.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	// absolute url, or one still carrying {{placeholders}} resolved at run time
	v.RegisterValidation("flow_url", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if strings.Contains(s, "{{") {
			return true
		}
		u, err := url.Parse(s)
		return err == nil && u.Scheme != "" && u.Host != ""
	})
	v.RegisterValidation("variable_name", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), " {}")
	})
	v.RegisterValidation("assignment", func(fl validator.FieldLevel) bool {
		return strings.Contains(fl.Field().String(), "=")
	})
	return v
}
