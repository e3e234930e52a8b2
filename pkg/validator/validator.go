// Package validator wraps go-playground/validator with the rules and field
// naming used by the site's forms.
package validator

import (
	"errors"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// FieldError is one failed rule, named by the field's form or json key.
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

// FieldErrors lists failures in struct declaration order.
type FieldErrors []FieldError

func (v FieldErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	var b strings.Builder
	for i, fe := range v {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(fe.Field)
		b.WriteString(" failed on ")
		b.WriteString(fe.Tag)
		if fe.Param != "" {
			b.WriteString("=")
			b.WriteString(fe.Param)
		}
	}
	return b.String()
}

// Message returns the visitor-facing message for the first failed field that
// has one in messages.
func (v FieldErrors) Message(messages map[string]string) (string, bool) {
	for _, fe := range v {
		if msg, ok := messages[fe.Field]; ok {
			return msg, true
		}
	}
	return "", false
}

// Struct validates s against its `validate` tags. Rule failures come back as
// FieldErrors; anything else (a non-struct argument) is returned unchanged.
func Struct(s any) error {
	return fieldErrors(instance().Struct(s))
}

// Var validates a single value against a tag expression such as "email".
func Var(value any, tag string) error {
	return fieldErrors(instance().Var(value, tag))
}

// IsEmail reports whether value is an email address that fits the members table.
func IsEmail(value string) bool {
	return Var(value, "required,email,max=255") == nil
}

func fieldErrors(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	out := make(FieldErrors, len(ve))
	for i, fe := range ve {
		out[i] = FieldError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()}
	}
	return out
}

// httpURL accepts absolute http(s) URLs only, keeping javascript: and
// relative links out of event RSVP buttons.
func httpURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(strings.TrimSpace(fl.Field().String()))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// fieldName prefers the form tag, then json, then the Go name.
func fieldName(fld reflect.StructField) string {
	for _, key := range []string{"form", "json"} {
		name, _, _ := strings.Cut(fld.Tag.Get(key), ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return fld.Name
}

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(fieldName)
		if err := validate.RegisterValidation("httpurl", httpURL); err != nil {
			panic(err)
		}
	})
	return validate
}
