package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var v *validator.Validate

func init() {
	v = validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their `env` tag so messages name the variable
	// an operator has to set.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("env"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
}

func Instance() *validator.Validate {
	return v
}

// Violation is one failed rule on one field.
type Violation struct {
	Field string // env tag name, or the Go field name without one
	Tag   string // validator tag that failed, e.g. required_without
	Param string
	Code  string // stable code from tagMap
}

// Violations validates i and returns every failed rule in struct field
// order. A non-nil error means i could not be validated at all.
func Violations(i any) ([]Violation, error) {
	err := v.Struct(i)
	if err == nil {
		return nil, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, err
	}
	out := make([]Violation, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, Violation{
			Field: e.Field(),
			Tag:   e.Tag(),
			Param: e.Param(),
			Code:  mapTagToCode(e.Tag()),
		})
	}
	return out, nil
}

// Validate is the map form of Violations: field -> code.
func Validate(i any) map[string]string {
	vs, err := Violations(i)
	if err != nil {
		return map[string]string{"_error": "validation_failed"}
	}
	if len(vs) == 0 {
		return nil
	}
	out := make(map[string]string, len(vs))
	for _, e := range vs {
		out[e.Field] = e.Code
	}
	return out
}
