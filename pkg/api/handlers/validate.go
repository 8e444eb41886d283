package handlers

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"maturity-hq/steward/pkg/governance"
)

var validate = newValidator()

// newValidator names fields by their json, or failing that query, tag.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			if name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]; name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// check validates s and reports the first failing field.
func check(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &governance.ValidationError{Message: "invalid request", Cause: err}
	}
	fe := verrs[0]
	msg := fe.Field() + " is invalid"
	switch fe.Tag() {
	case "required":
		msg = fe.Field() + " is required"
	case "max":
		msg = fe.Field() + " must be at most " + fe.Param() + " characters"
	case "oneof":
		msg = fe.Field() + " must be one of [" + fe.Param() + "]"
	}
	return &governance.ValidationError{Field: fe.Field(), Message: msg, Cause: err}
}
