package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"maturity-hq/steward/pkg/governance"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var messages = map[string]string{
	"required": "is required",
	"min":      "must contain at least %s item(s)",
	"max":      "must be at most %s long",
	"gte":      "must be greater than or equal to %s",
	"lte":      "must be less than or equal to %s",
	"oneof":    "must be one of [%s]",
}

// validateStruct runs struct tag validation and returns the first failure
// as a governance.ValidationError.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &governance.ValidationError{Message: "invalid request", Cause: err}
	}
	fe := verrs[0]
	field := fieldPath(fe.Namespace())
	msg, ok := messages[fe.Tag()]
	if !ok {
		msg = "is invalid"
	}
	if strings.Contains(msg, "%s") {
		msg = fmt.Sprintf(msg, fe.Param())
	}
	return &governance.ValidationError{Field: field, Message: field + " " + msg, Cause: err}
}

// fieldPath strips the struct name from a validator namespace, so
// "Request.options.format" becomes "options.format".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
