// Package validation runs struct-tag validation on request DTOs and turns
// the first failure into a CodeValidation domain error.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "eventpay/pkg/domain-errors"
)

// Gateway identifiers look like order_Nx3Yz or pay_29QQoUBi66xm2f.
var gatewayIDPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var validate = build()

func build() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(wireName)
	mustRegister(v, "notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	mustRegister(v, "gatewayid", func(fl validator.FieldLevel) bool {
		return gatewayIDPattern.MatchString(fl.Field().String())
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %q: %v", tag, err))
	}
}

func wireName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// Validate checks req against its validate tags.
func Validate(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	return dErrors.New(dErrors.CodeValidation, ErrorMessage(err))
}

var messages = map[string]string{
	"required":    "%s is required",
	"email":       "%s must be a valid email",
	"min":         "%s must be at least %s",
	"max":         "%s must be at most %s",
	"oneof":       "%s must be one of [%s]",
	"notblank":    "%s must not be blank",
	"gatewayid":   "%s must contain only letters, digits and underscores",
	"hexadecimal": "%s must be hex encoded",
}

// ErrorMessage renders the first field failure in err as a client-facing
// sentence using the field's JSON name.
func ErrorMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request body"
	}
	fe := fieldErrs[0]
	field := fe.Field()
	if field == "" {
		field = fe.StructField()
	}
	if field == "" {
		return "invalid request body"
	}

	format, ok := messages[fe.ActualTag()]
	if !ok {
		return field + " is invalid"
	}
	if strings.Count(format, "%s") == 2 {
		return fmt.Sprintf(format, field, fe.Param())
	}
	return fmt.Sprintf(format, field)
}
