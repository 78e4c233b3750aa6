package config

import (
	"reflect"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

// Validator is implemented by configuration structs with rules beyond
// `required` tags. Validate may also fill derived defaults, so it is
// usually declared on a pointer receiver.
//
// Errors that are already [*sserr.Error] are returned as-is; other errors
// are wrapped with [sserr.CodeValidation].
type Validator interface {
	Validate() error
}

// validate checks required tags, then runs every nested Validator from the
// leaves up, then the root's own Validator.
func validate(cfg any, rv reflect.Value) error {
	if err := validateRequired(rv, ""); err != nil {
		return err
	}
	if err := validateNested(rv); err != nil {
		return err
	}
	if v, ok := cfg.(Validator); ok {
		return runValidator(v)
	}
	return nil
}

func runValidator(v Validator) error {
	if err := v.Validate(); err != nil {
		if _, isSSErr := sserr.AsError(err); isSSErr {
			return err
		}
		return sserr.Wrap(err, sserr.CodeValidation, "config: custom validation failed")
	}
	return nil
}

// validateNested calls Validate on each addressable nested struct field
// that implements Validator.
func validateNested(rv reflect.Value) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		if !field.CanSet() || field.Kind() != reflect.Struct || field.Type() == durationType {
			continue
		}
		if err := validateNested(field); err != nil {
			return err
		}
		if v, ok := field.Addr().Interface().(Validator); ok {
			if err := runValidator(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateRequired checks that fields tagged `required:"true"` are
// non-zero. path is the dotted field path used in error messages, e.g.
// "Provider.BaseURL".
func validateRequired(rv reflect.Value, path string) error {
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)

		if !field.CanSet() {
			continue
		}

		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}

		if field.Kind() == reflect.Struct {
			if err := validateRequired(field, fieldPath); err != nil {
				return err
			}
			continue
		}

		if sf.Tag.Get("required") != "true" {
			continue
		}

		if field.IsZero() {
			return sserr.Newf(sserr.CodeValidationRequired,
				"config: required field %q is empty", fieldPath)
		}
	}

	return nil
}
