package errors

import "errors"

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the code of the first *Error in err's chain, or "" when
// there is none.
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether the first *Error in err's chain has code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

func hasCategory(err error, category string) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == category
}

// IsValidation reports whether err is a VAL error.
func IsValidation(err error) bool { return hasCategory(err, CategoryValidation) }

// IsAuthentication reports whether err is any AUTH error.
func IsAuthentication(err error) bool { return hasCategory(err, CategoryAuthentication) }

// IsAuthorization reports whether err is an AUTHZ error.
func IsAuthorization(err error) bool { return hasCategory(err, CategoryAuthorization) }

// IsNotFound reports whether err is an NF error.
func IsNotFound(err error) bool { return hasCategory(err, CategoryNotFound) }

// IsConflict reports whether err is a CONF error.
func IsConflict(err error) bool { return hasCategory(err, CategoryConflict) }

// IsProvisioning reports whether err is a PROV error.
func IsProvisioning(err error) bool { return hasCategory(err, CategoryProvisioning) }

// IsInternal reports whether err is an INT error.
func IsInternal(err error) bool { return hasCategory(err, CategoryInternal) }

// IsRetryable reports whether err is an UNAVAIL or TIMEOUT error. The
// service never retries on its own; this only informs callers.
func IsRetryable(err error) bool {
	return hasCategory(err, CategoryUnavailable) || hasCategory(err, CategoryTimeout)
}

// IsClientError reports whether err maps to a 4xx status.
func IsClientError(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	status := e.HTTPStatus()
	return status >= 400 && status < 500
}
